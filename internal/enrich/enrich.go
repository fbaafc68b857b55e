package enrich

import (
	"fmt"
	"strings"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/llm"
	"github.com/yungbote/recall-backend/internal/normalization"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// Input bundles everything one unified enrichment call needs.
type Input struct {
	ContentType    string
	Title          string
	Text           string
	ExistingTags   []string
	ExistingTopics []string
	PreDetected    []PreDetected
}

// PreDetected names an entity found ahead of the LLM call (URL detection or
// keyword matching) that the model must validate.
type PreDetected struct {
	Name       string
	EntityType string
}

// TopicExtraction is one hierarchical topic path with its confidence.
type TopicExtraction struct {
	Path       []string `json:"path"`
	Confidence float64  `json:"confidence"`
}

// Validation is the model's verdict on one pre-detected entity.
type Validation struct {
	Confirmed bool   `json:"confirmed"`
	EdgeType  string `json:"edge_type"`
}

// ExtractedEntity is an entity the model surfaced beyond the pre-detected set.
type ExtractedEntity struct {
	Name        string  `json:"name"`
	EntityType  string  `json:"entity_type"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Result is the sanitized output of one unified enrichment call. The persist
// stage stores it verbatim under the content's metadata.unified_result.
type Result struct {
	Tags               []string              `json:"tags"`
	NewTags            []string              `json:"new_tags"`
	Tier               string                `json:"tier"`
	TierExplanation    string                `json:"tier_explanation,omitempty"`
	QualityScore       int                   `json:"quality_score"`
	ScoreExplanation   string                `json:"score_explanation,omitempty"`
	Summary            string                `json:"summary"`
	Topics             []TopicExtraction     `json:"topics"`
	Validations        map[string]Validation `json:"pre_detected_validations"`
	AdditionalEntities []ExtractedEntity     `json:"additional_entities"`
	TagRemaps          map[string]string     `json:"tag_remaps,omitempty"`
}

// AllTags returns the final tag sequence for the content record: vocabulary
// picks first, genuinely new tags after, insertion order preserved.
func (r *Result) AllTags() []string {
	out := make([]string, 0, len(r.Tags)+len(r.NewTags))
	out = append(out, r.Tags...)
	for _, t := range r.NewTags {
		out = appendUniqueTag(out, t)
	}
	return out
}

// ValidationFor looks up the verdict for a pre-detected entity by name.
func (r *Result) ValidationFor(name string) (Validation, bool) {
	v, ok := r.Validations[normalization.Name(name)]
	return v, ok
}

// Enricher runs the single-call unified enrichment: prompt, LLM call, parse,
// tag-alias side effects. Failures carry the stage that raised them.
type Enricher interface {
	Enrich(dbc dbctx.Context, in Input) (*Result, error)
}

type enricher struct {
	log     *logger.Logger
	ai      llm.Generator
	aliases repos.TagAliasRepo
	cfg     config
}

type config struct {
	textCap         int
	maxPromptTags   int
	maxPromptTopics int
	maxNewTags      int
	maxTopics       int
	minTopicConf    float64
	minEntityConf   float64
}

func loadConfig() config {
	return config{
		textCap:         envutil.Int("ENRICH_TEXT_CAP", 10000),
		maxPromptTags:   envutil.Int("ENRICH_MAX_PROMPT_TAGS", 50),
		maxPromptTopics: envutil.Int("ENRICH_MAX_PROMPT_TOPICS", 20),
		maxNewTags:      envutil.Int("ENRICH_MAX_NEW_TAGS", 5),
		maxTopics:       envutil.Int("ENRICH_MAX_TOPICS_PER_CONTENT", 5),
		minTopicConf:    envutil.Float("ENRICH_MIN_TOPIC_CONFIDENCE", 0.6),
		minEntityConf:   envutil.Float("ENRICH_MIN_ENTITY_CONFIDENCE", 0.6),
	}
}

func NewEnricher(log *logger.Logger, ai llm.Generator, aliases repos.TagAliasRepo) (Enricher, error) {
	if log == nil {
		return nil, fmt.Errorf("enricher requires logger")
	}
	if ai == nil {
		return nil, fmt.Errorf("enricher requires a generator")
	}
	if aliases == nil {
		return nil, fmt.Errorf("enricher requires tag alias repo")
	}
	return &enricher{
		log:     log.With("service", "Enricher"),
		ai:      ai,
		aliases: aliases,
		cfg:     loadConfig(),
	}, nil
}

func (e *enricher) Enrich(dbc dbctx.Context, in Input) (*Result, error) {
	metrics := observability.Current()

	user := buildUserPrompt(in, e.cfg)
	raw, err := e.ai.GenerateJSON(dbc.Ctx, unifiedSystemPrompt, user, unifiedSchemaName, unifiedSchema())
	if err != nil {
		metrics.IncEnrichOutcome("llm_error")
		return nil, NewStageError(StageLLMCall, CodeLLMCallError, err)
	}

	res, err := parseUnified(raw, parseOptions{
		existingTags:        in.ExistingTags,
		maxNewTags:          e.cfg.maxNewTags,
		maxTopics:           e.cfg.maxTopics,
		minTopicConfidence:  e.cfg.minTopicConf,
		minEntityConfidence: e.cfg.minEntityConf,
	})
	if err != nil {
		se := AsStageError(err, StageParse, CodeParseFailed)
		metrics.IncEnrichOutcome(strings.ToLower(se.Code))
		return nil, se
	}

	e.recordTagAliases(dbc, res)

	metrics.IncEnrichOutcome("completed")
	e.log.Info("unified enrichment parsed",
		"content_type", in.ContentType,
		"tier", res.Tier,
		"quality_score", res.QualityScore,
		"tags", len(res.Tags),
		"new_tags", len(res.NewTags),
		"topics", len(res.Topics),
		"additional_entities", len(res.AdditionalEntities))
	return res, nil
}

// recordTagAliases persists variant-to-canonical remaps. Vocabulary
// bookkeeping never fails an enrichment run.
func (e *enricher) recordTagAliases(dbc dbctx.Context, res *Result) {
	for variant, canonical := range res.TagRemaps {
		if variant == canonical {
			continue
		}
		if err := e.aliases.Upsert(dbc, variant, canonical); err != nil {
			e.log.Warn("tag alias upsert failed", "variant", variant, "canonical", canonical, "error", err)
		}
	}
}
