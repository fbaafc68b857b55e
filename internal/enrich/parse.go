package enrich

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/normalization"
	"github.com/yungbote/recall-backend/internal/observability"
)

// llmResponseRaw is the tolerant decode target. Every field is optional and
// list elements are loosely typed; sanitization turns it into a Result.
type llmResponseRaw struct {
	Tags                   []any           `json:"tags"`
	NewTags                []any           `json:"new_tags"`
	Tier                   any             `json:"tier"`
	TierExplanation        any             `json:"tier_explanation"`
	QualityScore           any             `json:"quality_score"`
	ScoreExplanation       any             `json:"score_explanation"`
	Summary                any             `json:"summary"`
	Topics                 []any           `json:"topics"`
	PreDetectedValidations json.RawMessage `json:"pre_detected_validations"`
	AdditionalEntities     []any           `json:"additional_entities"`
}

var tagPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// numeric values for the confidence labels the model is asked to emit
const (
	confidenceHigh   = 0.9
	confidenceMedium = 0.7
	confidenceLow    = 0.5
)

type parseOptions struct {
	existingTags        []string
	maxNewTags          int
	maxTopics           int
	minTopicConfidence  float64
	minEntityConfidence float64
}

// parseUnified turns a raw model response into a sanitized Result. It never
// panics and never returns a partially invalid result: anything that fails a
// field rule is dropped, anything structurally broken fails the whole parse.
func parseUnified(raw string, opts parseOptions) (*Result, error) {
	clean := stripJSONFences(raw)
	if clean == "" {
		return nil, NewStageError(StageParse, CodeEmptyResponse, errors.New("empty enrichment response"))
	}

	var rr llmResponseRaw
	if err := json.Unmarshal([]byte(clean), &rr); err != nil {
		return nil, NewStageError(StageParse, CodeParseFailed, err)
	}

	res := &Result{
		Tier:             sanitizeTier(rr.Tier),
		TierExplanation:  stringValue(rr.TierExplanation),
		QualityScore:     sanitizeScore(rr.QualityScore),
		ScoreExplanation: stringValue(rr.ScoreExplanation),
		Summary:          stringValue(rr.Summary),
	}

	res.Tags = sanitizeTags(rr.Tags, "tags")
	newTags := sanitizeTags(rr.NewTags, "new_tags")
	res.NewTags, res.TagRemaps = remapNewTags(newTags, res.Tags, opts.existingTags, opts.maxNewTags)

	// A remapped candidate means the model wanted that tag on the content;
	// carry the canonical form into the tag list.
	for _, canonical := range orderedRemapTargets(newTags, res.TagRemaps) {
		res.Tags = appendUniqueTag(res.Tags, canonical)
	}

	res.Topics = sanitizeTopics(rr.Topics, opts.minTopicConfidence, opts.maxTopics)
	res.Validations = sanitizeValidations(rr.PreDetectedValidations)
	res.AdditionalEntities = sanitizeEntities(rr.AdditionalEntities, opts.minEntityConfidence)
	return res, nil
}

// stripJSONFences removes a surrounding markdown code fence, if any.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func sanitizeTier(v any) string {
	t := strings.ToUpper(stringValue(v))
	if !content.ValidTier(t) {
		return content.TierC
	}
	return t
}

func sanitizeScore(v any) int {
	n, ok := intValue(v)
	if !ok {
		return 50
	}
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}

func sanitizeTags(vals []any, field string) []string {
	out := make([]string, 0, len(vals))
	seen := make(map[string]bool, len(vals))
	for _, v := range vals {
		tag := strings.ToLower(stringValue(v))
		if tag == "" || !tagPattern.MatchString(tag) {
			if tag != "" {
				observability.Current().IncDataQuality(StageParse, "invalid_tag", field)
			}
			continue
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// remapNewTags folds near-duplicate new tags onto the known vocabulary.
// A candidate within edit distance 2 of a known tag (normalized forms) is
// remapped to that tag; the rest stay genuinely new, capped at maxNew.
func remapNewTags(candidates, accepted, existing []string, maxNew int) ([]string, map[string]string) {
	known := make([]string, 0, len(existing)+len(accepted))
	knownSet := make(map[string]bool, len(existing)+len(accepted))
	for _, t := range existing {
		if !knownSet[t] {
			knownSet[t] = true
			known = append(known, t)
		}
	}
	for _, t := range accepted {
		if !knownSet[t] {
			knownSet[t] = true
			known = append(known, t)
		}
	}

	kept := make([]string, 0, len(candidates))
	remaps := map[string]string{}
	for _, cand := range candidates {
		if knownSet[cand] {
			remaps[cand] = cand
			continue
		}
		match, ok := closestTag(cand, known)
		if ok {
			remaps[cand] = match
			observability.Current().IncDataQuality(StageParse, "remapped_tag", "new_tags")
			continue
		}
		if maxNew > 0 && len(kept) >= maxNew {
			observability.Current().IncDataQuality(StageParse, "new_tag_cap", "new_tags")
			continue
		}
		kept = append(kept, cand)
		known = append(known, cand)
		knownSet[cand] = true
	}
	return kept, remaps
}

func closestTag(candidate string, known []string) (string, bool) {
	normCand := normalization.Name(candidate)
	best := ""
	bestDist := 3
	for _, k := range known {
		d := normalization.Levenshtein(normCand, normalization.Name(k))
		if d < bestDist {
			bestDist = d
			best = k
		}
	}
	return best, best != ""
}

// orderedRemapTargets yields remap targets in candidate order so the final
// tag sequence stays deterministic.
func orderedRemapTargets(candidates []string, remaps map[string]string) []string {
	out := make([]string, 0, len(remaps))
	for _, c := range candidates {
		if target, ok := remaps[c]; ok {
			out = append(out, target)
		}
	}
	return out
}

func appendUniqueTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

func sanitizeTopics(vals []any, minConf float64, maxTopics int) []TopicExtraction {
	out := make([]TopicExtraction, 0, len(vals))
	seen := map[string]bool{}
	for _, v := range vals {
		var rawPath string
		conf := confidenceMedium
		switch t := v.(type) {
		case string:
			rawPath = t
		case map[string]any:
			rawPath = stringValue(firstOf(t, "topic", "name", "path"))
			conf = confidenceValue(t["confidence"], confidenceMedium)
		}
		path := splitTopicPath(rawPath)
		if len(path) == 0 {
			continue
		}
		if conf < minConf {
			observability.Current().IncDataQuality(StageParse, "low_confidence", "topics")
			continue
		}
		key := topicKey(path)
		if seen[key] {
			continue
		}
		if maxTopics > 0 && len(out) >= maxTopics {
			observability.Current().IncDataQuality(StageParse, "topic_cap", "topics")
			continue
		}
		seen[key] = true
		out = append(out, TopicExtraction{Path: path, Confidence: conf})
	}
	return out
}

// splitTopicPath turns "DevOps > Kubernetes > Helm" into its segments.
func splitTopicPath(raw string) []string {
	parts := strings.Split(raw, ">")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func topicKey(path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = normalization.Name(p)
	}
	return strings.Join(parts, ">")
}

// sanitizeValidations accepts either the array form
// [{"entity":..., "confirmed":..., "edge_type":...}] or a map keyed by entity
// name whose values are objects, booleans, or edge-type strings. Keys are
// normalized names.
func sanitizeValidations(raw json.RawMessage) map[string]Validation {
	out := map[string]Validation{}
	if len(raw) == 0 {
		return out
	}

	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err == nil {
		for _, m := range arr {
			name := stringValue(firstOf(m, "entity", "name"))
			if name == "" {
				continue
			}
			out[normalization.Name(name)] = Validation{
				Confirmed: boolValue(m["confirmed"]),
				EdgeType:  sanitizeEdgeType(m["edge_type"]),
			}
		}
		return out
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return out
	}
	for name, v := range obj {
		key := normalization.Name(name)
		if key == "" {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			out[key] = Validation{
				Confirmed: boolValue(t["confirmed"]),
				EdgeType:  sanitizeEdgeType(t["edge_type"]),
			}
		case bool:
			out[key] = Validation{Confirmed: t, EdgeType: entities.EdgeMentions}
		case string:
			s := strings.ToLower(strings.TrimSpace(t))
			if entities.ValidEdgeType(s) {
				out[key] = Validation{Confirmed: true, EdgeType: s}
			} else {
				out[key] = Validation{Confirmed: boolValue(t), EdgeType: entities.EdgeMentions}
			}
		}
	}
	return out
}

func sanitizeEdgeType(v any) string {
	s := strings.ToLower(stringValue(v))
	if !entities.ValidEdgeType(s) {
		return entities.EdgeMentions
	}
	return s
}

func sanitizeEntities(vals []any, minConf float64) []ExtractedEntity {
	out := make([]ExtractedEntity, 0, len(vals))
	seen := map[string]bool{}
	for _, v := range vals {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name := stringValue(firstOf(m, "name", "entity"))
		if name == "" {
			continue
		}
		etype := strings.ToLower(stringValue(firstOf(m, "entity_type", "type")))
		if !entities.ValidType(etype) {
			observability.Current().IncDataQuality(StageParse, "invalid_entity_type", "additional_entities")
			continue
		}
		conf := confidenceValue(m["confidence"], confidenceMedium)
		if conf < minConf {
			observability.Current().IncDataQuality(StageParse, "low_confidence", "additional_entities")
			continue
		}
		key := etype + "|" + normalization.Name(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ExtractedEntity{
			Name:        name,
			EntityType:  etype,
			Description: stringValue(m["description"]),
			Confidence:  conf,
		})
	}
	return out
}

func stringValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(math.Round(t)), true
	case int:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(math.Round(f)), true
		}
	}
	return 0, false
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "confirmed":
			return true
		}
	}
	return false
}

// confidenceValue maps a label or number to [0,1]; missing values default to
// medium so the model omitting the field does not silently drop the item.
func confidenceValue(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0
		}
		if t > 1 {
			return 1
		}
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "high":
			return confidenceHigh
		case "medium":
			return confidenceMedium
		case "low":
			return confidenceLow
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return confidenceValue(f, def)
		}
	}
	return def
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
