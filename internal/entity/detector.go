package entity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	ent "github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/fetch"
	"github.com/yungbote/recall-backend/internal/ingest/urlkey"
	"github.com/yungbote/recall-backend/internal/normalization"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// Detection match types. URL detections and keyword-index hits share one
// shape so the pipeline can hand the whole set to the enricher for
// validation without caring where each came from.
const (
	MatchURL     = "url"
	MatchKeyword = "keyword"
	MatchAlias   = "alias"
)

// Detection is a provisional entity surfaced before the LLM stage runs. The
// enricher confirms or rejects each one; only confirmed detections become
// entity rows and edges.
type Detection struct {
	Name        string
	EntityType  string
	Confidence  float64
	Source      string
	MatchType   string
	Description string
	Metadata    map[string]any
}

// Detector scans content text (plus any out-of-band URLs such as a video
// description's links) and converts recognizable URLs into provisional
// entities.
type Detector interface {
	Detect(ctx context.Context, text string, extraURLs []string) []Detection
}

type detector struct {
	log     *logger.Logger
	sponsor *urlkey.SponsorFilter
	github  fetch.GitHubClient
	arxiv   fetch.ArxivClient
	scholar fetch.SemanticScholarClient
}

// NewDetector builds the URL detection stage. The fetch clients are optional:
// when nil (external fetch disabled) detections keep their URL-derived names
// and skip metadata enrichment.
func NewDetector(log *logger.Logger, sponsor *urlkey.SponsorFilter, github fetch.GitHubClient, arxiv fetch.ArxivClient, scholar fetch.SemanticScholarClient) (Detector, error) {
	if log == nil {
		return nil, fmt.Errorf("log cannot be nil")
	}
	if sponsor == nil {
		return nil, fmt.Errorf("sponsor filter cannot be nil")
	}
	return &detector{
		log:     log.With("service", "EntityDetector"),
		sponsor: sponsor,
		github:  github,
		arxiv:   arxiv,
		scholar: scholar,
	}, nil
}

var urlRe = regexp.MustCompile(`https?://[^\s\)\]>"']+`)

// ExtractURLs returns every absolute http(s) URL in text, in order. Callers
// use it to pull out-of-band URL sets (a video description, say) that then
// feed Detect as extraURLs.
func ExtractURLs(text string) []string {
	return urlRe.FindAllString(text, -1)
}

// contextRadius is how many bytes around an in-text URL feed the sponsored
// filter. amazon.com links survive only when nearby text reads like AWS.
const contextRadius = 200

func (d *detector) Detect(ctx context.Context, text string, extraURLs []string) []Detection {
	type candidate struct {
		raw     string
		context string
	}
	candidates := make([]candidate, 0, 8)
	seenRaw := map[string]bool{}

	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		raw := strings.TrimRight(text[loc[0]:loc[1]], ".,;")
		if raw == "" || seenRaw[raw] {
			continue
		}
		seenRaw[raw] = true
		candidates = append(candidates, candidate{raw: raw, context: surroundingText(text, loc[0], loc[1])})
	}
	for _, raw := range extraURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" || seenRaw[raw] {
			continue
		}
		seenRaw[raw] = true
		// Description links carry no prose context, so sponsored filtering
		// runs against the URL alone.
		candidates = append(candidates, candidate{raw: raw})
	}

	out := make([]Detection, 0, len(candidates))
	seenEntity := map[string]bool{}
	for _, c := range candidates {
		if d.sponsor.IsSponsored(c.raw, c.context) {
			continue
		}
		classified, err := urlkey.Classify(c.raw)
		if err != nil {
			continue
		}
		det, ok := d.detectionFor(ctx, classified)
		if !ok {
			continue
		}
		key := det.EntityType + "|" + normalization.Name(det.Name)
		if seenEntity[key] {
			continue
		}
		seenEntity[key] = true
		out = append(out, det)
	}
	return out
}

func (d *detector) detectionFor(ctx context.Context, c urlkey.Classified) (Detection, bool) {
	switch c.Kind {
	case urlkey.KindGitHubRepo:
		return d.githubDetection(ctx, c), true
	case urlkey.KindArxiv:
		return d.arxivDetection(ctx, c), true
	case urlkey.KindDOI:
		return d.doiDetection(ctx, c), true
	case urlkey.KindPyPI:
		return packageDetection(c, "pypi"), true
	case urlkey.KindNPM:
		return packageDetection(c, "npm"), true
	}
	return Detection{}, false
}

func (d *detector) githubDetection(ctx context.Context, c urlkey.Classified) Detection {
	owner, name, _ := strings.Cut(c.ID, "/")
	det := Detection{
		Name:       name,
		EntityType: ent.TypeRepo,
		Confidence: 0.9,
		Source:     ent.SourceURLDetected,
		MatchType:  MatchURL,
		Metadata: map[string]any{
			ent.MetaURL: c.Raw,
			"full_name": c.ID,
		},
	}
	if d.github == nil {
		return det
	}
	repo, err := d.github.Repo(ctx, owner, name)
	if err != nil {
		d.log.Warn("github enrichment failed", "repo", c.ID, "error", err)
		return det
	}
	det.Description = repo.Description
	det.Metadata[ent.MetaStars] = repo.Stars
	if repo.Language != "" {
		det.Metadata[ent.MetaLanguage] = repo.Language
	}
	if len(repo.Topics) > 0 {
		det.Metadata[ent.MetaTopics] = repo.Topics
	}
	return det
}

func (d *detector) arxivDetection(ctx context.Context, c urlkey.Classified) Detection {
	det := Detection{
		Name:       "arXiv:" + c.ID,
		EntityType: ent.TypePaper,
		Confidence: 0.9,
		Source:     ent.SourceURLDetected,
		MatchType:  MatchURL,
		Metadata: map[string]any{
			ent.MetaURL: c.Raw,
			"arxiv_id":  c.ID,
		},
	}
	if d.arxiv == nil {
		return det
	}
	paper, err := d.arxiv.Paper(ctx, c.ID)
	if err != nil {
		d.log.Warn("arxiv enrichment failed", "arxiv_id", c.ID, "error", err)
		return det
	}
	if paper.Title != "" {
		det.Name = paper.Title
	}
	det.Description = clipText(paper.Abstract, 1000)
	if len(paper.Authors) > 0 {
		det.Metadata[ent.MetaAuthors] = paper.Authors
	}
	if paper.Abstract != "" {
		det.Metadata[ent.MetaAbstract] = paper.Abstract
	}
	return det
}

func (d *detector) doiDetection(ctx context.Context, c urlkey.Classified) Detection {
	det := Detection{
		Name:       "doi:" + c.ID,
		EntityType: ent.TypePaper,
		Confidence: 0.9,
		Source:     ent.SourceURLDetected,
		MatchType:  MatchURL,
		Metadata: map[string]any{
			ent.MetaURL: c.Raw,
			"doi":       c.ID,
		},
	}
	if d.scholar == nil {
		return det
	}
	paper, err := d.scholar.PaperByDOI(ctx, c.ID)
	if err != nil {
		d.log.Warn("semantic scholar enrichment failed", "doi", c.ID, "error", err)
		return det
	}
	if paper.Title != "" {
		det.Name = paper.Title
	}
	det.Description = clipText(paper.Abstract, 1000)
	if len(paper.Authors) > 0 {
		det.Metadata[ent.MetaAuthors] = paper.Authors
	}
	if paper.Abstract != "" {
		det.Metadata[ent.MetaAbstract] = paper.Abstract
	}
	if paper.Year > 0 {
		det.Metadata["year"] = paper.Year
	}
	det.Metadata["citation_count"] = paper.CitationCount
	return det
}

func packageDetection(c urlkey.Classified, registry string) Detection {
	return Detection{
		Name:       c.ID,
		EntityType: ent.TypeTool,
		Confidence: 0.9,
		Source:     ent.SourceURLDetected,
		MatchType:  MatchURL,
		Metadata: map[string]any{
			ent.MetaURL:      c.Raw,
			ent.MetaRegistry: registry,
		},
	}
}

func surroundingText(text string, start, end int) string {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextRadius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

func clipText(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
