package retrieve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/llm"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/platform/pinecone"
)

// Query is one retrieval request. ContentType and TierMin are optional
// filters; TierMin keeps contents whose tier is at least as good as the
// given letter.
type Query struct {
	Query       string
	Limit       int
	ContentType string
	TierMin     string
}

// Source is one cited result.
type Source struct {
	ID          uuid.UUID `json:"id"`
	ContentType string    `json:"content_type"`
	Title       string    `json:"title"`
	Score       float64   `json:"score"`
	Snippet     string    `json:"snippet"`
}

// Timings reports per-stage wall time in milliseconds.
type Timings struct {
	ExpandMS     int64 `json:"expand_ms"`
	SearchMS     int64 `json:"search_ms"`
	RerankMS     int64 `json:"rerank_ms"`
	SynthesizeMS int64 `json:"synthesize_ms"`
	TotalMS      int64 `json:"total_ms"`
}

// Answer is the full agentic retrieval output. Sources are ordered best
// first; Answer cites them by their 1-based position.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Timings Timings  `json:"timings"`
}

// Retriever answers questions over the ingested corpus. Retrieve runs the
// full expand/search/rerank/synthesize pipeline; Search runs the search
// stage alone for a single query.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) (*Answer, error)
	Search(ctx context.Context, q Query) ([]Source, error)
}

// rrfK is the Reciprocal Rank Fusion constant: each content accumulates
// 1/(k+rank) per subquery ranking it appears in.
const rrfK = 60.0

// snippetCap bounds snippet text shown to the reranker, the synthesizer,
// and API callers.
const snippetCap = 400

// Stage timeouts. Retrieval degrades rather than letting one slow
// dependency stall the request.
const (
	embedTimeout      = 6 * time.Second
	vectorTimeout     = 2 * time.Second
	expandTimeout     = 10 * time.Second
	rerankTimeout     = 10 * time.Second
	synthesizeTimeout = 30 * time.Second
)

type retriever struct {
	log      *logger.Logger
	ai       llm.Generator
	embedder llm.Embedder
	reranker Reranker
	vec      pinecone.VectorStore
	chunks   repos.ContentChunkRepo
	content  repos.ContentRepo
	cfg      config
}

type config struct {
	namespace     string
	maxQueries    int
	simFloor      float64
	candidatePool int
	parallel      int
	defaultLimit  int
	maxLimit      int
}

func loadConfig() config {
	return config{
		namespace:     envutil.Str("VECTOR_NAMESPACE", "chunks"),
		maxQueries:    envutil.Int("RETRIEVE_MAX_QUERIES", 5),
		simFloor:      envutil.Float("RETRIEVE_SIM_FLOOR", 0.30),
		candidatePool: envutil.Int("RETRIEVE_CANDIDATE_POOL", 1200),
		parallel:      envutil.Int("RETRIEVE_PARALLEL", 4),
		defaultLimit:  envutil.Int("RETRIEVE_DEFAULT_LIMIT", 10),
		maxLimit:      envutil.Int("RETRIEVE_MAX_LIMIT", 50),
	}
}

// NewRetriever wires the retrieval service. The vector store is optional;
// without one every dense search scans the SQL candidate pool.
func NewRetriever(log *logger.Logger, ai llm.Generator, embedder llm.Embedder, reranker Reranker, vec pinecone.VectorStore, chunks repos.ContentChunkRepo, content repos.ContentRepo) (Retriever, error) {
	if log == nil {
		return nil, fmt.Errorf("retriever requires logger")
	}
	if ai == nil {
		return nil, fmt.Errorf("retriever requires a generator")
	}
	if embedder == nil {
		return nil, fmt.Errorf("retriever requires an embedder")
	}
	if reranker == nil {
		return nil, fmt.Errorf("retriever requires a reranker")
	}
	if chunks == nil {
		return nil, fmt.Errorf("retriever requires content chunk repo")
	}
	if content == nil {
		return nil, fmt.Errorf("retriever requires content repo")
	}
	return &retriever{
		log:      log.With("service", "Retriever"),
		ai:       ai,
		embedder: embedder,
		reranker: reranker,
		vec:      vec,
		chunks:   chunks,
		content:  content,
		cfg:      loadConfig(),
	}, nil
}

func (r *retriever) Retrieve(ctx context.Context, q Query) (*Answer, error) {
	start := time.Now()
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	limit := r.normalizeLimit(q.Limit)
	metrics := observability.Current()

	out := &Answer{Sources: []Source{}}

	expandStart := time.Now()
	queries := r.expand(ctx, query)
	out.Timings.ExpandMS = time.Since(expandStart).Milliseconds()
	expandStatus := "ok"
	if len(queries) <= 1 {
		expandStatus = "degraded"
	}
	metrics.ObserveRetrieveStage("expand", expandStatus, time.Since(expandStart), len(queries))

	searchStart := time.Now()
	fused, err := r.searchAll(ctx, queries, q, limit)
	out.Timings.SearchMS = time.Since(searchStart).Milliseconds()
	if err != nil {
		metrics.ObserveRetrieveStage("search", "error", time.Since(searchStart), 0)
		return nil, err
	}
	metrics.ObserveRetrieveStage("search", "ok", time.Since(searchStart), len(fused))

	rerankStart := time.Now()
	sources, degraded := r.rerankSources(ctx, query, fused)
	if len(sources) > limit {
		sources = sources[:limit]
	}
	out.Timings.RerankMS = time.Since(rerankStart).Milliseconds()
	rerankStatus := "ok"
	if degraded {
		rerankStatus = "degraded"
	}
	metrics.ObserveRetrieveStage("rerank", rerankStatus, time.Since(rerankStart), len(sources))

	synthStart := time.Now()
	out.Answer = r.synthesize(ctx, query, sources)
	out.Timings.SynthesizeMS = time.Since(synthStart).Milliseconds()
	synthStatus := "ok"
	if out.Answer == "" {
		synthStatus = "empty"
		if len(sources) > 0 {
			synthStatus = "degraded"
		}
	}
	metrics.ObserveRetrieveStage("synthesize", synthStatus, time.Since(synthStart), len(sources))

	out.Sources = sources
	out.Timings.TotalMS = time.Since(start).Milliseconds()

	r.log.Info("agentic retrieval finished",
		"queries", len(queries),
		"sources", len(sources),
		"answered", out.Answer != "",
		"total_ms", out.Timings.TotalMS)
	return out, nil
}

func (r *retriever) Search(ctx context.Context, q Query) ([]Source, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	limit := r.normalizeLimit(q.Limit)
	metrics := observability.Current()

	start := time.Now()
	hits, err := r.searchOne(ctx, query, q, limit)
	if err != nil {
		metrics.ObserveRetrieveStage("search", "error", time.Since(start), 0)
		return nil, err
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, h.source())
	}
	metrics.ObserveRetrieveStage("search", "ok", time.Since(start), len(sources))
	return sources, nil
}

func (r *retriever) normalizeLimit(limit int) int {
	if limit <= 0 {
		return r.cfg.defaultLimit
	}
	if limit > r.cfg.maxLimit {
		return r.cfg.maxLimit
	}
	return limit
}

// rerankSources reorders fused hits with the reranker. A failed rerank
// keeps the fused order; snippets the model skipped follow the ranked ones
// in fused order.
func (r *retriever) rerankSources(ctx context.Context, query string, fused []contentHit) ([]Source, bool) {
	sources := make([]Source, 0, len(fused))
	for _, h := range fused {
		sources = append(sources, h.source())
	}
	if len(sources) < 2 {
		return sources, false
	}

	snippets := make([]string, 0, len(sources))
	for _, s := range sources {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = "Untitled"
		}
		snippets = append(snippets, title+"\n"+s.Snippet)
	}

	ranked, err := r.reranker.Rerank(ctx, query, snippets)
	if err != nil {
		r.log.Warn("rerank failed, keeping fused order", "error", err)
		return sources, true
	}

	out := make([]Source, 0, len(sources))
	used := make(map[int]bool, len(sources))
	for _, rs := range ranked {
		if rs.Index < 0 || rs.Index >= len(sources) || used[rs.Index] {
			continue
		}
		src := sources[rs.Index]
		src.Score = rs.Score
		out = append(out, src)
		used[rs.Index] = true
	}
	for i, s := range sources {
		if !used[i] {
			out = append(out, s)
		}
	}
	return out, false
}
