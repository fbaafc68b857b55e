package retrieve

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/data/repos/contents"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
)

// chunkHit is one scored chunk before the per-content collapse.
type chunkHit struct {
	chunk *types.ContentChunk
	score float64
}

// contentHit is the collapsed best chunk for one content.
type contentHit struct {
	content *types.Content
	score   float64
	snippet string
}

func (h contentHit) source() Source {
	return Source{
		ID:          h.content.ID,
		ContentType: h.content.ContentType,
		Title:       h.content.Title,
		Score:       h.score,
		Snippet:     trimToChars(h.snippet, snippetCap),
	}
}

// searchAll runs the search stage for every expanded query and fuses the
// per-query rankings with Reciprocal Rank Fusion. Individual subquery
// failures degrade the fusion; only a total failure fails the request.
func (r *retriever) searchAll(ctx context.Context, queries []string, opt Query, limit int) ([]contentHit, error) {
	lists := make([][]contentHit, len(queries))
	errs := make([]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.parallel)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			hits, err := r.searchOne(gctx, q, opt, limit)
			if err != nil {
				errs[i] = err
				r.log.Warn("subquery search failed", "query", q, "error", err)
				return nil
			}
			lists[i] = hits
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed == len(queries) {
		return nil, firstErr
	}

	return fuseRRF(lists, 2*limit), nil
}

// searchOne embeds the query, cosine-scores the candidate pool, and falls
// back to lexical full-text search when the dense path yields nothing.
// Results collapse to the best chunk per content, best first, capped at
// twice the requested limit.
func (r *retriever) searchOne(ctx context.Context, query string, opt Query, limit int) ([]contentHit, error) {
	dbc := dbctx.Context{Ctx: ctx}
	chunkLimit := 2 * limit

	tiers := content.TiersAtOrAbove(opt.TierMin)
	var typeFilter []string
	if t := strings.TrimSpace(opt.ContentType); t != "" {
		typeFilter = []string{t}
	}

	var qEmb []float32
	embCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	embs, err := r.embedder.Embed(embCtx, []string{query})
	cancel()
	if err != nil {
		r.log.Warn("query embed failed, lexical only", "error", err)
	} else if len(embs) > 0 {
		qEmb = embs[0]
	}

	var hits []chunkHit
	if len(qEmb) > 0 {
		rows, err := r.chunks.DenseCandidates(dbc, repos.ChunkCandidateFilter{
			IDs:          r.vectorCandidates(ctx, qEmb, 2*chunkLimit),
			ContentTypes: typeFilter,
			Tiers:        tiers,
			Limit:        r.cfg.candidatePool,
		})
		if err != nil {
			return nil, err
		}
		hits = scoreDense(rows, qEmb, r.cfg.simFloor)
		if len(hits) > chunkLimit {
			hits = hits[:chunkLimit]
		}
	}

	lexical := false
	if len(hits) == 0 {
		rows, err := r.chunks.SearchText(dbc, query, chunkLimit)
		if err != nil {
			return nil, err
		}
		hits = scoreLexical(rows)
		lexical = true
	}

	return r.collapse(dbc, hits, lexical, typeFilter, tiers)
}

// vectorCandidates asks the vector store for likely chunk ids. Any failure
// falls back to scanning the full SQL pool.
func (r *retriever) vectorCandidates(ctx context.Context, qEmb []float32, topK int) []uuid.UUID {
	if r.vec == nil {
		return nil
	}
	start := time.Now()
	vecCtx, cancel := context.WithTimeout(ctx, vectorTimeout)
	matches, err := r.vec.QueryMatches(vecCtx, r.cfg.namespace, qEmb, topK, nil)
	cancel()
	if err != nil {
		r.log.Warn("vector candidate query failed, scanning full pool",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil
	}
	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		id, err := uuid.Parse(strings.TrimSpace(m.ID))
		if err != nil || id == uuid.Nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// scoreDense cosine-scores the pool against the query embedding and keeps
// hits above the similarity floor, best first.
func scoreDense(rows []*types.ContentChunk, qEmb []float32, floor float64) []chunkHit {
	hits := make([]chunkHit, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		emb, err := contents.ParseEmbeddingJSON(row.Embedding)
		if err != nil || len(emb) == 0 || len(emb) != len(qEmb) {
			continue
		}
		score := cosine(qEmb, emb)
		if score < floor {
			continue
		}
		hits = append(hits, chunkHit{chunk: row, score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	return hits
}

// scoreLexical maps ts_rank order onto a descending pseudo-similarity so
// lexical hits sort and fuse like dense ones.
func scoreLexical(rows []*types.ContentChunk) []chunkHit {
	hits := make([]chunkHit, 0, len(rows))
	for i, row := range rows {
		if row == nil {
			continue
		}
		hits = append(hits, chunkHit{chunk: row, score: float64(len(rows)-i) / float64(len(rows))})
	}
	return hits
}

// collapse keeps the best chunk per content and hydrates content rows.
// Lexical hits bypass the SQL-side filters, so type and tier re-apply here.
func (r *retriever) collapse(dbc dbctx.Context, hits []chunkHit, lexical bool, typeFilter, tiers []string) ([]contentHit, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	best := map[uuid.UUID]chunkHit{}
	order := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		if h.chunk == nil {
			continue
		}
		cur, ok := best[h.chunk.ContentID]
		if !ok {
			best[h.chunk.ContentID] = h
			order = append(order, h.chunk.ContentID)
			continue
		}
		if h.score > cur.score {
			best[h.chunk.ContentID] = h
		}
	}

	rows, err := r.content.GetByIDs(dbc, order)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Content, len(rows))
	for _, c := range rows {
		if c != nil {
			byID[c.ID] = c
		}
	}

	out := make([]contentHit, 0, len(order))
	for _, id := range order {
		c, ok := byID[id]
		if !ok {
			continue
		}
		if lexical && !matchesFilters(c, typeFilter, tiers) {
			continue
		}
		h := best[id]
		out = append(out, contentHit{content: c, score: h.score, snippet: h.chunk.Text})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out, nil
}

func matchesFilters(c *types.Content, typeFilter, tiers []string) bool {
	if len(typeFilter) > 0 && !containsString(typeFilter, c.ContentType) {
		return false
	}
	if len(tiers) > 0 && !containsString(tiers, c.Tier) {
		return false
	}
	return true
}

// fuseRRF merges per-query rankings: each content accumulates 1/(k+rank)
// per list it appears in, rank 0-based. The highest-similarity snippet
// seen across lists survives the merge.
func fuseRRF(lists [][]contentHit, keep int) []contentHit {
	fusedScore := map[uuid.UUID]float64{}
	best := map[uuid.UUID]contentHit{}
	order := make([]uuid.UUID, 0)
	for _, list := range lists {
		for rank, hit := range list {
			if hit.content == nil {
				continue
			}
			id := hit.content.ID
			if _, ok := fusedScore[id]; !ok {
				order = append(order, id)
			}
			fusedScore[id] += 1.0 / (rrfK + float64(rank))
			if cur, ok := best[id]; !ok || hit.score > cur.score {
				best[id] = hit
			}
		}
	}

	out := make([]contentHit, 0, len(order))
	for _, id := range order {
		h := best[id]
		h.score = fusedScore[id]
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if keep > 0 && len(out) > keep {
		out = out[:keep]
	}
	return out
}
