package unified_enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/recall-backend/internal/data/repos/contents"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/enrich"
	"github.com/yungbote/recall-backend/internal/ingest/urlkey"
	jobrt "github.com/yungbote/recall-backend/internal/jobs/runtime"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/pinecone"
)

type persistCounts struct {
	chunks int
	links  int
}

/*
persist writes every enrichment output in replace-don't-append order:

 1. chunk the text and embed the batches,
 2. delete-then-insert chunk rows (dense 0-based indexes),
 3. mirror chunk vectors (best effort),
 4. delete-then-insert in-document links,
 5. update the content record, including metadata.unified_result.

Two consecutive runs over identical inputs converge to the same row sets.
*/
func (p *Pipeline) persist(dbc dbctx.Context, jc *jobrt.Context, row *types.Content, text string, res *enrich.Result) (persistCounts, error) {
	var out persistCounts

	pieces := enrich.ChunkText(text, p.chunkMax)
	embs, err := p.embedChunks(jc.Ctx, pieces)
	if err != nil {
		return out, fmt.Errorf("embed chunks: %w", err)
	}

	oldChunks, err := p.chunks.GetByContentIDs(dbc, []uuid.UUID{row.ID})
	if err != nil {
		return out, fmt.Errorf("load prior chunks: %w", err)
	}
	if err := p.chunks.DeleteByContentIDs(dbc, []uuid.UUID{row.ID}); err != nil {
		return out, fmt.Errorf("delete prior chunks: %w", err)
	}

	chunkRows := make([]*types.ContentChunk, 0, len(pieces))
	for i, ch := range pieces {
		cr := &types.ContentChunk{
			ID:            uuid.New(),
			ContentID:     row.ID,
			ChunkIndex:    i,
			Text:          ch.Text,
			TokenEstimate: ch.TokenEstimate,
		}
		if i < len(embs) && len(embs[i]) > 0 {
			cr.Embedding = contents.MustEmbeddingJSON(embs[i])
		}
		chunkRows = append(chunkRows, cr)
	}
	if len(chunkRows) > 0 {
		if _, err := p.chunks.Create(dbc, chunkRows); err != nil {
			return out, fmt.Errorf("write chunks: %w", err)
		}
	}
	out.chunks = len(chunkRows)
	if m := observability.Current(); m != nil {
		m.AddChunksWritten(row.ContentType, len(chunkRows))
	}

	p.syncVectors(jc.Ctx, row, oldChunks, chunkRows)

	linkCount, err := p.replaceLinks(dbc, row.ID, text)
	if err != nil {
		return out, fmt.Errorf("replace links: %w", err)
	}
	out.links = linkCount

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"tags":              jsonStrings(res.AllTags()),
		"tier":              res.Tier,
		"quality_score":     res.QualityScore,
		"summary":           res.Summary,
		"processing_status": content.StatusCompleted,
		"pipeline_version":  jc.Job.PipelineVersion,
		"processed_at":      now,
		"metadata":          p.mergedMetadata(row, res),
		"updated_at":        now,
	}
	if err := p.contents.UpdateFields(dbc, row.ID, updates); err != nil {
		return out, fmt.Errorf("update content: %w", err)
	}
	return out, nil
}

// embedChunks embeds chunk texts in fixed-size batches. No embedder means
// lexical-only retrieval; that is a configuration, not an error.
func (p *Pipeline) embedChunks(ctx context.Context, pieces []enrich.Chunk) ([][]float32, error) {
	if p.embedder == nil || len(pieces) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(pieces))
	for start := 0; start < len(pieces); start += p.embedBatch {
		end := start + p.embedBatch
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := make([]string, 0, end-start)
		for _, ch := range pieces[start:end] {
			batch = append(batch, ch.Text)
		}
		embs, err := p.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, embs...)
	}
	return out, nil
}

// syncVectors mirrors chunk embeddings into the vector store: stale ids out,
// fresh vectors in. The jsonb embedding column stays authoritative, so any
// failure here is logged and retrieval degrades to the SQL pool.
func (p *Pipeline) syncVectors(ctx context.Context, row *types.Content, oldChunks, newChunks []*types.ContentChunk) {
	if p.vectors == nil {
		return
	}
	if len(oldChunks) > 0 {
		ids := make([]string, 0, len(oldChunks))
		for _, ch := range oldChunks {
			ids = append(ids, ch.ID.String())
		}
		if err := p.vectors.DeleteIDs(ctx, p.vectorNS, ids); err != nil {
			p.log.Warn("stale vector delete failed", "content_id", row.ID, "vectors", len(ids), "error", err)
		}
	}

	vectors := make([]pinecone.Vector, 0, len(newChunks))
	for _, ch := range newChunks {
		emb, err := contents.ParseEmbeddingJSON(ch.Embedding)
		if err != nil || len(emb) == 0 {
			continue
		}
		vectors = append(vectors, pinecone.Vector{
			ID:     ch.ID.String(),
			Values: emb,
			Metadata: map[string]any{
				"content_id":   row.ID.String(),
				"chunk_index":  ch.ChunkIndex,
				"content_type": row.ContentType,
			},
		})
	}
	if len(vectors) == 0 {
		return
	}
	if err := p.vectors.Upsert(ctx, p.vectorNS, vectors); err != nil {
		p.log.Warn("vector upsert failed", "content_id", row.ID, "vectors", len(vectors), "error", err)
	}
}

var (
	wikiLinkRe     = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)\s]+)\)`)
)

const maxLinksPerContent = 200

// replaceLinks deletes the source's link rows and re-extracts them from the
// text. Markdown targets that classify to a known resource_key resolve to
// their content row; wiki links stay unresolved until a matching title is
// ingested.
func (p *Pipeline) replaceLinks(dbc dbctx.Context, sourceID uuid.UUID, text string) (int, error) {
	if err := p.links.DeleteBySourceContentIDs(dbc, []uuid.UUID{sourceID}); err != nil {
		return 0, err
	}

	rows := make([]*types.ContentLink, 0, 16)
	seen := map[string]bool{}
	add := func(linkText, linkType string, target *uuid.UUID) {
		if len(rows) >= maxLinksPerContent {
			return
		}
		linkText = strings.TrimSpace(linkText)
		if linkText == "" {
			return
		}
		key := linkType + "\x00" + strings.ToLower(linkText)
		if seen[key] {
			return
		}
		seen[key] = true
		rows = append(rows, &types.ContentLink{
			ID:              uuid.New(),
			SourceContentID: sourceID,
			TargetContentID: target,
			LinkText:        linkText,
			LinkType:        linkType,
		})
	}

	for _, m := range wikiLinkRe.FindAllStringSubmatch(text, -1) {
		inner := m[1]
		// [[target|label]] keeps the target side.
		if i := strings.IndexByte(inner, '|'); i >= 0 {
			inner = inner[:i]
		}
		add(inner, content.LinkTypeWiki, nil)
	}

	for _, m := range markdownLinkRe.FindAllStringSubmatch(text, -1) {
		label, target := m[1], m[2]
		if strings.TrimSpace(label) == "" {
			label = target
		}
		add(label, content.LinkTypeMarkdown, p.resolveLinkTarget(dbc, sourceID, target))
	}

	if len(rows) == 0 {
		return 0, nil
	}
	if _, err := p.links.Create(dbc, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// resolveLinkTarget maps a linked URL onto an ingested content row via its
// resource key. Unresolvable targets (never ingested, self-reference,
// unclassifiable) return nil.
func (p *Pipeline) resolveLinkTarget(dbc dbctx.Context, sourceID uuid.UUID, rawURL string) *uuid.UUID {
	classified, err := urlkey.Classify(rawURL)
	if err != nil {
		return nil
	}
	key, err := urlkey.ResourceKey(classified)
	if err != nil {
		return nil
	}
	row, err := p.contents.GetByResourceKey(dbc, key)
	if err != nil || row == nil || row.ID == sourceID {
		return nil
	}
	id := row.ID
	return &id
}

// mergedMetadata layers the unified result onto the existing content
// metadata without dropping ingest-time keys.
func (p *Pipeline) mergedMetadata(row *types.Content, res *enrich.Result) datatypes.JSON {
	meta := map[string]any{}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			p.log.Warn("content metadata decode failed, rebuilding", "content_id", row.ID, "error", err)
			meta = map[string]any{}
		}
	}
	meta[content.MetaUnifiedResult] = res
	b, err := json.Marshal(meta)
	if err != nil {
		b, _ = json.Marshal(map[string]any{content.MetaUnifiedResult: res})
	}
	return datatypes.JSON(b)
}

func jsonStrings(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return datatypes.JSON(b)
}
