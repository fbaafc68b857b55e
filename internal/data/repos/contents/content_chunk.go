package contents

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// ChunkCandidateFilter narrows the pool DenseCandidates scans. Zero values
// mean "no filter"; IDs constrains the pool to a pre-selected chunk set
// (vector-store hits).
type ChunkCandidateFilter struct {
	IDs          []uuid.UUID
	ContentTypes []string
	Tiers        []string
	Limit        int
}

type ContentChunkRepo interface {
	Create(dbc dbctx.Context, chunks []*types.ContentChunk) ([]*types.ContentChunk, error)
	GetByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) ([]*types.ContentChunk, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ContentChunk, error)
	DeleteByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) error
	SearchText(dbc dbctx.Context, query string, limit int) ([]*types.ContentChunk, error)
	DenseCandidates(dbc dbctx.Context, filter ChunkCandidateFilter) ([]*types.ContentChunk, error)
}

type contentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentChunkRepo(db *gorm.DB, baseLog *logger.Logger) ContentChunkRepo {
	return &contentChunkRepo{
		db:  db,
		log: baseLog.With("repo", "ContentChunkRepo"),
	}
}

func (r *contentChunkRepo) Create(dbc dbctx.Context, chunks []*types.ContentChunk) ([]*types.ContentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.ContentChunk{}, nil
	}

	// Keep batches small because Text is large
	const batchSize = 100

	if err := transaction.WithContext(dbc.Ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *contentChunkRepo) GetByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) ([]*types.ContentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ContentChunk
	if len(contentIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("content_id IN ?", contentIDs).
		Order("content_id, chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contentChunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ContentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ContentChunk
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contentChunkRepo) DeleteByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(contentIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("content_id IN ?", contentIDs).
		Delete(&types.ContentChunk{}).Error
}

// DenseCandidates returns embedded chunks for in-process cosine scoring,
// newest first. The join drops chunks whose parent content is soft-deleted.
func (r *contentChunkRepo) DenseCandidates(dbc dbctx.Context, filter ChunkCandidateFilter) ([]*types.ContentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	const maxPool = 1200

	limit := filter.Limit
	if limit <= 0 || limit > maxPool {
		limit = maxPool
	}

	q := transaction.WithContext(dbc.Ctx).
		Model(&types.ContentChunk{}).
		Select("content_chunk.*").
		Joins("JOIN content ON content.id = content_chunk.content_id AND content.deleted_at IS NULL").
		Where("content_chunk.embedding <> '[]'::jsonb")
	if len(filter.IDs) > 0 {
		q = q.Where("content_chunk.id IN ?", filter.IDs)
	}
	if len(filter.ContentTypes) > 0 {
		q = q.Where("content.content_type IN ?", filter.ContentTypes)
	}
	if len(filter.Tiers) > 0 {
		q = q.Where("content.tier IN ?", filter.Tiers)
	}

	var results []*types.ContentChunk
	if err := q.Order("content_chunk.created_at DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contentChunkRepo) SearchText(dbc dbctx.Context, query string, limit int) ([]*types.ContentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	query = strings.TrimSpace(query)
	var results []*types.ContentChunk
	if query == "" {
		return results, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("to_tsvector('english', text) @@ websearch_to_tsquery('english', ?)", query).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "ts_rank(to_tsvector('english', text), websearch_to_tsquery('english', ?)) DESC",
			Vars:               []interface{}{query},
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ParseEmbeddingJSON decodes a jsonb embedding column value.
func ParseEmbeddingJSON(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// MustEmbeddingJSON encodes an embedding for the jsonb column. A nil slice
// encodes as the empty-array sentinel the dense pool query excludes.
func MustEmbeddingJSON(v []float32) datatypes.JSON {
	if len(v) == 0 {
		return datatypes.JSON([]byte(`[]`))
	}
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}
