package contents

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// ContentFilter narrows List results. Zero values mean "no filter".
type ContentFilter struct {
	Types    []string
	Statuses []string
	Tiers    []string
	Tag      string
	Author   string
	Search   string
	Limit    int
	Offset   int
}

// TagCount is one tag with its usage count across live contents.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

type ContentRepo interface {
	Create(dbc dbctx.Context, items []*types.Content) ([]*types.Content, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Content, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Content, error)
	GetByResourceKey(dbc dbctx.Context, resourceKey string) (*types.Content, error)
	GetByResourceKeys(dbc dbctx.Context, resourceKeys []string) ([]*types.Content, error)
	List(dbc dbctx.Context, filter ContentFilter) ([]*types.Content, int64, error)
	DistinctTags(dbc dbctx.Context, limit int) ([]string, error)
	TagCounts(dbc dbctx.Context, limit int) ([]TagCount, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	ListByPipelineVersionNot(dbc dbctx.Context, currentVersion string, limit int) ([]*types.Content, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
	CountCompletedByPipelineVersion(dbc dbctx.Context) (map[string]int64, error)
}

type contentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentRepo(db *gorm.DB, baseLog *logger.Logger) ContentRepo {
	return &contentRepo{
		db:  db,
		log: baseLog.With("repo", "ContentRepo"),
	}
}

func (r *contentRepo) Create(dbc dbctx.Context, items []*types.Content) ([]*types.Content, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return []*types.Content{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *contentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Content, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Content
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Content, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Content
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *contentRepo) GetByResourceKey(dbc dbctx.Context, resourceKey string) (*types.Content, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	resourceKey = strings.TrimSpace(resourceKey)
	if resourceKey == "" {
		return nil, nil
	}
	var row types.Content
	err := transaction.WithContext(dbc.Ctx).
		Where(datatypes.JSONQuery("metadata").Equals(resourceKey, content.MetaResourceKey)).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *contentRepo) GetByResourceKeys(dbc dbctx.Context, resourceKeys []string) ([]*types.Content, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Content
	if len(resourceKeys) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("metadata->>'resource_key' IN ?", resourceKeys).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentRepo) List(dbc dbctx.Context, filter ContentFilter) ([]*types.Content, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Content{})
	if len(filter.Types) > 0 {
		q = q.Where("content_type IN ?", filter.Types)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("processing_status IN ?", filter.Statuses)
	}
	if len(filter.Tiers) > 0 {
		q = q.Where("tier IN ?", filter.Tiers)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		needle, err := json.Marshal([]string{tag})
		if err != nil {
			return nil, 0, err
		}
		q = q.Where("tags @> ?", string(needle))
	}
	if author := strings.TrimSpace(filter.Author); author != "" {
		q = q.Where("author = ?", author)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		q = q.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	var out []*types.Content
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// DistinctTags returns the tag vocabulary across live contents, most used
// first, ties alphabetical. It feeds the enrichment prompt.
func (r *contentRepo) DistinctTags(dbc dbctx.Context, limit int) ([]string, error) {
	rows, err := r.TagCounts(dbc, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Tag)
	}
	return out, nil
}

// TagCounts returns the tag vocabulary with usage counts, most used first,
// ties alphabetical.
func (r *contentRepo) TagCounts(dbc dbctx.Context, limit int) ([]TagCount, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []TagCount
	if err := transaction.WithContext(dbc.Ctx).
		Raw(`SELECT tag, count(*) AS count
FROM content, jsonb_array_elements_text(content.tags) AS tag
WHERE content.deleted_at IS NULL
GROUP BY tag
ORDER BY count DESC, tag ASC
LIMIT ?`, limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *contentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Content{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *contentRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Content{}).Error
}

func (r *contentRepo) ListByPipelineVersionNot(dbc dbctx.Context, currentVersion string, limit int) ([]*types.Content, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Content
	err := transaction.WithContext(dbc.Ctx).
		Where("processing_status = ? AND (pipeline_version IS NULL OR pipeline_version <> ?)", content.StatusCompleted, currentVersion).
		Order("processed_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		ProcessingStatus string
		Count            int64
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Content{}).
		Select("processing_status, count(*) as count").
		Group("processing_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, row := range rows {
		out[row.ProcessingStatus] = row.Count
	}
	return out, nil
}

// CountCompletedByPipelineVersion feeds the drift report: completed records
// grouped by the version that processed them.
func (r *contentRepo) CountCompletedByPipelineVersion(dbc dbctx.Context) (map[string]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		PipelineVersion string
		Count           int64
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Content{}).
		Select("coalesce(pipeline_version, '') as pipeline_version, count(*) as count").
		Where("processing_status = ?", content.StatusCompleted).
		Group("pipeline_version").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, row := range rows {
		out[row.PipelineVersion] = row.Count
	}
	return out, nil
}
