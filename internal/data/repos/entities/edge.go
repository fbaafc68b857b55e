package entities

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type ContentEntityEdgeRepo interface {
	Upsert(dbc dbctx.Context, edges []*types.ContentEntityEdge) error
	GetByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) ([]*types.ContentEntityEdge, error)
	GetByEntityIDs(dbc dbctx.Context, entityIDs []uuid.UUID) ([]*types.ContentEntityEdge, error)
	DeleteByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) error
	DeleteByEntityIDs(dbc dbctx.Context, entityIDs []uuid.UUID) error
	CountByEntityIDs(dbc dbctx.Context, entityIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type contentEntityEdgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentEntityEdgeRepo(db *gorm.DB, baseLog *logger.Logger) ContentEntityEdgeRepo {
	return &contentEntityEdgeRepo{
		db:  db,
		log: baseLog.With("repo", "ContentEntityEdgeRepo"),
	}
}

// Upsert writes edges with last-write-wins semantics on the (content, entity)
// pair, so re-enrichment refreshes edge type and confidence in place.
func (r *contentEntityEdgeRepo) Upsert(dbc dbctx.Context, edges []*types.ContentEntityEdge) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(edges) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_id"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"edge_type", "confidence", "source"}),
		}).
		Create(&edges).Error
}

func (r *contentEntityEdgeRepo) GetByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) ([]*types.ContentEntityEdge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ContentEntityEdge
	if len(contentIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("content_id IN ?", contentIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentEntityEdgeRepo) GetByEntityIDs(dbc dbctx.Context, entityIDs []uuid.UUID) ([]*types.ContentEntityEdge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ContentEntityEdge
	if len(entityIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("entity_id IN ?", entityIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentEntityEdgeRepo) DeleteByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(contentIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("content_id IN ?", contentIDs).
		Delete(&types.ContentEntityEdge{}).Error
}

func (r *contentEntityEdgeRepo) DeleteByEntityIDs(dbc dbctx.Context, entityIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(entityIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("entity_id IN ?", entityIDs).
		Delete(&types.ContentEntityEdge{}).Error
}

func (r *contentEntityEdgeRepo) CountByEntityIDs(dbc dbctx.Context, entityIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := map[uuid.UUID]int64{}
	if len(entityIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		EntityID uuid.UUID
		Count    int64
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.ContentEntityEdge{}).
		Select("entity_id, count(*) as count").
		Where("entity_id IN ?", entityIDs).
		Group("entity_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.EntityID] = row.Count
	}
	return out, nil
}
