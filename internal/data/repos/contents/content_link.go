package contents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type ContentLinkRepo interface {
	Create(dbc dbctx.Context, links []*types.ContentLink) ([]*types.ContentLink, error)
	GetBySourceContentIDs(dbc dbctx.Context, sourceIDs []uuid.UUID) ([]*types.ContentLink, error)
	GetByTargetContentIDs(dbc dbctx.Context, targetIDs []uuid.UUID) ([]*types.ContentLink, error)
	DeleteBySourceContentIDs(dbc dbctx.Context, sourceIDs []uuid.UUID) error
	SetTarget(dbc dbctx.Context, id uuid.UUID, targetContentID uuid.UUID) error
	ClearTargets(dbc dbctx.Context, targetContentID uuid.UUID) error
}

type contentLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentLinkRepo(db *gorm.DB, baseLog *logger.Logger) ContentLinkRepo {
	return &contentLinkRepo{
		db:  db,
		log: baseLog.With("repo", "ContentLinkRepo"),
	}
}

func (r *contentLinkRepo) Create(dbc dbctx.Context, links []*types.ContentLink) ([]*types.ContentLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(links) == 0 {
		return []*types.ContentLink{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *contentLinkRepo) GetBySourceContentIDs(dbc dbctx.Context, sourceIDs []uuid.UUID) ([]*types.ContentLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ContentLink
	if len(sourceIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("source_content_id IN ?", sourceIDs).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentLinkRepo) GetByTargetContentIDs(dbc dbctx.Context, targetIDs []uuid.UUID) ([]*types.ContentLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ContentLink
	if len(targetIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("target_content_id IN ?", targetIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentLinkRepo) DeleteBySourceContentIDs(dbc dbctx.Context, sourceIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sourceIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("source_content_id IN ?", sourceIDs).
		Delete(&types.ContentLink{}).Error
}

func (r *contentLinkRepo) SetTarget(dbc dbctx.Context, id uuid.UUID, targetContentID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || targetContentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.ContentLink{}).
		Where("id = ?", id).
		Update("target_content_id", targetContentID).Error
}

// ClearTargets detaches links pointing at a content that is being deleted.
func (r *contentLinkRepo) ClearTargets(dbc dbctx.Context, targetContentID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if targetContentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.ContentLink{}).
		Where("target_content_id = ?", targetContentID).
		Update("target_content_id", nil).Error
}
