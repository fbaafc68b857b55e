package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type TagAliasRepo interface {
	GetByVariants(dbc dbctx.Context, variants []string) ([]*types.TagAlias, error)
	Upsert(dbc dbctx.Context, variant, canonical string) error
	IncrementUsage(dbc dbctx.Context, variants []string) error
	List(dbc dbctx.Context, limit, offset int) ([]*types.TagAlias, int64, error)
}

type tagAliasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTagAliasRepo(db *gorm.DB, baseLog *logger.Logger) TagAliasRepo {
	return &tagAliasRepo{
		db:  db,
		log: baseLog.With("repo", "TagAliasRepo"),
	}
}

func (r *tagAliasRepo) GetByVariants(dbc dbctx.Context, variants []string) ([]*types.TagAlias, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TagAlias
	if len(variants) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("variant IN ?", variants).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *tagAliasRepo) Upsert(dbc dbctx.Context, variant, canonical string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	variant = strings.TrimSpace(variant)
	canonical = strings.TrimSpace(canonical)
	if variant == "" || canonical == "" || variant == canonical {
		return nil
	}
	row := &types.TagAlias{
		ID:         uuid.New(),
		Variant:    variant,
		Canonical:  canonical,
		UsageCount: 1,
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "variant"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"canonical":   canonical,
				"usage_count": gorm.Expr("tag_alias.usage_count + 1"),
				"updated_at":  time.Now().UTC(),
			}),
		}).
		Create(row).Error
}

func (r *tagAliasRepo) IncrementUsage(dbc dbctx.Context, variants []string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(variants) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.TagAlias{}).
		Where("variant IN ?", variants).
		Updates(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *tagAliasRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.TagAlias, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var total int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.TagAlias{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var out []*types.TagAlias
	if err := transaction.WithContext(dbc.Ctx).
		Order("usage_count DESC, variant ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
