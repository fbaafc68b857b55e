package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type CallerRepo interface {
	Create(dbc dbctx.Context, callers []*types.Caller) ([]*types.Caller, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Caller, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Caller, error)
	GetByKeyID(dbc dbctx.Context, keyID string) (*types.Caller, error)
	List(dbc dbctx.Context) ([]*types.Caller, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
}

type callerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCallerRepo(db *gorm.DB, baseLog *logger.Logger) CallerRepo {
	return &callerRepo{
		db:  db,
		log: baseLog.With("repo", "CallerRepo"),
	}
}

func (r *callerRepo) Create(dbc dbctx.Context, callers []*types.Caller) ([]*types.Caller, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if len(callers) == 0 {
		return []*types.Caller{}, nil
	}
	if err := txx.WithContext(dbc.Ctx).Create(&callers).Error; err != nil {
		return nil, err
	}
	return callers, nil
}

func (r *callerRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Caller, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Caller
	if len(ids) == 0 {
		return out, nil
	}
	if err := txx.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *callerRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Caller, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Caller
	if err := txx.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *callerRepo) GetByKeyID(dbc dbctx.Context, keyID string) (*types.Caller, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return nil, nil
	}
	var row types.Caller
	if err := txx.WithContext(dbc.Ctx).Where("key_id = ?", keyID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *callerRepo) List(dbc dbctx.Context) ([]*types.Caller, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Caller
	if err := txx.WithContext(dbc.Ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *callerRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
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
	return txx.WithContext(dbc.Ctx).
		Model(&types.Caller{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *callerRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return txx.WithContext(dbc.Ctx).Delete(&types.Caller{}, "id = ?", id).Error
}
