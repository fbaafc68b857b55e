package jobs

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/recall-backend/internal/domain"
	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type JobFilter struct {
	Statuses    []string
	JobTypes    []string
	ResourceKey string
	ContentID   *uuid.UUID
	Limit       int
	Offset      int
}

type PipelineJobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.PipelineJob) ([]*types.PipelineJob, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.PipelineJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PipelineJob, error)
	GetActiveByResourceKey(dbc dbctx.Context, resourceKey string) (*types.PipelineJob, error)
	GetLatestByResourceKey(dbc dbctx.Context, resourceKey string, jobType string) (*types.PipelineJob, error)
	GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.PipelineJob, error)
	List(dbc dbctx.Context, filter JobFilter) ([]*types.PipelineJob, int64, error)
	ClaimNextPending(dbc dbctx.Context) (*types.PipelineJob, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	GetStatus(dbc dbctx.Context, id uuid.UUID) (string, error)
	FailStaleProcessing(dbc dbctx.Context, staleAfter time.Duration) (int64, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type pipelineJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPipelineJobRepo(db *gorm.DB, baseLog *logger.Logger) PipelineJobRepo {
	return &pipelineJobRepo{
		db:  db,
		log: baseLog.With("repo", "PipelineJobRepo"),
	}
}

func (r *pipelineJobRepo) Create(dbc dbctx.Context, jobs []*types.PipelineJob) ([]*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.PipelineJob{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *pipelineJobRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PipelineJob
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

func (r *pipelineJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.PipelineJob
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *pipelineJobRepo) GetActiveByResourceKey(dbc dbctx.Context, resourceKey string) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	resourceKey = strings.TrimSpace(resourceKey)
	if resourceKey == "" {
		return nil, nil
	}
	var job types.PipelineJob
	err := transaction.WithContext(dbc.Ctx).
		Where("resource_key = ? AND status IN ?", resourceKey, domainjobs.ActiveStatuses).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *pipelineJobRepo) GetLatestByResourceKey(dbc dbctx.Context, resourceKey string, jobType string) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	resourceKey = strings.TrimSpace(resourceKey)
	if resourceKey == "" {
		return nil, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("resource_key = ?", resourceKey)
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	var job types.PipelineJob
	err := q.Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *pipelineJobRepo) GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var job types.PipelineJob
	err := transaction.WithContext(dbc.Ctx).
		Where("idempotency_key = ?", key).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *pipelineJobRepo) List(dbc dbctx.Context, filter JobFilter) ([]*types.PipelineJob, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.PipelineJob{})
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if len(filter.JobTypes) > 0 {
		q = q.Where("job_type IN ?", filter.JobTypes)
	}
	if key := strings.TrimSpace(filter.ResourceKey); key != "" {
		q = q.Where("resource_key = ?", key)
	}
	if filter.ContentID != nil && *filter.ContentID != uuid.Nil {
		q = q.Where("content_id = ?", *filter.ContentID)
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
	var out []*types.PipelineJob
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ClaimNextPending moves the oldest pending job into processing under a
// SKIP LOCKED row lock, so concurrent workers never claim the same job.
// Failed jobs are not reclaimed; reprocessing is an explicit caller action.
func (r *pipelineJobRepo) ClaimNextPending(dbc dbctx.Context) (*types.PipelineJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	var claimed *types.PipelineJob
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.PipelineJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", domainjobs.StatusPending).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.PipelineJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       domainjobs.StatusProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"started_at":   now,
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		// Mirror the claim onto the returned struct.
		job.Status = domainjobs.StatusProcessing
		job.Attempts++
		job.StartedAt = &now
		job.LockedAt = &now
		job.HeartbeatAt = &now
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *pipelineJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.PipelineJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateFieldsUnlessStatus applies updates only when the job is not in one of
// the disallowed statuses. It is how cancellation wins: a worker finishing a
// cancelled job updates with disallowed=[cancelled] and sees false back.
func (r *pipelineJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	q := transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *pipelineJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Where("id = ? AND status = ?", id, domainjobs.StatusProcessing).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

// GetStatus is the cheap read used at stage boundaries to observe a
// cancellation flag set while a stage was in flight.
func (r *pipelineJobRepo) GetStatus(dbc dbctx.Context, id uuid.UUID) (string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return "", nil
	}
	var row types.PipelineJob
	err := transaction.WithContext(dbc.Ctx).
		Select("id", "status").
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return "", err
	}
	if row.ID == uuid.Nil {
		return "", nil
	}
	return row.Status, nil
}

// FailStaleProcessing is the reaper: processing jobs whose heartbeat expired
// belong to crashed workers and transition to failed with a timeout code.
func (r *pipelineJobRepo) FailStaleProcessing(dbc dbctx.Context, staleAfter time.Duration) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if staleAfter <= 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	cutoff := now.Add(-staleAfter)
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Where("status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?", domainjobs.StatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":        domainjobs.StatusFailed,
			"error_code":    "WORKER_TIMEOUT",
			"error_message": "worker heartbeat expired",
			"error_stage":   gorm.Expr("stage"),
			"finished_at":   now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *pipelineJobRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.PipelineJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
