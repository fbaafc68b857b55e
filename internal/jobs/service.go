package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	types "github.com/yungbote/recall-backend/internal/domain"
	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
	"github.com/yungbote/recall-backend/internal/jobs/runtime"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/realtime"
)

// Submission is a request to run the enrichment pipeline over one content
// record. ResourceKey dedups: at most one active job per key.
type Submission struct {
	ContentID      uuid.UUID
	ResourceKey    string
	ContentType    string
	Title          string
	Text           string
	JobType        string
	IdempotencyKey string
}

// DriftReport groups completed content by pipeline_version so stale records
// can be targeted for reprocessing.
type DriftReport struct {
	CurrentVersion string           `json:"current_version"`
	Versions       map[string]int64 `json:"versions"`
	StaleCount     int64            `json:"stale_count"`
}

type Service interface {
	Submit(dbc dbctx.Context, sub Submission) (*types.PipelineJob, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.PipelineJob, error)
	Get(dbc dbctx.Context, jobID uuid.UUID) (*types.PipelineJob, error)
	List(dbc dbctx.Context, filter repos.JobFilter) ([]*types.PipelineJob, int64, error)
	Drift(dbc dbctx.Context) (*DriftReport, error)
	PipelineVersion() string
}

type service struct {
	db          *gorm.DB
	log         *logger.Logger
	jobs        repos.PipelineJobRepo
	contents    repos.ContentRepo
	notify      runtime.Notifier
	enabled     bool
	version     string
	defaultTier string
}

func NewService(db *gorm.DB, baseLog *logger.Logger, jobRepo repos.PipelineJobRepo, contentRepo repos.ContentRepo, notify runtime.Notifier) (Service, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	if jobRepo == nil {
		return nil, fmt.Errorf("pipeline job repo required")
	}
	return &service{
		db:          db,
		log:         baseLog.With("service", "JobService"),
		jobs:        jobRepo,
		contents:    contentRepo,
		notify:      notify,
		enabled:     envutil.Bool("UNIFIED_PIPELINE_ENABLED", true),
		version:     envutil.Str("PIPELINE_VERSION", "3"),
		defaultTier: envutil.Str("PIPELINE_DATA_TIER", domainjobs.DataTierFull),
	}, nil
}

func (s *service) PipelineVersion() string { return s.version }

// Submit enqueues a pipeline job for the submission's resource key. When an
// active job already covers the key, that job is returned instead of a new
// one; the partial unique index backstops the read-then-create race.
func (s *service) Submit(dbc dbctx.Context, sub Submission) (*types.PipelineJob, error) {
	if !s.enabled {
		return nil, nil
	}
	key := strings.TrimSpace(sub.ResourceKey)
	if key == "" {
		return nil, fmt.Errorf("missing resource_key")
	}
	if sub.ContentID == uuid.Nil {
		return nil, fmt.Errorf("missing content_id")
	}
	jobType := strings.TrimSpace(sub.JobType)
	if jobType == "" {
		jobType = domainjobs.TypeUnifiedEnrich
	}

	if idem := strings.TrimSpace(sub.IdempotencyKey); idem != "" {
		existing, err := s.jobs.GetByIdempotencyKey(dbc, idem)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	active, err := s.jobs.GetActiveByResourceKey(dbc, key)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	job := &types.PipelineJob{
		ID:              uuid.New(),
		ResourceKey:     key,
		ContentID:       &sub.ContentID,
		JobType:         jobType,
		Status:          domainjobs.StatusPending,
		Stage:           "",
		PipelineVersion: s.version,
		DataTier:        s.defaultTier,
		IdempotencyKey:  strings.TrimSpace(sub.IdempotencyKey),
		Metadata:        s.buildMetadata(dbc, sub),
		Result:          datatypes.JSON([]byte(`{}`)),
	}

	if _, err := s.jobs.Create(dbc, []*types.PipelineJob{job}); err != nil {
		if isUniqueViolation(err) {
			// Lost the race; the winner holds the active slot.
			winner, rerr := s.jobs.GetActiveByResourceKey(dbc, key)
			if rerr != nil {
				return nil, rerr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}

	s.log.Info("Pipeline job submitted",
		"job_id", job.ID,
		"job_type", jobType,
		"resource_key", key,
		"content_id", sub.ContentID,
	)
	s.publish(dbc, job, "")
	return job, nil
}

// buildMetadata assembles the job payload. The full data tier inlines the
// content text; compact relies on the blob store copy at run time.
func (s *service) buildMetadata(dbc dbctx.Context, sub Submission) datatypes.JSON {
	payload := map[string]any{
		"content_id":   sub.ContentID.String(),
		"content_type": sub.ContentType,
		"title":        sub.Title,
		"resource_key": strings.TrimSpace(sub.ResourceKey),
	}
	if s.defaultTier == domainjobs.DataTierFull && sub.Text != "" {
		payload["text"] = sub.Text
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	b, _ := json.Marshal(payload)
	return datatypes.JSON(b)
}

// Cancel flips an active job to cancelled. Terminal jobs are a no-op that
// returns the current state; a running stage observes the flag at its next
// boundary.
func (s *service) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.PipelineJob, error) {
	job, err := s.jobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if domainjobs.Terminal(job.Status) {
		return job, nil
	}

	now := time.Now().UTC()
	ok, err := s.jobs.UpdateFieldsUnlessStatus(dbc, jobID,
		[]string{domainjobs.StatusCompleted, domainjobs.StatusFailed, domainjobs.StatusCancelled},
		map[string]interface{}{
			"status":      domainjobs.StatusCancelled,
			"finished_at": now,
			"locked_at":   nil,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		// Finished in the window between read and update.
		return s.jobs.GetByID(dbc, jobID)
	}

	job.Status = domainjobs.StatusCancelled
	job.FinishedAt = &now
	job.LockedAt = nil
	s.log.Info("Pipeline job cancelled", "job_id", jobID)
	s.publish(dbc, job, "")
	return job, nil
}

func (s *service) Get(dbc dbctx.Context, jobID uuid.UUID) (*types.PipelineJob, error) {
	return s.jobs.GetByID(dbc, jobID)
}

func (s *service) List(dbc dbctx.Context, filter repos.JobFilter) ([]*types.PipelineJob, int64, error) {
	return s.jobs.List(dbc, filter)
}

// Drift counts completed content per pipeline_version. Anything not on the
// configured current version is stale.
func (s *service) Drift(dbc dbctx.Context) (*DriftReport, error) {
	if s.contents == nil {
		return nil, fmt.Errorf("content repo not configured")
	}
	versions, err := s.contents.CountCompletedByPipelineVersion(dbc)
	if err != nil {
		return nil, err
	}
	report := &DriftReport{
		CurrentVersion: s.version,
		Versions:       versions,
	}
	for v, n := range versions {
		if v != s.version {
			report.StaleCount += n
		}
	}
	return report, nil
}

func (s *service) publish(dbc dbctx.Context, job *types.PipelineJob, msg string) {
	if s.notify == nil || job == nil {
		return
	}
	_ = s.notify.Publish(ctxutil.Default(dbc.Ctx), realtime.JobEvent{
		JobID:     job.ID,
		ContentID: job.ContentID,
		JobType:   job.JobType,
		Status:    job.Status,
		Stage:     job.Stage,
		Progress:  job.Progress,
		Message:   msg,
		ErrorCode: job.ErrorCode,
		EmittedAt: time.Now().UTC(),
	})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// Wrapped errors can lose the pg type.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlstate 23505") || strings.Contains(msg, "duplicate key")
}
