package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/jobs/runtime"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// Worker polls for pending pipeline jobs and runs their registered handlers.
// One reaper loop per process fails processing jobs whose heartbeat expired,
// so a crashed worker never wedges a resource_key.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.PipelineJobRepo
	registry *runtime.Registry
	notify   runtime.Notifier

	concurrency int
	pollEvery   time.Duration
	heartbeat   time.Duration
	staleAfter  time.Duration
	maxAttempts int

	wg sync.WaitGroup
}

func New(db *gorm.DB, baseLog *logger.Logger, repo repos.PipelineJobRepo, registry *runtime.Registry, notify runtime.Notifier) *Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		db:          db,
		log:         baseLog.With("component", "JobWorker"),
		repo:        repo,
		registry:    registry,
		notify:      notify,
		concurrency: concurrency,
		pollEvery:   time.Second,
		heartbeat:   envutil.Dur("WORKER_HEARTBEAT_INTERVAL", 15*time.Second),
		staleAfter:  envutil.Dur("JOB_STALE_AFTER", 10*time.Minute),
		maxAttempts: envutil.Int("WORKER_MAX_ATTEMPTS", 5),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.concurrency,
		"job_types", w.registry.Types(),
	)

	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reapLoop(ctx)
	}()
}

// Wait blocks until all loops finished their in-flight job. Callers cancel
// the Start context first.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextPending(dbctx.Context{Ctx: ctx})
			if err != nil {
				w.log.Warn("ClaimNextPending failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.runOne(ctx, workerID, job)
		}
	}
}

func (w *Worker) runOne(ctx context.Context, workerID int, job *types.PipelineJob) {
	started := time.Now()
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		jc.Fail("dispatch", "NO_HANDLER", &missingHandlerError{JobType: job.JobType})
		observability.Current().ObserveJob(job.JobType, "failed", time.Since(started))
		return
	}

	if w.maxAttempts > 0 && job.Attempts > w.maxAttempts {
		jc.Fail("dispatch", "MAX_ATTEMPTS_EXCEEDED",
			fmt.Errorf("attempt %d exceeds limit %d", job.Attempts, w.maxAttempts))
		observability.Current().ObserveJob(job.JobType, "failed", time.Since(started))
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go w.heartbeatLoop(hbCtx, job.ID)
	defer stopHeartbeat()

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID,
					"job_id", job.ID,
					"job_type", job.JobType,
					"panic", r,
				)
				jc.Fail("panic", "PANIC", errFromRecover(r))
			}
		}()

		if runErr := h.Run(jc); runErr != nil {
			// Handlers normally call jc.Fail themselves; this is a safety net.
			jc.Fail("run", "RUN_ERROR", runErr)
		}
	}()

	observability.Current().ObserveJob(job.JobType, job.Status, time.Since(started))
}

func (w *Worker) heartbeatLoop(ctx context.Context, jobID uuid.UUID) {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, jobID); err != nil {
				w.log.Warn("Heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// reapLoop fails processing jobs whose heartbeat expired. Reaped jobs stay
// failed; reprocessing is an explicit caller action.
func (w *Worker) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.FailStaleProcessing(dbctx.Context{Ctx: ctx}, w.staleAfter)
			if err != nil {
				w.log.Warn("FailStaleProcessing failed", "error", err)
				continue
			}
			if n > 0 {
				w.log.Warn("Reaped stale processing jobs", "count", n, "stale_after", w.staleAfter)
			}
		}
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
