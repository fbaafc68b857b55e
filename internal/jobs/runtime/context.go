package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	types "github.com/yungbote/recall-backend/internal/domain"
	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/realtime"
)

// Notifier publishes job lifecycle events. bus.Bus satisfies it.
type Notifier interface {
	Publish(ctx context.Context, ev realtime.JobEvent) error
}

/*
Context is the execution handle for one claimed pipeline job. It wraps the
database handle, the mutable pipeline_job row, and the only sanctioned ways
to report progress or terminate a run.

Every write goes through UpdateFieldsUnlessStatus excluding cancelled, so a
cancellation recorded while a stage was in flight wins at the next write.
Handlers never touch the pipeline_job row directly.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.PipelineJob
	Repo   repos.PipelineJobRepo
	Notify Notifier

	payload map[string]any
}

// NewContext builds the handle for a claimed job. The job's metadata JSON is
// decoded eagerly; malformed metadata yields an empty payload and handlers
// validate required fields themselves.
func NewContext(ctx context.Context, db *gorm.DB, job *types.PipelineJob, repo repos.PipelineJobRepo, notify Notifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Metadata) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Metadata, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	payload := c.Payload()
	traceID := payloadString(payload, "trace_id")
	reqID := payloadString(payload, "request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload returns the decoded job metadata. Never nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadString reads a metadata field as a trimmed string; missing or
// non-string fields return "".
func (c *Context) PayloadString(key string) string {
	return payloadString(c.Payload(), key)
}

// PayloadUUID reads a metadata field and parses it as a UUID.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}

// Cancelled re-reads the job status. Handlers call it between stages; a
// cancellation never interrupts an external call in flight.
func (c *Context) Cancelled() bool {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return false
	}
	status, err := c.Repo.GetStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID)
	if err != nil {
		return false
	}
	return status == domainjobs.StatusCancelled
}

// Update applies raw field updates guarded against cancelled jobs. Prefer
// Progress/Fail/Succeed for lifecycle transitions.
func (c *Context) Update(updates map[string]any) error {
	if c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, []string{domainjobs.StatusCancelled}, updates)
	return err
}

// Progress records a non-terminal stage transition and publishes an event.
// A rejected write means the job was cancelled underneath us; no event is
// emitted and the handler will observe the cancellation at its next check.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := ctxutil.Default(c.Ctx)
	now := time.Now().UTC()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{domainjobs.StatusCancelled}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	c.publish(ctx, domainjobs.StatusProcessing, stage, pct, msg, "")
}

// Fail marks the job terminally failed, recording error_code, error_message
// and error_stage. Guarded so a cancelled job stays cancelled.
func (c *Context) Fail(stage string, code string, err error) {
	if c == nil {
		return
	}
	ctx := ctxutil.Default(c.Ctx)
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{domainjobs.StatusCancelled}, map[string]interface{}{
			"status":        domainjobs.StatusFailed,
			"stage":         stage,
			"error_code":    code,
			"error_message": msg,
			"error_stage":   stage,
			"locked_at":     nil,
			"finished_at":   now,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = domainjobs.StatusFailed
		c.Job.Stage = stage
		c.Job.ErrorCode = code
		c.Job.ErrorMessage = msg
		c.Job.ErrorStage = stage
		c.Job.LockedAt = nil
		c.Job.FinishedAt = &now
		c.Job.UpdatedAt = now
	}

	c.publish(ctx, domainjobs.StatusFailed, stage, c.progressOr(0), msg, code)
}

// Succeed marks the job completed with a result payload.
func (c *Context) Succeed(result any) {
	if c == nil {
		return
	}
	ctx := ctxutil.Default(c.Ctx)
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{domainjobs.StatusCancelled}, map[string]interface{}{
			"status":        domainjobs.StatusCompleted,
			"progress":      100,
			"error_code":    "",
			"error_message": "",
			"error_stage":   "",
			"result":        res,
			"locked_at":     nil,
			"heartbeat_at":  now,
			"finished_at":   now,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = domainjobs.StatusCompleted
		c.Job.Progress = 100
		c.Job.ErrorCode = ""
		c.Job.ErrorMessage = ""
		c.Job.ErrorStage = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.FinishedAt = &now
		c.Job.UpdatedAt = now
	}

	c.publish(ctx, domainjobs.StatusCompleted, c.stageOr(""), 100, "", "")
}

func (c *Context) progressOr(def int) int {
	if c.Job == nil {
		return def
	}
	return c.Job.Progress
}

func (c *Context) stageOr(def string) string {
	if c.Job == nil {
		return def
	}
	return c.Job.Stage
}

func (c *Context) publish(ctx context.Context, status, stage string, pct int, msg, code string) {
	if c.Notify == nil || c.Job == nil {
		return
	}
	_ = c.Notify.Publish(ctx, realtime.JobEvent{
		JobID:     c.Job.ID,
		ContentID: c.Job.ContentID,
		JobType:   c.Job.JobType,
		Status:    status,
		Stage:     stage,
		Progress:  pct,
		Message:   msg,
		ErrorCode: code,
		EmittedAt: time.Now().UTC(),
	})
}
