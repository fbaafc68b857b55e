package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/http/response"
	"github.com/yungbote/recall-backend/internal/jobs"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type JobHandler struct {
	log  *logger.Logger
	jobs jobs.Service
}

func NewJobHandler(log *logger.Logger, jobService jobs.Service) *JobHandler {
	return &JobHandler{
		log:  log.With("handler", "JobHandler"),
		jobs: jobService,
	}
}

// GET /jobs
func (h *JobHandler) List(c *gin.Context) {
	filter := repos.JobFilter{
		Statuses:    csvParam(c, "status"),
		JobTypes:    csvParam(c, "type"),
		ResourceKey: c.Query("resource_key"),
		Limit:       intParam(c, "limit", 50, 200),
		Offset:      intParam(c, "offset", 0, 1<<30),
	}
	if raw := c.Query("content_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "INVALID_CONTENT_ID", err)
			return
		}
		filter.ContentID = &id
	}
	rows, total, err := h.jobs.List(dbctx.Context{Ctx: c.Request.Context()}, filter)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "JOB_LIST_FAILED", err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": rows, "total": total})
}

// GET /jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "JOB_LOOKUP_FAILED", err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "JOB_NOT_FOUND", fmt.Errorf("job %s not found", id))
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.Cancel(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "JOB_CANCEL_FAILED", err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "JOB_NOT_FOUND", fmt.Errorf("job %s not found", id))
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /jobs/drift
func (h *JobHandler) Drift(c *gin.Context) {
	report, err := h.jobs.Drift(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "DRIFT_REPORT_FAILED", err)
		return
	}
	response.RespondOK(c, report)
}
