package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/domain/content"
	"github.com/yungbote/recall-backend/internal/http/response"
	"github.com/yungbote/recall-backend/internal/ingest"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/gcp"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type ContentHandler struct {
	log      *logger.Logger
	contents repos.ContentRepo
	ingestor ingest.Service
	bucket   gcp.BucketService
}

func NewContentHandler(log *logger.Logger, contents repos.ContentRepo, ingestor ingest.Service, bucket gcp.BucketService) *ContentHandler {
	return &ContentHandler{
		log:      log.With("handler", "ContentHandler"),
		contents: contents,
		ingestor: ingestor,
		bucket:   bucket,
	}
}

// GET /content
func (h *ContentHandler) List(c *gin.Context) {
	filter := repos.ContentFilter{
		Types:    csvParam(c, "type"),
		Statuses: csvParam(c, "status"),
		Tiers:    csvParam(c, "tier"),
		Tag:      c.Query("tag"),
		Author:   c.Query("author"),
		Search:   c.Query("q"),
		Limit:    intParam(c, "limit", 50, 200),
		Offset:   intParam(c, "offset", 0, 1<<30),
	}
	items, total, err := h.contents.List(dbctx.Context{Ctx: c.Request.Context()}, filter)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "CONTENT_LIST_FAILED", err)
		return
	}
	response.RespondOK(c, gin.H{"content": items, "total": total})
}

// GET /content/:id
func (h *ContentHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	row, err := h.contents.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "CONTENT_NOT_FOUND", fmt.Errorf("content %s not found", id))
		return
	}
	response.RespondOK(c, gin.H{"content": row})
}

// GET /content/:id/content
func (h *ContentHandler) Download(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	row, err := h.contents.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
		return
	}
	if row == nil || row.FilePath == "" {
		response.RespondError(c, http.StatusNotFound, "CONTENT_NOT_FOUND", fmt.Errorf("content %s has no stored body", id))
		return
	}
	rc, err := h.bucket.Download(c.Request.Context(), row.FilePath)
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "BLOB_DOWNLOAD_FAILED", err)
		return
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "BLOB_DOWNLOAD_FAILED", err)
		return
	}
	c.Data(http.StatusOK, bodyMime(row.MimeType, row.ContentType), data)
}

type contentPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Author      *string   `json:"author"`
	Tier        *string   `json:"tier"`
	Tags        *[]string `json:"tags"`
}

// PATCH /content/:id
func (h *ContentHandler) Patch(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req contentPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Author != nil {
		updates["author"] = strings.TrimSpace(*req.Author)
	}
	if req.Tier != nil {
		tier := strings.ToUpper(strings.TrimSpace(*req.Tier))
		if tier != "" && !content.ValidTier(tier) {
			response.RespondError(c, http.StatusBadRequest, "INVALID_TIER",
				fmt.Errorf("tier %q is not one of S, A, B, C, D", *req.Tier))
			return
		}
		updates["tier"] = tier
	}
	if req.Tags != nil {
		raw, err := json.Marshal(*req.Tags)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
			return
		}
		updates["tags"] = datatypes.JSON(raw)
	}
	if len(updates) == 0 {
		response.RespondError(c, http.StatusBadRequest, "EMPTY_PATCH", fmt.Errorf("no updatable fields in body"))
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	row, err := h.contents.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "CONTENT_NOT_FOUND", fmt.Errorf("content %s not found", id))
		return
	}
	if err := h.contents.UpdateFields(dbc, id, updates); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "CONTENT_UPDATE_FAILED", err)
		return
	}
	fresh, err := h.contents.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "CONTENT_LOOKUP_FAILED", err)
		return
	}
	response.RespondOK(c, gin.H{"content": fresh})
}

// DELETE /content/:id
func (h *ContentHandler) Delete(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.ingestor.Delete(dbctx.Context{Ctx: c.Request.Context()}, id); err != nil {
		response.Error(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": id})
}

// POST /content/:id/reprocess?force=bool
func (h *ContentHandler) Reprocess(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	job, err := h.ingestor.Reprocess(dbctx.Context{Ctx: c.Request.Context()}, id, force)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"job": job})
}

func bodyMime(mimeType, contentType string) string {
	if mimeType != "" {
		return mimeType
	}
	switch contentType {
	case content.TypeWeb, content.TypeMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
