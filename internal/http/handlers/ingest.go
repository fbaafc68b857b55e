package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recall-backend/internal/http/response"
	"github.com/yungbote/recall-backend/internal/ingest"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type IngestHandler struct {
	log      *logger.Logger
	ingestor ingest.Service
	maxBytes int64
}

func NewIngestHandler(log *logger.Logger, ingestor ingest.Service) *IngestHandler {
	return &IngestHandler{
		log:      log.With("handler", "IngestHandler"),
		ingestor: ingestor,
		maxBytes: int64(envutil.Int("MAX_FILE_SIZE_MB", 25)) << 20,
	}
}

type ingestRequest struct {
	URL string `json:"url" binding:"required"`
}

// POST /ingest
func (h *IngestHandler) IngestURL(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	res, err := h.ingestor.IngestURL(dbctx.Context{Ctx: c.Request.Context()}, callerKeyID(c), req.URL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondAccepted(c, res)
}

// POST /content (multipart: file, optional title)
func (h *IngestHandler) UploadDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "FILE_REQUIRED", err)
		return
	}
	if fh.Size > h.maxBytes {
		response.RespondError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Errorf("file is %d bytes, limit %d", fh.Size, h.maxBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "FILE_READ_FAILED", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "FILE_READ_FAILED", err)
		return
	}
	if int64(len(data)) > h.maxBytes {
		response.RespondError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Errorf("file exceeds %d bytes", h.maxBytes))
		return
	}

	up := ingest.Upload{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Title:    c.PostForm("title"),
		Data:     data,
	}
	res, err := h.ingestor.UploadDocument(dbctx.Context{Ctx: c.Request.Context()}, callerKeyID(c), up)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondAccepted(c, res)
}

func callerKeyID(c *gin.Context) string {
	if info := ctxutil.GetCaller(c.Request.Context()); info != nil {
		return info.KeyID
	}
	return ""
}
