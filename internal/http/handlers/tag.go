package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/http/response"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type TagHandler struct {
	log      *logger.Logger
	contents repos.ContentRepo
}

func NewTagHandler(log *logger.Logger, contents repos.ContentRepo) *TagHandler {
	return &TagHandler{
		log:      log.With("handler", "TagHandler"),
		contents: contents,
	}
}

// GET /tags
func (h *TagHandler) List(c *gin.Context) {
	limit := intParam(c, "limit", 200, 1000)
	tags, err := h.contents.TagCounts(dbctx.Context{Ctx: c.Request.Context()}, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "TAG_LIST_FAILED", err)
		return
	}
	response.RespondOK(c, gin.H{"tags": tags, "total": len(tags)})
}
