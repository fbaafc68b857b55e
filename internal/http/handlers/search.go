package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recall-backend/internal/http/response"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/retrieve"
)

type SearchHandler struct {
	log       *logger.Logger
	retriever retrieve.Retriever
}

func NewSearchHandler(log *logger.Logger, retriever retrieve.Retriever) *SearchHandler {
	return &SearchHandler{
		log:       log.With("handler", "SearchHandler"),
		retriever: retriever,
	}
}

type searchRequest struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
	ContentType string `json:"content_type"`
	TierMin     string `json:"tier_min"`
}

func (r searchRequest) toQuery() retrieve.Query {
	return retrieve.Query{
		Query:       strings.TrimSpace(r.Query),
		Limit:       r.Limit,
		ContentType: strings.TrimSpace(r.ContentType),
		TierMin:     strings.ToUpper(strings.TrimSpace(r.TierMin)),
	}
}

// POST /search
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	q := req.toQuery()
	if q.Query == "" {
		response.RespondError(c, http.StatusBadRequest, "QUERY_REQUIRED", fmt.Errorf("query must not be empty"))
		return
	}
	sources, err := h.retriever.Search(c.Request.Context(), q)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "SEARCH_FAILED", err)
		return
	}
	response.RespondOK(c, gin.H{"results": sources, "total": len(sources)})
}

// POST /search/agentic
func (h *SearchHandler) Agentic(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	q := req.toQuery()
	if q.Query == "" {
		response.RespondError(c, http.StatusBadRequest, "QUERY_REQUIRED", fmt.Errorf("query must not be empty"))
		return
	}
	answer, err := h.retriever.Retrieve(c.Request.Context(), q)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "RETRIEVE_FAILED", err)
		return
	}
	response.RespondOK(c, answer)
}
