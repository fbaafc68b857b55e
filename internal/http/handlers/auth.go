package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recall-backend/internal/auth"
	"github.com/yungbote/recall-backend/internal/http/response"
)

type AuthHandler struct {
	auth auth.Service
}

func NewAuthHandler(authService auth.Service) *AuthHandler {
	return &AuthHandler{auth: authService}
}

type tokenRequest struct {
	KeyID  string `json:"key_id" binding:"required"`
	APIKey string `json:"api_key" binding:"required"`
}

// POST /auth/token
func (h *AuthHandler) MintToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	token, expiresAt, err := h.auth.MintToken(c.Request.Context(), req.KeyID, req.APIKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt.UTC(),
	})
}
