package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recall-backend/internal/auth"
	"github.com/yungbote/recall-backend/internal/http/response"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/platform/apierr"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

const (
	HeaderKeyID     = "X-Recall-Key-Id"
	HeaderSignature = "X-Recall-Signature"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService auth.Service
}

func NewAuthMiddleware(log *logger.Logger, authService auth.Service) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "auth"), authService: authService}
}

// RequireAuth accepts either an HMAC message signature (X-Recall-Key-Id plus
// X-Recall-Signature) or a bearer token minted by POST /auth/token. The
// verified caller lands in the request context for handlers and the logger.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := am.authenticate(c)
		if err != nil {
			am.reject(c, err)
			return
		}
		ctx := ctxutil.WithCaller(c.Request.Context(), info)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (am *AuthMiddleware) authenticate(c *gin.Context) (*ctxutil.CallerInfo, error) {
	keyID := strings.TrimSpace(c.GetHeader(HeaderKeyID))
	sig := strings.TrimSpace(c.GetHeader(HeaderSignature))
	if keyID != "" || sig != "" {
		body, err := readAndRestoreBody(c)
		if err != nil {
			return nil, apierr.New(http.StatusBadRequest, "BODY_READ_FAILED", err)
		}
		return am.authService.VerifySignature(c.Request.Context(), keyID, sig, c.Request, body)
	}
	if token := bearerToken(c); token != "" {
		return am.authService.VerifyToken(c.Request.Context(), token)
	}
	return nil, apierr.New(http.StatusUnauthorized, "MISSING_CREDENTIALS", fmt.Errorf("no credentials presented"))
}

func (am *AuthMiddleware) reject(c *gin.Context, err error) {
	status := http.StatusUnauthorized
	code := "UNAUTHORIZED"
	var ae *apierr.Error
	if errors.As(err, &ae) {
		if ae.Status != 0 {
			status = ae.Status
		}
		if ae.Code != "" {
			code = ae.Code
		}
	}
	if m := observability.Current(); m != nil {
		m.IncSecurityEvent(strings.ToLower(code))
	}
	am.log.Warn("request rejected", "path", c.Request.URL.Path, "code", code, "error", err)
	c.AbortWithStatusJSON(status, response.ErrorEnvelope{
		Error: response.APIError{Message: err.Error(), Code: code},
	})
}

// readAndRestoreBody buffers the request body so the signature can cover it
// and the handler can still bind it.
func readAndRestoreBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	_ = c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
