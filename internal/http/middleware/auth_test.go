package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recall-backend/internal/auth"
	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/data/repos/testutil"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
)

func newAuthTestRouter(t *testing.T) (*gin.Engine, auth.Service, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tx := testutil.Tx(t, testutil.DB(t))
	ctx := context.Background()
	log := testutil.Logger(t)
	callerRepo := repos.NewCallerRepo(tx, log)

	caller := testutil.SeedCaller(t, ctx, tx, "mw-key")
	hash, err := auth.HashAPIKey("mw-api-key")
	if err != nil {
		t.Fatalf("hash api key: %v", err)
	}
	if err := callerRepo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, caller.ID, map[string]interface{}{
		"api_key_hash": hash,
	}); err != nil {
		t.Fatalf("store api key hash: %v", err)
	}

	svc, err := auth.NewService(tx, log, callerRepo, "mw-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}

	r := gin.New()
	r.Use(NewAuthMiddleware(log, svc).RequireAuth())
	r.POST("/ingest", func(c *gin.Context) {
		info := ctxutil.GetCaller(c.Request.Context())
		if info == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no caller in context"})
			return
		}
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"key_id": info.KeyID, "body": string(body)})
	})
	return r, svc, caller.Secret
}

func TestRequireAuthAcceptsSignedRequest(t *testing.T) {
	r, _, secret := newAuthTestRouter(t)

	body := `{"url":"https://example.com/post"}`
	req := httptest.NewRequest(http.MethodPost, "http://api.test/ingest", strings.NewReader(body))
	req.Header.Set(HeaderKeyID, "mw-key")
	req.Header.Set(HeaderSignature, auth.SignRequest(secret, "POST", "/ingest", "api.test", []byte(body)))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	// The middleware consumed the body for hashing; the handler must still
	// see every byte.
	if !strings.Contains(rec.Body.String(), "example.com/post") {
		t.Fatalf("handler lost the request body: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"key_id":"mw-key"`) {
		t.Fatalf("caller identity missing: %s", rec.Body.String())
	}
}

func TestRequireAuthRejectsBadSignature(t *testing.T) {
	r, _, secret := newAuthTestRouter(t)

	body := `{"url":"https://example.com/post"}`
	req := httptest.NewRequest(http.MethodPost, "http://api.test/ingest", strings.NewReader(body))
	req.Header.Set(HeaderKeyID, "mw-key")
	req.Header.Set(HeaderSignature, auth.SignRequest(secret, "POST", "/ingest", "api.test", []byte("different body")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INVALID_SIGNATURE") {
		t.Fatalf("error envelope missing code: %s", rec.Body.String())
	}
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	r, svc, _ := newAuthTestRouter(t)

	token, _, err := svc.MintToken(context.Background(), "mw-key", "mw-api-key")
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "http://api.test/ingest", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRequireAuthRejectsMissingCredentials(t *testing.T) {
	r, _, _ := newAuthTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "http://api.test/ingest", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MISSING_CREDENTIALS") {
		t.Fatalf("error envelope missing code: %s", rec.Body.String())
	}
}
