package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/apierr"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// Service authenticates API callers. Two schemes are accepted: a bearer
// token minted from the caller's api key, and a per-request HMAC signature
// computed with the caller's shared secret.
type Service interface {
	MintToken(ctx context.Context, keyID, apiKey string) (string, time.Time, error)
	VerifyToken(ctx context.Context, tokenString string) (*ctxutil.CallerInfo, error)
	VerifySignature(ctx context.Context, keyID, signature string, r *http.Request, body []byte) (*ctxutil.CallerInfo, error)
}

type Claims struct {
	KeyID string `json:"key_id,omitempty"`
	jwt.RegisteredClaims
}

type service struct {
	db        *gorm.DB
	log       *logger.Logger
	callers   repos.CallerRepo
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewService(db *gorm.DB, baseLog *logger.Logger, callers repos.CallerRepo, jwtSecret string, tokenTTL time.Duration) (Service, error) {
	if callers == nil {
		return nil, fmt.Errorf("auth service requires a caller repo")
	}
	if jwtSecret == "" {
		return nil, fmt.Errorf("auth service requires a jwt secret")
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &service{
		db:        db,
		log:       baseLog.With("service", "AuthService"),
		callers:   callers,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}, nil
}

var errInvalidCredentials = apierr.New(http.StatusUnauthorized, "INVALID_CREDENTIALS", fmt.Errorf("invalid credentials"))

// MintToken exchanges a key id and raw api key for a bearer token. The api
// key is only ever stored bcrypt-hashed, so lookups go through the key id.
func (s *service) MintToken(ctx context.Context, keyID, apiKey string) (string, time.Time, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" || apiKey == "" {
		return "", time.Time{}, errInvalidCredentials
	}
	caller, err := s.callers.GetByKeyID(dbctx.Context{Ctx: ctx}, keyID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("look up caller: %w", err)
	}
	if caller == nil || caller.APIKeyHash == "" {
		return "", time.Time{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(caller.APIKeyHash), []byte(apiKey)); err != nil {
		s.log.Warn("api key mismatch", "key_id", keyID)
		return "", time.Time{}, errInvalidCredentials
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := Claims{
		KeyID: caller.KeyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *service) VerifyToken(_ context.Context, tokenString string) (*ctxutil.CallerInfo, error) {
	if tokenString == "" {
		return nil, errInvalidCredentials
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_TOKEN", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_TOKEN", fmt.Errorf("invalid or expired token"))
	}
	return &ctxutil.CallerInfo{CallerID: claims.Subject, KeyID: claims.KeyID}, nil
}

// VerifySignature checks a detached HMAC over the request. The canonical
// string is method, path, host and the hex sha256 of the body, newline
// separated, signed with the caller's shared secret.
func (s *service) VerifySignature(ctx context.Context, keyID, signature string, r *http.Request, body []byte) (*ctxutil.CallerInfo, error) {
	keyID = strings.TrimSpace(keyID)
	signature = strings.TrimSpace(signature)
	if keyID == "" || signature == "" {
		return nil, errInvalidCredentials
	}
	caller, err := s.callers.GetByKeyID(dbctx.Context{Ctx: ctx}, keyID)
	if err != nil {
		return nil, fmt.Errorf("look up caller: %w", err)
	}
	if caller == nil || caller.Secret == "" {
		return nil, errInvalidCredentials
	}
	expected := SignRequest(caller.Secret, r.Method, r.URL.Path, r.Host, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		s.log.Warn("request signature mismatch", "key_id", keyID, "path", r.URL.Path)
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_SIGNATURE", fmt.Errorf("signature mismatch"))
	}
	return &ctxutil.CallerInfo{CallerID: caller.ID.String(), KeyID: caller.KeyID}, nil
}

// SignRequest computes the hex HMAC-SHA256 a client puts in
// X-Recall-Signature. Query strings are deliberately excluded; the body hash
// covers everything that matters for the mutating routes.
func SignRequest(secret, method, path, host string, body []byte) string {
	bodySum := sha256.Sum256(body)
	canonical := strings.ToUpper(method) + "\n" + path + "\n" + host + "\n" + hex.EncodeToString(bodySum[:])
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashAPIKey is what provisioning tooling stores in caller.api_key_hash.
func HashAPIKey(apiKey string) (string, error) {
	raw, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
