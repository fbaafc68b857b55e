// Package fetch holds the outbound clients for source metadata: YouTube
// (Data API + Innertube transcripts), arXiv, GitHub, and Semantic Scholar.
// Every client honors the EXTERNAL_FETCH_ENABLED switch and returns either
// a normalized record or a typed *Error.
package fetch

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Enabled reports whether outbound fetches are allowed. Defaults to true;
// set EXTERNAL_FETCH_ENABLED=false to run fully offline.
func Enabled() bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("EXTERNAL_FETCH_ENABLED")))
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

type ErrorCode string

const (
	ErrorDisabled      ErrorCode = "disabled"
	ErrorMissingConfig ErrorCode = "missing_config"
	ErrorHTTP          ErrorCode = "http_error"
	ErrorRateLimited   ErrorCode = "rate_limited"
	ErrorNotFound      ErrorCode = "not_found"
	ErrorDecodeFailed  ErrorCode = "decode_failed"
	ErrorUnavailable   ErrorCode = "unavailable"
)

type Error struct {
	Provider   string
	Code       ErrorCode
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "fetch failed"
	}
	head := fmt.Sprintf("fetch %s failed (code=%s", e.Provider, e.Code)
	if e.StatusCode > 0 {
		head += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	head += ")"
	if e.Message != "" {
		return head + ": " + e.Message
	}
	if e.Cause != nil {
		return head + ": " + e.Cause.Error()
	}
	return head
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// HTTPStatusCode satisfies httpx.HTTPStatusCoder so retry classification
// sees upstream status codes.
func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func fetchErr(provider string, code ErrorCode, msg string, cause error) *Error {
	return &Error{Provider: provider, Code: code, Message: msg, Cause: cause}
}

func disabledErr(provider string) *Error {
	return &Error{Provider: provider, Code: ErrorDisabled, Message: "external fetch disabled"}
}
