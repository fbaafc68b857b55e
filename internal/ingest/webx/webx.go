// Package webx fetches web pages and reduces them to markdown for the
// enrichment pipeline. Fetches are SSRF-guarded: targets that resolve to
// private, loopback, or link-local addresses are refused at dial time, so
// DNS rebinding cannot reach internal services.
package webx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type ErrorCode string

const (
	ErrorInvalidURL  ErrorCode = "invalid_url"
	ErrorBlockedURL  ErrorCode = "blocked_url"
	ErrorFetchFailed ErrorCode = "fetch_failed"
	ErrorTooLarge    ErrorCode = "too_large"
	ErrorUnsupported ErrorCode = "unsupported_content"
	ErrorConvert     ErrorCode = "convert_failed"
)

type Error struct {
	Code       ErrorCode
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "web extract failed"
	}
	head := fmt.Sprintf("web extract failed (code=%s", e.Code)
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

func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func extractErr(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// Page is the reduced form of a fetched web page.
type Page struct {
	URL         string
	Title       string
	Markdown    string
	ContentType string
	FetchedAt   time.Time
}

type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*Page, error)
}

type extractor struct {
	log       *logger.Logger
	guard     guard
	client    *http.Client
	converter *md.Converter
	userAgent string
	maxBytes  int64
}

func NewExtractor(log *logger.Logger) (Extractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	timeout := time.Duration(envutil.Int("WEB_FETCH_TIMEOUT_SECONDS", 30)) * time.Second
	maxBytes := int64(envutil.Int("WEB_FETCH_MAX_BYTES", 10*1024*1024))
	g := guard{allowPrivate: envutil.Bool("WEB_FETCH_ALLOW_PRIVATE", false)}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &extractor{
		log:       log.With("component", "WebExtractor"),
		guard:     g,
		client:    g.client(timeout),
		converter: converter,
		userAgent: envutil.Str("WEB_FETCH_USER_AGENT", "recall-backend/1.0"),
		maxBytes:  maxBytes,
	}, nil
}

func (e *extractor) Extract(ctx context.Context, rawURL string) (*Page, error) {
	started := time.Now()
	page, err := e.extract(ctx, rawURL)
	observability.Current().ObserveFetch("web", extractStatus(err), time.Since(started))
	return page, err
}

func (e *extractor) extract(ctx context.Context, rawURL string) (*Page, error) {
	target := strings.TrimSpace(rawURL)
	if target == "" {
		return nil, extractErr(ErrorInvalidURL, "url required", nil)
	}
	if err := e.guard.validateURL(target); err != nil {
		return nil, err
	}

	body, mediaType, err := e.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	page := &Page{URL: target, ContentType: mediaType, FetchedAt: time.Now().UTC()}
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html") || mediaType == "application/xml":
		if err := e.convertHTML(page, body); err != nil {
			return nil, err
		}
	case mediaType == "text/markdown" || mediaType == "text/plain":
		page.Markdown = cleanMarkdown(string(body))
		page.Title = markdownTitle(page.Markdown)
	default:
		return nil, extractErr(ErrorUnsupported, fmt.Sprintf("content type %s is not extractable", mediaType), nil)
	}

	if strings.TrimSpace(page.Markdown) == "" {
		return nil, extractErr(ErrorConvert, "page produced no text", nil)
	}
	return page, nil
}

func (e *extractor) fetch(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, target, nil)
	if err != nil {
		return nil, "", extractErr(ErrorInvalidURL, "build request", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		var blocked *Error
		if errors.As(err, &blocked) {
			return nil, "", blocked
		}
		return nil, "", extractErr(ErrorFetchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &Error{
			Code:       ErrorFetchFailed,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d fetching %s", resp.StatusCode, target),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, "", extractErr(ErrorFetchFailed, "read body", err)
	}
	if int64(len(body)) > e.maxBytes {
		return nil, "", extractErr(ErrorTooLarge, fmt.Sprintf("body exceeds %d bytes", e.maxBytes), nil)
	}

	mediaType := ""
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = mt
		}
	}
	return body, mediaType, nil
}

func extractStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var typed *Error
	if errors.As(err, &typed) {
		return string(typed.Code)
	}
	return "error"
}
