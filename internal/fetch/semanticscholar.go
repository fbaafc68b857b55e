package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

const semanticScholarFields = "title,abstract,authors,year,citationCount,externalIds"

// SemanticScholarPaper carries citation counts the arXiv API does not expose.
type SemanticScholarPaper struct {
	PaperID       string   `json:"paper_id"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Year          int      `json:"year,omitempty"`
	CitationCount int64    `json:"citation_count"`
	DOI           string   `json:"doi,omitempty"`
	ArxivID       string   `json:"arxiv_id,omitempty"`
}

type SemanticScholarClient interface {
	PaperByArxivID(ctx context.Context, arxivID string) (*SemanticScholarPaper, error)
	PaperByDOI(ctx context.Context, doi string) (*SemanticScholarPaper, error)
}

type semanticScholarClient struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

func NewSemanticScholarClient(log *logger.Logger) (SemanticScholarClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("SEMANTIC_SCHOLAR_API_BASE_URL")), "/")
	if base == "" {
		base = "https://api.semanticscholar.org"
	}
	return &semanticScholarClient{
		log:     log.With("client", "SemanticScholarClient"),
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: base,
		apiKey:  strings.TrimSpace(os.Getenv("S2_API_KEY")),
		// Unauthenticated callers share a pool; stay well under it.
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
	}, nil
}

type semanticScholarPayload struct {
	PaperID  string `json:"paperId"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Year     int    `json:"year"`
	Citation int64  `json:"citationCount"`
	Authors  []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs map[string]any `json:"externalIds"`
}

func (c *semanticScholarClient) PaperByArxivID(ctx context.Context, arxivID string) (*SemanticScholarPaper, error) {
	arxivID = strings.TrimSpace(arxivID)
	if arxivID == "" {
		return nil, fetchErr("semantic_scholar", ErrorMissingConfig, "arxivID required", nil)
	}
	return c.paper(ctx, "arXiv:"+arxivID)
}

func (c *semanticScholarClient) PaperByDOI(ctx context.Context, doi string) (*SemanticScholarPaper, error) {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return nil, fetchErr("semantic_scholar", ErrorMissingConfig, "doi required", nil)
	}
	return c.paper(ctx, "DOI:"+doi)
}

func (c *semanticScholarClient) paper(ctx context.Context, paperRef string) (*SemanticScholarPaper, error) {
	started := time.Now()
	paper, err := c.fetchPaper(ctx, paperRef)
	observability.Current().ObserveFetch("semantic_scholar", fetchStatus(err), time.Since(started))
	return paper, err
}

func (c *semanticScholarClient) fetchPaper(ctx context.Context, paperRef string) (*SemanticScholarPaper, error) {
	if !Enabled() {
		return nil, disabledErr("semantic_scholar")
	}
	ctx = ctxutil.Default(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fetchErr("semantic_scholar", ErrorRateLimited, "rate limiter wait", err)
	}

	endpoint := fmt.Sprintf("%s/graph/v1/paper/%s?fields=%s",
		c.baseURL, url.PathEscape(paperRef), url.QueryEscape(semanticScholarFields))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fetchErr("semantic_scholar", ErrorHTTP, "build request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fetchErr("semantic_scholar", ErrorHTTP, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fetchErr("semantic_scholar", ErrorDecodeFailed, "read response", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &Error{Provider: "semantic_scholar", Code: ErrorNotFound, StatusCode: resp.StatusCode, Message: fmt.Sprintf("paper %s not found", paperRef)}
	case http.StatusTooManyRequests:
		return nil, &Error{Provider: "semantic_scholar", Code: ErrorRateLimited, StatusCode: resp.StatusCode, Message: "rate limited"}
	default:
		return nil, &Error{Provider: "semantic_scholar", Code: ErrorHTTP, StatusCode: resp.StatusCode, Message: truncateSnippet(raw)}
	}

	var payload semanticScholarPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fetchErr("semantic_scholar", ErrorDecodeFailed, "decode response", err)
	}

	paper := &SemanticScholarPaper{
		PaperID:       payload.PaperID,
		Title:         strings.TrimSpace(payload.Title),
		Abstract:      strings.TrimSpace(payload.Abstract),
		Year:          payload.Year,
		CitationCount: payload.Citation,
	}
	for _, a := range payload.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			paper.Authors = append(paper.Authors, name)
		}
	}
	if v, ok := payload.ExternalIDs["DOI"].(string); ok {
		paper.DOI = v
	}
	if v, ok := payload.ExternalIDs["ArXiv"].(string); ok {
		paper.ArxivID = v
	}
	return paper, nil
}
