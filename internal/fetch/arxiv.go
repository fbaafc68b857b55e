package fetch

import (
	"context"
	"encoding/xml"
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

// ArxivPaper is the normalized record the entity resolver attaches to
// paper entities.
type ArxivPaper struct {
	ArxivID    string    `json:"arxiv_id"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors,omitempty"`
	Abstract   string    `json:"abstract,omitempty"`
	Published  time.Time `json:"published,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	URL        string    `json:"url,omitempty"`
}

type ArxivClient interface {
	Paper(ctx context.Context, arxivID string) (*ArxivPaper, error)
}

type arxivClient struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
}

func NewArxivClient(log *logger.Logger) (ArxivClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("ARXIV_API_BASE_URL")), "/")
	if base == "" {
		base = "https://export.arxiv.org"
	}
	return &arxivClient{
		log:     log.With("client", "ArxivClient"),
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: base,
		// arXiv asks for no more than one request every three seconds.
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
	}, nil
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
}

func (c *arxivClient) Paper(ctx context.Context, arxivID string) (*ArxivPaper, error) {
	started := time.Now()
	paper, err := c.paper(ctx, arxivID)
	observability.Current().ObserveFetch("arxiv", fetchStatus(err), time.Since(started))
	return paper, err
}

func (c *arxivClient) paper(ctx context.Context, arxivID string) (*ArxivPaper, error) {
	arxivID = strings.TrimSpace(arxivID)
	if arxivID == "" {
		return nil, fetchErr("arxiv", ErrorMissingConfig, "arxivID required", nil)
	}
	if !Enabled() {
		return nil, disabledErr("arxiv")
	}
	ctx = ctxutil.Default(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fetchErr("arxiv", ErrorRateLimited, "rate limiter wait", err)
	}

	q := url.Values{}
	q.Set("id_list", arxivID)
	q.Set("max_results", "1")
	endpoint := c.baseURL + "/api/query?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fetchErr("arxiv", ErrorHTTP, "build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fetchErr("arxiv", ErrorHTTP, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, fetchErr("arxiv", ErrorDecodeFailed, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider:   "arxiv",
			Code:       ErrorHTTP,
			StatusCode: resp.StatusCode,
			Message:    truncateSnippet(raw),
		}
	}

	var feed arxivFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, fetchErr("arxiv", ErrorDecodeFailed, "decode atom feed", err)
	}
	if len(feed.Entries) == 0 {
		return nil, fetchErr("arxiv", ErrorNotFound, fmt.Sprintf("arxiv %s not found", arxivID), nil)
	}

	entry := feed.Entries[0]
	// arXiv reports unknown ids as a feed with one error entry.
	if strings.Contains(entry.ID, "api/errors") {
		return nil, fetchErr("arxiv", ErrorNotFound, fmt.Sprintf("arxiv %s not found", arxivID), nil)
	}

	paper := &ArxivPaper{
		ArxivID:  arxivID,
		Title:    collapseWhitespace(entry.Title),
		Abstract: collapseWhitespace(entry.Summary),
	}
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			paper.Authors = append(paper.Authors, name)
		}
	}
	for _, cat := range entry.Categories {
		if term := strings.TrimSpace(cat.Term); term != "" {
			paper.Categories = append(paper.Categories, term)
		}
	}
	if at, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published)); err == nil {
		paper.Published = at
	}
	for _, link := range entry.Links {
		if link.Rel == "alternate" && strings.TrimSpace(link.Href) != "" {
			paper.URL = strings.TrimSpace(link.Href)
			break
		}
	}
	if paper.URL == "" {
		paper.URL = strings.TrimSpace(entry.ID)
	}
	return paper, nil
}

// collapseWhitespace flattens the newline-wrapped text arXiv emits inside
// title and summary elements.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
