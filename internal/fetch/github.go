package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/pkg/httpx"
	"github.com/yungbote/recall-backend/internal/platform/ctxutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

const githubMaxRetries = 4

// GitHubRepo is the subset of the repos API the entity resolver cares about.
type GitHubRepo struct {
	FullName    string    `json:"full_name"`
	Description string    `json:"description,omitempty"`
	Stars       int64     `json:"stars"`
	Forks       int64     `json:"forks"`
	Language    string    `json:"language,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	Homepage    string    `json:"homepage,omitempty"`
	License     string    `json:"license,omitempty"`
	Archived    bool      `json:"archived"`
	PushedAt    time.Time `json:"pushed_at,omitempty"`
}

type GitHubClient interface {
	Repo(ctx context.Context, owner, name string) (*GitHubRepo, error)
}

type githubClient struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	token   string
}

func NewGitHubClient(log *logger.Logger) (GitHubClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("GITHUB_API_BASE_URL")), "/")
	if base == "" {
		base = "https://api.github.com"
	}
	return &githubClient{
		log:     log.With("client", "GitHubClient"),
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: base,
		token:   strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
	}, nil
}

type githubRepoPayload struct {
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	Stargazers  int64    `json:"stargazers_count"`
	Forks       int64    `json:"forks_count"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	Homepage    string   `json:"homepage"`
	Archived    bool     `json:"archived"`
	PushedAt    string   `json:"pushed_at"`
	License     *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

func (c *githubClient) Repo(ctx context.Context, owner, name string) (*GitHubRepo, error) {
	started := time.Now()
	repo, err := c.repo(ctx, owner, name)
	observability.Current().ObserveFetch("github", fetchStatus(err), time.Since(started))
	return repo, err
}

func (c *githubClient) repo(ctx context.Context, owner, name string) (*GitHubRepo, error) {
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if owner == "" || name == "" {
		return nil, fetchErr("github", ErrorMissingConfig, "owner and repo required", nil)
	}
	if !Enabled() {
		return nil, disabledErr("github")
	}
	ctx = ctxutil.Default(ctx)

	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, name)

	var lastErr error
	for attempt := 1; attempt <= githubMaxRetries; attempt++ {
		payload, retryIn, err := c.fetchRepo(ctx, endpoint)
		if err == nil {
			return repoFromPayload(payload), nil
		}
		lastErr = err
		if retryIn < 0 {
			return nil, err
		}
		if attempt == githubMaxRetries {
			break
		}
		if retryIn == 0 {
			retryIn = httpx.BackoffDuration(attempt-1, time.Second, 30*time.Second)
		}
		c.log.Warn("github request failed, retrying",
			"repo", owner+"/"+name, "attempt", attempt, "retry_in", retryIn.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, fetchErr("github", ErrorHTTP, "request cancelled", ctx.Err())
		case <-time.After(httpx.JitterSleep(retryIn)):
		}
	}
	return nil, lastErr
}

// fetchRepo performs a single attempt. retryIn < 0 means the error is
// permanent; 0 means retryable with caller-chosen backoff; > 0 is a
// server-prescribed wait.
func (c *githubClient) fetchRepo(ctx context.Context, endpoint string) (*githubRepoPayload, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, -1, fetchErr("github", ErrorHTTP, "build request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if httpx.IsRetryableError(err) {
			return nil, 0, fetchErr("github", ErrorHTTP, "request failed", err)
		}
		return nil, -1, fetchErr("github", ErrorHTTP, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, -1, fetchErr("github", ErrorDecodeFailed, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload githubRepoPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, -1, fetchErr("github", ErrorDecodeFailed, "decode response", err)
		}
		return &payload, 0, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, -1, &Error{Provider: "github", Code: ErrorNotFound, StatusCode: resp.StatusCode, Message: "repository not found"}
	case resp.StatusCode == http.StatusTooManyRequests || isGitHubRateLimited(resp):
		wait := githubRateLimitWait(resp)
		return nil, wait, &Error{Provider: "github", Code: ErrorRateLimited, StatusCode: resp.StatusCode, Message: "rate limited"}
	case httpx.IsRetryableHTTPStatus(resp.StatusCode):
		return nil, 0, &Error{Provider: "github", Code: ErrorHTTP, StatusCode: resp.StatusCode, Message: truncateSnippet(raw)}
	default:
		return nil, -1, &Error{Provider: "github", Code: ErrorHTTP, StatusCode: resp.StatusCode, Message: truncateSnippet(raw)}
	}
}

// isGitHubRateLimited detects primary rate limiting, which GitHub reports
// as 403 with a zero remaining quota rather than 429.
func isGitHubRateLimited(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	return strings.TrimSpace(resp.Header.Get("X-RateLimit-Remaining")) == "0"
}

// githubRateLimitWait prefers Retry-After, then the X-RateLimit-Reset epoch,
// capped so a worker never sleeps through its claim window.
func githubRateLimitWait(resp *http.Response) time.Duration {
	const maxWait = 60 * time.Second
	if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
		return httpx.RetryAfterDuration(resp, 2*time.Second, maxWait)
	}
	if reset := strings.TrimSpace(resp.Header.Get("X-RateLimit-Reset")); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				if d > maxWait {
					return maxWait
				}
				return d
			}
		}
	}
	return 2 * time.Second
}

func repoFromPayload(p *githubRepoPayload) *GitHubRepo {
	repo := &GitHubRepo{
		FullName:    p.FullName,
		Description: strings.TrimSpace(p.Description),
		Stars:       p.Stargazers,
		Forks:       p.Forks,
		Language:    p.Language,
		Topics:      p.Topics,
		Homepage:    strings.TrimSpace(p.Homepage),
		Archived:    p.Archived,
	}
	if p.License != nil && p.License.SPDXID != "NOASSERTION" {
		repo.License = p.License.SPDXID
	}
	if at, err := time.Parse(time.RFC3339, p.PushedAt); err == nil {
		repo.PushedAt = at
	}
	return repo
}
