package urlkey

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type Kind string

const (
	KindYouTube    Kind = "youtube"
	KindGitHubRepo Kind = "github_repo"
	KindArxiv      Kind = "arxiv"
	KindPyPI       Kind = "pypi"
	KindNPM        Kind = "npm"
	KindDOI        Kind = "doi"
	KindWeb        Kind = "web"
)

// Classified is the outcome of URL classification: exactly one kind plus the
// stable identifier for that kind (video id, OWNER/REPO, arxiv id, package
// name, DOI, or the canonical URL for plain web pages).
type Classified struct {
	Kind Kind
	ID   string
	Raw  string
}

var (
	youtubeIDRe    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	arxivNewRe     = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)
	arxivLegacyRe  = regexp.MustCompile(`^[a-z-]+(\.[A-Z]{2})?/\d{7}(v\d+)?$`)
	githubOwnerRe  = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
	doiRe          = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	npmScopedRe    = regexp.MustCompile(`^@[a-z0-9~][a-z0-9-._~]*/[a-z0-9~][a-z0-9-._~]*$`)
	npmPlainRe     = regexp.MustCompile(`^[a-z0-9~][a-z0-9-._~]*$`)
	pypiProjectRe  = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
)

// non-repository top level github paths
var githubReservedOwners = map[string]bool{
	"orgs": true, "topics": true, "search": true, "features": true,
	"marketplace": true, "sponsors": true, "settings": true, "login": true,
	"about": true, "pricing": true, "collections": true, "trending": true,
	"explore": true, "apps": true, "site": true, "contact": true,
}

// Classify maps a raw URL to exactly one source kind and extracts the stable
// identifier. Unrecognized URLs classify as web with the raw URL as id.
func Classify(raw string) (Classified, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Classified{}, fmt.Errorf("empty url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return Classified{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return Classified{}, fmt.Errorf("url has no host: %q", raw)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if id := youtubeVideoID(host, u); id != "" {
		return Classified{Kind: KindYouTube, ID: id, Raw: trimmed}, nil
	}
	if host == "github.com" {
		if id := githubRepoID(u); id != "" {
			return Classified{Kind: KindGitHubRepo, ID: id, Raw: trimmed}, nil
		}
	}
	if host == "arxiv.org" {
		if id := arxivID(u); id != "" {
			return Classified{Kind: KindArxiv, ID: id, Raw: trimmed}, nil
		}
	}
	if host == "pypi.org" {
		if id := pathSegmentAfter(u, "project"); id != "" && pypiProjectRe.MatchString(id) {
			return Classified{Kind: KindPyPI, ID: id, Raw: trimmed}, nil
		}
	}
	if host == "npmjs.com" {
		if id := npmPackageID(u); id != "" {
			return Classified{Kind: KindNPM, ID: id, Raw: trimmed}, nil
		}
	}
	if host == "doi.org" || host == "dx.doi.org" {
		id := strings.TrimPrefix(u.EscapedPath(), "/")
		if unescaped, err := url.PathUnescape(id); err == nil {
			id = unescaped
		}
		if doiRe.MatchString(id) {
			return Classified{Kind: KindDOI, ID: id, Raw: trimmed}, nil
		}
	}
	return Classified{Kind: KindWeb, ID: trimmed, Raw: trimmed}, nil
}

func youtubeVideoID(host string, u *url.URL) string {
	candidate := ""
	switch host {
	case "youtu.be":
		candidate = firstPathSegment(u)
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		segs := pathSegments(u)
		if len(segs) == 0 {
			return ""
		}
		switch segs[0] {
		case "watch":
			candidate = u.Query().Get("v")
		case "embed", "shorts", "live", "v":
			if len(segs) > 1 {
				candidate = segs[1]
			}
		}
	}
	if youtubeIDRe.MatchString(candidate) {
		return candidate
	}
	return ""
}

func githubRepoID(u *url.URL) string {
	segs := pathSegments(u)
	if len(segs) < 2 {
		return ""
	}
	owner, repo := segs[0], segs[1]
	if githubReservedOwners[strings.ToLower(owner)] {
		return ""
	}
	repo = strings.TrimSuffix(repo, ".git")
	if !githubOwnerRe.MatchString(owner) || repo == "" {
		return ""
	}
	return owner + "/" + repo
}

func arxivID(u *url.URL) string {
	segs := pathSegments(u)
	if len(segs) < 2 {
		return ""
	}
	switch segs[0] {
	case "abs", "pdf":
	default:
		return ""
	}
	id := strings.Join(segs[1:], "/")
	id = strings.TrimSuffix(id, ".pdf")
	if arxivNewRe.MatchString(id) || arxivLegacyRe.MatchString(id) {
		return id
	}
	return ""
}

func npmPackageID(u *url.URL) string {
	segs := pathSegments(u)
	if len(segs) < 2 || segs[0] != "package" {
		return ""
	}
	// scoped packages keep the @scope/name form
	if strings.HasPrefix(segs[1], "@") {
		if len(segs) < 3 {
			return ""
		}
		id := segs[1] + "/" + segs[2]
		if npmScopedRe.MatchString(id) {
			return id
		}
		return ""
	}
	if npmPlainRe.MatchString(segs[1]) {
		return segs[1]
	}
	return ""
}

func pathSegments(u *url.URL) []string {
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func firstPathSegment(u *url.URL) string {
	segs := pathSegments(u)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

func pathSegmentAfter(u *url.URL, marker string) string {
	segs := pathSegments(u)
	for i, s := range segs {
		if s == marker && i+1 < len(segs) {
			return segs[i+1]
		}
	}
	return ""
}
