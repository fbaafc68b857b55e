package urlkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// explicit tracking params beyond the utm_ prefix and *clid suffix families;
// keys are matched after trimming leading underscores
var trackingParamSet = map[string]bool{
	"gbraid":         true,
	"wbraid":         true,
	"mc_cid":         true,
	"mc_eid":         true,
	"hsenc":          true,
	"hsctatracking":  true,
	"hstc":           true,
	"hsmi":           true,
	"s_kwcid":        true,
	"igshid":         true,
	"spm":            true,
	"vero_id":        true,
	"vero_conv":      true,
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(strings.TrimLeft(key, "_"))
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	if strings.HasSuffix(k, "clid") {
		return true
	}
	return trackingParamSet[k]
}

// CanonicalWebURL reduces a URL to its identity-bearing parts: lowercased
// host with www stripped, default ports dropped, trailing slash removed
// (except root), tracking parameters removed, remaining query pairs sorted
// by (key, value), fragment dropped. Two URLs that canonicalize identically
// derive the same resource key.
func CanonicalWebURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host: %q", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	hostPort := host
	if port != "" {
		hostPort = host + ":" + port
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}

	type pair struct{ k, v string }
	var kept []pair
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key, err := url.QueryUnescape(kv[0])
		if err != nil {
			key = kv[0]
		}
		if isTrackingParam(key) {
			continue
		}
		val := ""
		if len(kv) == 2 {
			if unescaped, err := url.QueryUnescape(kv[1]); err == nil {
				val = unescaped
			} else {
				val = kv[1]
			}
		}
		kept = append(kept, pair{k: key, v: val})
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].k != kept[j].k {
			return kept[i].k < kept[j].k
		}
		return kept[i].v < kept[j].v
	})

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(hostPort)
	b.WriteString(path)
	if len(kept) > 0 {
		b.WriteString("?")
		for i, p := range kept {
			if i > 0 {
				b.WriteString("&")
			}
			b.WriteString(url.QueryEscape(p.k))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(p.v))
		}
	}
	return b.String(), nil
}

// ResourceKey derives the dedup key for a classified URL: yt:<video_id> for
// YouTube, url:<sha256(canonical)> for web, and a short per-kind prefix for
// the registry kinds when such URLs are ingested directly.
func ResourceKey(c Classified) (string, error) {
	switch c.Kind {
	case KindYouTube:
		return "yt:" + c.ID, nil
	case KindGitHubRepo:
		return "gh:" + strings.ToLower(c.ID), nil
	case KindArxiv:
		return "arxiv:" + c.ID, nil
	case KindPyPI:
		return "pypi:" + strings.ToLower(c.ID), nil
	case KindNPM:
		return "npm:" + strings.ToLower(c.ID), nil
	case KindDOI:
		return "doi:" + strings.ToLower(c.ID), nil
	case KindWeb:
		canonical, err := CanonicalWebURL(c.Raw)
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256([]byte(canonical))
		return "url:" + hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unknown url kind %q", c.Kind)
	}
}

// URLHash is the sha256 hex of the canonical form, used for web blob keys.
func URLHash(raw string) (string, error) {
	canonical, err := CanonicalWebURL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
