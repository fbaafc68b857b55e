package webx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Reserved ranges the stdlib classifiers miss: carrier-grade NAT, IPv6
// unique local, IPv6 link local.
var reservedNets = func() []*net.IPNet {
	blocks := []string{"100.64.0.0/10", "fc00::/7", "fe80::/10"}
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, block := range blocks {
		_, n, err := net.ParseCIDR(block)
		if err != nil {
			panic("webx: bad reserved CIDR " + block)
		}
		nets = append(nets, n)
	}
	return nets
}()

// guard decides which fetch targets are reachable. allowPrivate opens the
// private ranges for self-hosted sources (wikis, local doc servers) and
// for tests; the default refuses them.
type guard struct {
	allowPrivate bool
}

// validateURL rejects URLs that could reach internal services. It checks
// the literal host; resolved addresses are re-checked at dial time.
func (g guard) validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return extractErr(ErrorInvalidURL, "parse url", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return extractErr(ErrorInvalidURL, fmt.Sprintf("unsupported scheme %q", parsed.Scheme), nil)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return extractErr(ErrorInvalidURL, "url has no host", nil)
	}
	if g.allowPrivate {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return extractErr(ErrorBlockedURL, "localhost is not allowed", nil)
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return extractErr(ErrorBlockedURL, "local domains are not allowed", nil)
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return extractErr(ErrorBlockedURL, fmt.Sprintf("address %s is not allowed", host), nil)
	}
	return nil
}

// isPrivateIP covers loopback, RFC1918, link local, unspecified, and the
// reserved blocks above, including IPv4-mapped IPv6 forms.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		if v4.IsLoopback() || v4.IsPrivate() || v4.IsLinkLocalUnicast() || v4.IsUnspecified() {
			return true
		}
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// client builds an HTTP client whose dialer re-resolves and validates
// every hop, and whose redirect policy re-validates targets with a cap of
// 5 hops.
func (g guard) client(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	guardedDial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if g.allowPrivate {
			return dialer.DialContext(ctx, network, addr)
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, extractErr(ErrorInvalidURL, "invalid dial address", err)
		}
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, extractErr(ErrorFetchFailed, "dns lookup failed", err)
		}
		for _, ipAddr := range ips {
			if isPrivateIP(ipAddr.IP) {
				return nil, extractErr(ErrorBlockedURL, fmt.Sprintf("%s resolves to blocked address %s", host, ipAddr.IP), nil)
			}
		}
		var lastErr error
		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no addresses for %s", host)
		}
		return nil, extractErr(ErrorFetchFailed, "connect failed", lastErr)
	}

	transport := &http.Transport{
		DialContext:           guardedDial,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return extractErr(ErrorFetchFailed, "too many redirects", nil)
			}
			return g.validateURL(req.URL.String())
		},
	}
}
