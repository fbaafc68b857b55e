package webx

import (
	"net"
	"testing"
)

func TestValidateURL(t *testing.T) {
	g := guard{}
	cases := []struct {
		name    string
		url     string
		wantErr ErrorCode
	}{
		{"https allowed", "https://go.dev/doc/effective_go", ""},
		{"http allowed", "http://example.com/page", ""},
		{"ftp rejected", "ftp://example.com/file", ErrorInvalidURL},
		{"file rejected", "file:///etc/passwd", ErrorInvalidURL},
		{"no host", "https:///path-only", ErrorInvalidURL},
		{"localhost", "http://localhost:8080/admin", ErrorBlockedURL},
		{"localhost subdomain", "http://svc.localhost/x", ErrorBlockedURL},
		{"dot local", "https://nas.local/share", ErrorBlockedURL},
		{"dot internal", "https://vault.internal/secrets", ErrorBlockedURL},
		{"loopback ip", "http://127.0.0.1:9000/", ErrorBlockedURL},
		{"rfc1918 ip", "https://192.168.1.1/router", ErrorBlockedURL},
		{"ten net", "https://10.0.0.5/", ErrorBlockedURL},
		{"cgnat", "https://100.64.0.1/", ErrorBlockedURL},
		{"v6 loopback", "http://[::1]/", ErrorBlockedURL},
		{"v6 unique local", "http://[fd12:3456::1]/", ErrorBlockedURL},
		{"public ip", "https://93.184.216.34/", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.validateURL(tc.url)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("validateURL(%q) = %v, want nil", tc.url, err)
				}
				return
			}
			typed, ok := err.(*Error)
			if !ok {
				t.Fatalf("validateURL(%q) = %v, want *Error", tc.url, err)
			}
			if typed.Code != tc.wantErr {
				t.Fatalf("validateURL(%q) code = %s, want %s", tc.url, typed.Code, tc.wantErr)
			}
		})
	}
}

func TestValidateURLAllowPrivate(t *testing.T) {
	g := guard{allowPrivate: true}
	for _, raw := range []string{
		"http://localhost:8080/wiki",
		"http://127.0.0.1:9000/",
		"https://192.168.1.10/docs",
	} {
		if err := g.validateURL(raw); err != nil {
			t.Fatalf("validateURL(%q) with allowPrivate = %v, want nil", raw, err)
		}
	}
	if err := g.validateURL("ftp://192.168.1.10/"); err == nil {
		t.Fatalf("scheme check must hold even with allowPrivate")
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{
		"127.0.0.1", "10.1.2.3", "172.16.0.9", "192.168.0.1",
		"169.254.1.1", "100.64.10.10", "0.0.0.0",
		"::1", "fe80::1", "fd00::1", "::ffff:192.168.1.1",
	}
	for _, raw := range private {
		ip := net.ParseIP(raw)
		if ip == nil {
			t.Fatalf("bad fixture %q", raw)
		}
		if !isPrivateIP(ip) {
			t.Fatalf("isPrivateIP(%s) = false, want true", raw)
		}
	}

	public := []string{"8.8.8.8", "93.184.216.34", "2606:4700::6810:84e5"}
	for _, raw := range public {
		ip := net.ParseIP(raw)
		if ip == nil {
			t.Fatalf("bad fixture %q", raw)
		}
		if isPrivateIP(ip) {
			t.Fatalf("isPrivateIP(%s) = true, want false", raw)
		}
	}
}
