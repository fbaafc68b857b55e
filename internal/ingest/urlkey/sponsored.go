package urlkey

import (
	_ "embed"
	"net/url"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const sponsorRulesEnv = "SPONSOR_RULES_YAML"

//go:embed rules.yaml
var sponsorRulesRaw []byte

type sponsorRulesFile struct {
	Filter             string   `yaml:"filter"`
	Version            int      `yaml:"version"`
	BlockedHosts       []string `yaml:"blocked_hosts"`
	ShortenerHosts     []string `yaml:"shortener_hosts"`
	PathPatterns       []string `yaml:"path_patterns"`
	AWSContextKeywords []string `yaml:"aws_context_keywords"`
}

// fallback rule set used when the YAML is missing or invalid
var fallbackSponsorRules = sponsorRulesFile{
	ShortenerHosts:     []string{"bit.ly", "amzn.to", "geni.us", "tinyurl.com"},
	PathPatterns:       []string{"utm_", "ref=", "affiliate=", "sponsored"},
	AWSContextKeywords: []string{"aws", "s3", "ec2", "lambda"},
}

var (
	sponsorRulesOnce sync.Once
	sponsorRules     sponsorRulesFile
)

func loadSponsorRules() sponsorRulesFile {
	sponsorRulesOnce.Do(func() {
		raw := sponsorRulesRaw
		if path := strings.TrimSpace(os.Getenv(sponsorRulesEnv)); path != "" {
			if b, err := os.ReadFile(path); err == nil {
				raw = b
			}
		}
		var parsed sponsorRulesFile
		if err := yaml.Unmarshal(raw, &parsed); err != nil || len(parsed.PathPatterns) == 0 {
			sponsorRules = fallbackSponsorRules
			return
		}
		sponsorRules = parsed
	})
	return sponsorRules
}

// SponsorFilter flags affiliate, shortener and tracking URLs so they are not
// promoted to entities during URL detection.
type SponsorFilter struct {
	blocked     map[string]bool
	shorteners  map[string]bool
	patterns    []string
	awsKeywords []string
}

func NewSponsorFilter() *SponsorFilter {
	rules := loadSponsorRules()
	f := &SponsorFilter{
		blocked:     make(map[string]bool, len(rules.BlockedHosts)),
		shorteners:  make(map[string]bool, len(rules.ShortenerHosts)),
		patterns:    rules.PathPatterns,
		awsKeywords: rules.AWSContextKeywords,
	}
	for _, h := range rules.BlockedHosts {
		f.blocked[strings.ToLower(strings.TrimSpace(h))] = true
	}
	for _, h := range rules.ShortenerHosts {
		f.shorteners[strings.ToLower(strings.TrimSpace(h))] = true
	}
	return f
}

// IsSponsored reports whether a URL should be excluded from entity promotion.
// context is the text surrounding the URL where it was found; it decides the
// amazon.com case, which passes only with AWS-specific context.
func (f *SponsorFilter) IsSponsored(raw string, context string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if f.shorteners[host] {
		return true
	}
	if f.hostBlocked(host) {
		return true
	}
	if strings.EqualFold(u.Fragment, "ad") {
		return true
	}
	pathAndQuery := strings.ToLower(u.Path)
	if u.RawQuery != "" {
		pathAndQuery += "?" + strings.ToLower(u.RawQuery)
	}
	for _, p := range f.patterns {
		if strings.Contains(pathAndQuery, p) {
			return true
		}
	}
	if host == "amazon.com" || strings.HasSuffix(host, ".amazon.com") {
		return !f.hasAWSContext(raw + " " + context)
	}
	return false
}

func (f *SponsorFilter) hostBlocked(host string) bool {
	if f.blocked[host] {
		return true
	}
	for h := range f.blocked {
		if strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (f *SponsorFilter) hasAWSContext(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range f.awsKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
