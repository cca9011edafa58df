package main

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	coreWebHostnames = []string{"core.app", "test.core.app", "develop.core.app"}
	coreWebPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`^[a-z0-9-]+\.core-web\.pages\.dev$`),
		regexp.MustCompile(`^core-[a-z0-9-]+-ava-labs\.vercel\.app$`),
	}
	developmentHostnames = []string{"localhost", "127.0.0.1"}
)

// OriginPolicy decides whether a dApp origin is a trusted core application,
// which may use the core-only methods.
type OriginPolicy struct {
	hostnames map[string]struct{}
	patterns  []*regexp.Regexp
}

// NewOriginPolicy trusts the built-in hosts plus extraHostnames.
func NewOriginPolicy(extraHostnames ...string) *OriginPolicy {
	p := &OriginPolicy{
		hostnames: make(map[string]struct{}),
		patterns:  coreWebPatterns,
	}
	for _, lists := range [][]string{coreWebHostnames, developmentHostnames, extraHostnames} {
		for _, h := range lists {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				p.hostnames[h] = struct{}{}
			}
		}
	}
	return p
}

// IsCoreOrigin reports whether rawURL belongs to a trusted host.
func (p *OriginPolicy) IsCoreOrigin(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if _, ok := p.hostnames[host]; ok {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}
