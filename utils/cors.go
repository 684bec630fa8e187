package utils

import (
	"net/netip"
	"net/url"
	"strings"
)

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// OriginPolicy decides which Origin header values are trusted for CORS.
// Local and private-network origins are always trusted; public ones only
// when listed explicitly.
type OriginPolicy struct {
	extra map[string]struct{}
}

func NewOriginPolicy(allowed []string) *OriginPolicy {
	p := &OriginPolicy{extra: make(map[string]struct{}, len(allowed))}
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
		if origin != "" {
			p.extra[origin] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether origin may call the API from a browser.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if p != nil {
		if _, ok := p.extra[strings.TrimRight(strings.ToLower(origin), "/")]; ok {
			return true
		}
	}
	return IsLocalOrigin(origin)
}

// IsLocalOrigin accepts localhost, .local names, single-label LAN names and
// private or link-local IP addresses.
func IsLocalOrigin(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()

	switch {
	case host == "localhost", strings.HasSuffix(host, ".local"):
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return isPrivateAddr(addr)
	}
	return !strings.Contains(host, ".")
}

func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range privatePrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
