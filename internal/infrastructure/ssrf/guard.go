// Package ssrf implements the static URL policy that every outbound
// upstream dispatch must pass before DNS resolution or any network
// call is attempted.
package ssrf

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var reservedTLDs = []string{".local", ".internal", ".corp", ".home", ".lan", ".intranet"}

var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"metadata.google.internal": true,
	"metadata.azure.internal":  true,
}

var privateCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"127.0.0.0/8",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// Guard evaluates the static URL policy an upstream dispatch must satisfy.
// Internal endpoints (upstream URLs starting with "/") are rewritten
// against apiBase by Check and bypass the private-range check; the
// loopback/unspecified check still applies to them.
type Guard struct {
	apiBase string
}

// NewGuard constructs a Guard that rewrites internal ("/"-prefixed)
// upstream URLs against apiBase.
func NewGuard(apiBase string) *Guard {
	return &Guard{apiBase: apiBase}
}

// Check validates rawURL against the static policy, returning the resolved
// URL to dispatch against (after internal-endpoint rewriting) or an error
// naming the violated rule.
func (g *Guard) Check(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "/") {
		resolved := strings.TrimRight(g.apiBase, "/") + rawURL
		return g.checkResolved(resolved, true)
	}
	return g.checkResolved(rawURL, false)
}

func (g *Guard) checkResolved(rawURL string, internal bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("ssrf: malformed url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("ssrf: scheme %q not allowed", u.Scheme)
	}

	if u.User != nil {
		return "", fmt.Errorf("ssrf: url must not carry userinfo credentials")
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("ssrf: empty host")
	}

	if !strings.Contains(host, ".") && !strings.Contains(host, ":") {
		return "", fmt.Errorf("ssrf: host %q must contain a dot or colon", host)
	}

	if isBareDecimal(host) {
		return "", fmt.Errorf("ssrf: host %q looks like an obfuscated IP", host)
	}

	lowerHost := strings.ToLower(host)
	for _, tld := range reservedTLDs {
		if strings.HasSuffix(lowerHost, tld) {
			return "", fmt.Errorf("ssrf: host %q uses a reserved internal TLD", host)
		}
	}

	if metadataHosts[lowerHost] {
		return "", fmt.Errorf("ssrf: host %q is a known cloud metadata endpoint", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || isUnspecified(ip) {
			return "", fmt.Errorf("ssrf: host %q is a loopback/unspecified literal", host)
		}
		if !internal {
			for _, cidr := range privateCIDRs {
				if cidr.Contains(ip) {
					return "", fmt.Errorf("ssrf: host %q is in a private range", host)
				}
			}
		}
	}

	return rawURL, nil
}

func isUnspecified(ip net.IP) bool {
	return ip.Equal(net.IPv4zero) || ip.Equal(net.IPv6unspecified)
}

func isBareDecimal(host string) bool {
	if _, err := strconv.ParseUint(host, 10, 64); err == nil {
		return true
	}
	return false
}
