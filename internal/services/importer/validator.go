package importer

import (
	"net"
	"net/url"
	"strings"

	"github.com/RBarbieri13/decant/internal/common"
)

// blockedHostnames are rejected outright before any DNS or range check.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.azure.com":       true,
}

// privateRanges are the CIDR blocks an import is never allowed to reach.
var privateRanges = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(blocks ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, block := range blocks {
		_, parsed, err := net.ParseCIDR(block)
		if err != nil {
			panic(err)
		}
		nets = append(nets, parsed)
	}
	return nets
}

// ValidateURL enforces the import preconditions: parseable, http(s), a
// hostname, and not a private or cloud-metadata target. Every failure is
// non-recoverable.
func ValidateURL(rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return common.NewError(common.ErrURLEmpty, "url must not be empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return common.NewError(common.ErrURLInvalid, "url is not parseable: "+trimmed).WithCause(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return common.NewError(common.ErrURLInvalidProtocol, "url protocol must be http or https, got "+parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return common.NewError(common.ErrURLNoHostname, "url has no hostname: "+trimmed)
	}

	if blockedHostnames[host] || strings.HasSuffix(host, ".localhost") {
		return ssrfBlocked(host)
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, block := range privateRanges {
			if block.Contains(ip) {
				return ssrfBlocked(host)
			}
		}
	}

	return nil
}

func ssrfBlocked(host string) error {
	return common.NewError(common.ErrSSRFBlocked, "refusing to fetch private or metadata host: "+host)
}

// NormalizeURL canonicalizes a URL for cache keying: lowercased scheme and
// host, default ports and trailing slashes dropped, fragment removed.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)
	switch {
	case parsed.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case parsed.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	parsed.Host = host
	parsed.Fragment = ""
	if parsed.Path == "/" {
		parsed.Path = ""
	}

	return parsed.String()
}
