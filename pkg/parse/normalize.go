package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// NormalizeURL standardizes a URL for logging and comparison.
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https),
// strips trailing slashes from non-root paths, turns an empty path into "/" and drops the fragment.
// The query string is kept since listing and search pages are addressed by it.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}
	normalized.RawPath = ""
	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String()
}

// ParseAndNormalize parses an absolute http(s) URL and normalizes it.
// Returns the normalized string, the parsed URL object, and an error wrapping ErrParsing.
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return "", nil, fmt.Errorf("%w: URL '%s': %v", utils.ErrParsing, urlStr, err)
	}
	if !IsHTTP(parsed) {
		return "", nil, fmt.Errorf("%w: URL '%s' is not an absolute http(s) URL", utils.ErrParsing, urlStr)
	}
	return NormalizeURL(parsed), parsed, nil
}

// IsHTTP reports whether u is an absolute http or https URL with a host
func IsHTTP(u *url.URL) bool {
	if u == nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
