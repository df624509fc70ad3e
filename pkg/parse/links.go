package parse

import (
	"net/url"
	"strings"
)

// redirectParams lists, per wrapper path, the query parameters that carry the real target
var redirectParams = map[string][]string{
	"/url":      {"q", "url"},
	"/l/":       {"uddg"},
	"/l":        {"uddg"},
	"/redirect": {"url", "u", "target"},
}

// ResolveHref resolves href against base and returns it only if the result is http(s).
func ResolveHref(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if !IsHTTP(ref) {
		return nil, false
	}
	return ref, true
}

// UnwrapRedirect returns the target of a known redirect wrapper such as a search
// engine's /url?q=, /l/?uddg= or /redirect?url= link. Other URLs are returned unchanged.
func UnwrapRedirect(u *url.URL) *url.URL {
	params, ok := redirectParams[u.Path]
	if !ok {
		return u
	}
	query := u.Query()
	for _, p := range params {
		raw := query.Get(p)
		if raw == "" {
			continue
		}
		target, err := url.Parse(raw)
		if err != nil || !IsHTTP(target) {
			continue
		}
		return target
	}
	return u
}

// HostKey lowercases host, drops any port and a leading "www."
func HostKey(host string) string {
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimPrefix(host, "www.")
}

// SameSite reports whether host is siteHost or one of its subdomains, ignoring "www."
func SameSite(host, siteHost string) bool {
	h, s := HostKey(host), HostKey(siteHost)
	if h == "" || s == "" {
		return false
	}
	return h == s || strings.HasSuffix(h, "."+s)
}
