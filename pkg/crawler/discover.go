package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/page"
	"github.com/Sriram-PR/field-scraper/pkg/parse"
)

// linkPattern is one entry of the fixed discovery pattern list
type linkPattern struct {
	css string
	// absoluteOnly accepts only hrefs written as absolute http(s) URLs
	absoluteOnly bool
}

// discoveryPatterns are tried in order: named result containers for common search
// engines first, then any anchor carrying an absolute http(s) href.
var discoveryPatterns = []linkPattern{
	{css: "div.g a[href]"},                 // Google
	{css: "li.b_algo h2 a[href]"},          // Bing
	{css: "a.result__a[href]"},             // DuckDuckGo
	{css: ".result a[href]"},               // Generic result blocks
	{css: "a[href]", absoluteOnly: true},
}

// Discoverer collects candidate site URLs from a loaded results page
type Discoverer struct {
	log *logrus.Entry
}

// NewDiscoverer creates a Discoverer
func NewDiscoverer(log *logrus.Entry) *Discoverer {
	return &Discoverer{log: log.WithField("component", "discover")}
}

// Collect reads candidate links from p in pattern order. Relative hrefs resolve against the
// page URL, redirect wrappers are unwrapped, and links on the page's own site are dropped.
// Candidates are deduplicated by literal string and capped at limit.
func (d *Discoverer) Collect(ctx context.Context, p page.Page, limit int) ([]string, error) {
	current, err := p.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(current)
	if err != nil {
		return nil, fmt.Errorf("page URL '%s': %w", current, err)
	}

	seen := make(map[string]struct{})
	var candidates []string
	for _, pattern := range discoveryPatterns {
		elements, err := p.Query(ctx, pattern.css)
		if err != nil {
			d.log.Debugf("Discovery pattern '%s' failed: %v", pattern.css, err)
			continue
		}
		for _, el := range elements {
			if len(candidates) >= limit {
				return candidates, nil
			}
			href, ok, err := el.Value(ctx, models.Attribute{Kind: models.AttributeNamed, Name: "href"})
			if err != nil || !ok {
				continue
			}
			candidate, ok := d.candidate(base, href, pattern.absoluteOnly)
			if !ok {
				continue
			}
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			candidates = append(candidates, candidate)
		}
	}
	return candidates, nil
}

// candidate turns one href into a crawlable off-site URL
func (d *Discoverer) candidate(base *url.URL, href string, absoluteOnly bool) (string, bool) {
	href = strings.TrimSpace(href)
	if absoluteOnly {
		lower := strings.ToLower(href)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return "", false
		}
	}
	resolved, ok := parse.ResolveHref(base, href)
	if !ok {
		return "", false
	}
	target := parse.UnwrapRedirect(resolved)
	if !parse.IsHTTP(target) || target.Host == "" {
		return "", false
	}
	if parse.SameSite(target.Host, base.Host) {
		return "", false
	}
	return target.String(), true
}
