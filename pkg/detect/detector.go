// Package detect recognizes pages whose content is assembled client-side, so a static
// fetch that yields nothing can be explained instead of silently returning zero records.
package detect

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/page"
)

// Framework represents a detected front-end framework
type Framework string

const (
	FrameworkUnknown   Framework = "unknown"
	FrameworkNextJS    Framework = "nextjs"
	FrameworkNuxt      Framework = "nuxt"
	FrameworkGatsby    Framework = "gatsby"
	FrameworkSvelteKit Framework = "sveltekit"
	FrameworkAngular   Framework = "angular"
	FrameworkVue       Framework = "vue"
	FrameworkReact     Framework = "react"
)

// DetectionResult is the outcome of inspecting one page
type DetectionResult struct {
	Framework      Framework // Detected framework (or unknown)
	ClientRendered bool      // True when the page likely needs a browser renderer
}

// RenderDetector inspects loaded pages for client-side rendering signatures
type RenderDetector struct {
	cache *HintCache
	log   *logrus.Entry
}

// NewRenderDetector creates a new detector with per-host caching
func NewRenderDetector(log *logrus.Entry) *RenderDetector {
	return &RenderDetector{
		cache: NewHintCache(),
		log:   log,
	}
}

// Detect classifies p. Results are cached per host, so callers should pass the host
// the page was loaded from. An empty host disables caching.
func (d *RenderDetector) Detect(ctx context.Context, p page.Page, host string) DetectionResult {
	if host != "" {
		if cached, ok := d.cache.Get(host); ok {
			return cached
		}
	}

	result := DetectionResult{Framework: FrameworkUnknown}
	markup := documentMarkup(ctx, p)
	for i := range frameworkSignatures {
		sig := &frameworkSignatures[i]
		if sig.Matches(ctx, p, markup) {
			result = DetectionResult{Framework: sig.Framework, ClientRendered: true}
			d.log.Debugf("Detected %s signature on %s", sig.Framework, host)
			break
		}
	}

	if host != "" {
		d.cache.Set(host, result)
	}
	return result
}

// Cache exposes the detector's host cache
func (d *RenderDetector) Cache() *HintCache {
	return d.cache
}

// documentMarkup returns the serialized root element, or "" when it cannot be read
func documentMarkup(ctx context.Context, p page.Page) string {
	roots, err := p.Query(ctx, "html")
	if err != nil || len(roots) == 0 {
		return ""
	}
	markup, _, err := roots[0].Value(ctx, htmlAttribute)
	if err != nil {
		return ""
	}
	return markup
}
