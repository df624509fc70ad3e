package detect

import (
	"context"
	"strings"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/page"
)

var htmlAttribute = models.Attribute{Kind: models.AttributeHTML}

// FrameworkSignature defines detection patterns for a client-rendered framework
type FrameworkSignature struct {
	Framework    Framework
	Attributes   []string // HTML attributes to look for (e.g., "ng-version")
	Classes      []string // CSS classes to look for; a trailing * matches a prefix
	Scripts      []string // Script src patterns to look for
	HTMLPatterns []string // Substring patterns to look for in the serialized document
}

// Matches returns true if the page matches this framework's signature.
// Query errors count as no match.
func (sig *FrameworkSignature) Matches(ctx context.Context, p page.Page, markup string) bool {
	for _, attr := range sig.Attributes {
		if found, _ := p.Query(ctx, "["+attr+"]"); len(found) > 0 {
			return true
		}
	}

	for _, class := range sig.Classes {
		if prefix, ok := strings.CutSuffix(class, "*"); ok {
			if anyAttribute(ctx, p, "[class]", "class", func(v string) bool {
				for _, c := range strings.Fields(v) {
					if strings.HasPrefix(c, prefix) {
						return true
					}
				}
				return false
			}) {
				return true
			}
		} else if found, _ := p.Query(ctx, "."+class); len(found) > 0 {
			return true
		}
	}

	for _, pattern := range sig.Scripts {
		if anyAttribute(ctx, p, "script[src]", "src", func(v string) bool {
			return strings.Contains(v, pattern)
		}) {
			return true
		}
	}

	htmlLower := strings.ToLower(markup)
	for _, pattern := range sig.HTMLPatterns {
		if strings.Contains(htmlLower, strings.ToLower(pattern)) {
			return true
		}
	}

	return false
}

// anyAttribute reports whether any element matching css has attribute name satisfying match
func anyAttribute(ctx context.Context, p page.Page, css, name string, match func(string) bool) bool {
	elements, err := p.Query(ctx, css)
	if err != nil {
		return false
	}
	attr := models.Attribute{Kind: models.AttributeNamed, Name: name}
	for _, el := range elements {
		v, ok, err := el.Value(ctx, attr)
		if err == nil && ok && match(v) {
			return true
		}
	}
	return false
}

// frameworkSignatures contains detection patterns for known client-rendered frameworks.
// Order matters: meta-frameworks come before the libraries they build on.
var frameworkSignatures = []FrameworkSignature{
	{
		Framework: FrameworkNextJS,
		Scripts:   []string{"/_next/static/"},
		HTMLPatterns: []string{
			`id="__next"`,
			"__next_data__",
		},
	},
	{
		Framework: FrameworkNuxt,
		Attributes: []string{
			"data-n-head",
		},
		Scripts: []string{"/_nuxt/"},
		HTMLPatterns: []string{
			`id="__nuxt"`,
			"window.__nuxt__",
		},
	},
	{
		Framework:    FrameworkGatsby,
		HTMLPatterns: []string{`id="___gatsby"`},
	},
	{
		Framework: FrameworkSvelteKit,
		Attributes: []string{
			"data-sveltekit-preload-data",
		},
		Classes:      []string{"svelte-*"},
		HTMLPatterns: []string{"__sveltekit"},
	},
	{
		Framework: FrameworkAngular,
		Attributes: []string{
			"ng-version",
			"ng-app",
		},
		HTMLPatterns: []string{"<app-root"},
	},
	{
		Framework: FrameworkVue,
		Attributes: []string{
			"data-v-app",
			"v-cloak",
		},
		HTMLPatterns: []string{`<div id="app"></div>`},
	},
	{
		Framework: FrameworkReact,
		Attributes: []string{
			"data-reactroot",
		},
		HTMLPatterns: []string{`<div id="root"></div>`},
	},
}
