// Package page defines the rendered-page model the extraction engine runs against,
// plus a static HTTP renderer and a headless Chrome renderer.
package page

import (
	"context"
	"strings"

	"github.com/Sriram-PR/field-scraper/pkg/models"
)

// Renderer opens independent tabs. Implementations are safe for concurrent Open calls.
type Renderer interface {
	Open(ctx context.Context, userAgent string) (Tab, error)
	Close() error
}

// Page is a loaded document
type Page interface {
	// Query returns all elements matching a CSS selector, in document order
	Query(ctx context.Context, css string) ([]Element, error)
	// QueryPath returns all elements matching an XPath expression, in document order
	QueryPath(ctx context.Context, expr string) ([]Element, error)
	// Text returns the visible text of the whole document
	Text(ctx context.Context) (string, error)
	// CurrentURL returns the location of the loaded document
	CurrentURL(ctx context.Context) (string, error)
}

// Tab is a Page that can navigate. A tab is owned by a single run.
type Tab interface {
	Page
	Load(ctx context.Context, url string) error
	Close() error
}

// Element is a handle to one matched node
type Element interface {
	// Value reads the element per attr. ok is false when a named attribute is absent.
	Value(ctx context.Context, attr models.Attribute) (value string, ok bool, err error)
	IsDisabled(ctx context.Context) (bool, error)
	// Activate follows or clicks the element; the owning tab reflects the result
	Activate(ctx context.Context) error
}

// IsPathQuery reports whether a selector string reads as XPath rather than CSS
func IsPathQuery(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}

// disabledFromAttributes reports whether an element's attributes mark it disabled:
// a disabled attribute, a "disabled" class, or aria-disabled="true".
func disabledFromAttributes(attrs map[string]string) bool {
	if _, ok := attrs["disabled"]; ok {
		return true
	}
	for _, class := range strings.Fields(attrs["class"]) {
		if class == "disabled" {
			return true
		}
	}
	return strings.EqualFold(strings.TrimSpace(attrs["aria-disabled"]), "true")
}
