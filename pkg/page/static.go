package page

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Sriram-PR/field-scraper/pkg/fetch"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/parse"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// StaticRenderer loads pages over plain HTTP and parses them without running scripts.
// CSS queries go through goquery and XPath queries through htmlquery, over the same parsed tree.
type StaticRenderer struct {
	fetcher *fetch.Fetcher
	log     *logrus.Entry
}

// NewStaticRenderer creates a StaticRenderer
func NewStaticRenderer(fetcher *fetch.Fetcher, log *logrus.Entry) *StaticRenderer {
	return &StaticRenderer{fetcher: fetcher, log: log.WithField("renderer", "static")}
}

// Open returns a new tab sending userAgent with every request
func (r *StaticRenderer) Open(_ context.Context, userAgent string) (Tab, error) {
	return &staticTab{renderer: r, userAgent: userAgent}, nil
}

// Close is a no-op; the HTTP client is shared and owned by the caller
func (r *StaticRenderer) Close() error { return nil }

// staticTab holds the currently loaded document
type staticTab struct {
	renderer  *StaticRenderer
	userAgent string

	mu   sync.RWMutex
	url  *url.URL
	root *html.Node
	doc  *goquery.Document
}

// FromHTML builds a Page from markup already in hand. Activation follows links through no renderer
// and so fails with ErrActivationUnsupported.
func FromHTML(pageURL string, markup []byte) (Page, error) {
	t := &staticTab{}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: URL '%s': %v", utils.ErrParsing, pageURL, err)
	}
	if err := t.setDocument(u, markup); err != nil {
		return nil, err
	}
	return t, nil
}

// Load fetches rawURL and replaces the tab's document
func (t *staticTab) Load(ctx context.Context, rawURL string) error {
	if _, _, err := parse.ParseAndNormalize(rawURL); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrPageLoad, err)
	}
	doc, err := t.renderer.fetcher.FetchPage(ctx, rawURL, t.userAgent)
	if err != nil {
		return fmt.Errorf("%w: loading '%s': %w", utils.ErrPageLoad, rawURL, err)
	}
	if err := t.setDocument(doc.URL, doc.Body); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrPageLoad, err)
	}
	t.renderer.log.WithFields(logrus.Fields{"url": rawURL, "bytes": len(doc.Body)}).Debug("Loaded page")
	return nil
}

func (t *staticTab) setDocument(u *url.URL, markup []byte) error {
	root, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return fmt.Errorf("%w: HTML of '%s': %v", utils.ErrParsing, u, err)
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Url = u

	t.mu.Lock()
	t.url, t.root, t.doc = u, root, doc
	t.mu.Unlock()
	return nil
}

// loaded returns the current document or an error if nothing was loaded
func (t *staticTab) loaded() (*goquery.Document, *html.Node, *url.URL, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.doc == nil {
		return nil, nil, nil, fmt.Errorf("%w: no document loaded", utils.ErrPageLoad)
	}
	return t.doc, t.root, t.url, nil
}

// Query resolves a CSS selector. Invalid selectors are reported rather than matching nothing.
func (t *staticTab) Query(_ context.Context, css string) ([]Element, error) {
	doc, _, _, err := t.loaded()
	if err != nil {
		return nil, err
	}
	matcher, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("%w: CSS selector '%s': %v", utils.ErrElementResolution, css, err)
	}
	return t.wrap(doc.FindMatcher(matcher).Nodes), nil
}

// QueryPath resolves an XPath expression to element nodes
func (t *staticTab) QueryPath(_ context.Context, expr string) ([]Element, error) {
	_, root, _, err := t.loaded()
	if err != nil {
		return nil, err
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: XPath '%s': %v", utils.ErrElementResolution, expr, err)
	}
	return t.wrap(nodes), nil
}

func (t *staticTab) wrap(nodes []*html.Node) []Element {
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &staticElement{tab: t, node: n})
	}
	return elements
}

// Text returns the rendered text of the document body
func (t *staticTab) Text(_ context.Context) (string, error) {
	doc, root, _, err := t.loaded()
	if err != nil {
		return "", err
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return renderedText(body.Nodes[0]), nil
	}
	return renderedText(root), nil
}

// CurrentURL returns the normalized URL the document was served from, or the pending
// navigation target after an activation
func (t *staticTab) CurrentURL(_ context.Context) (string, error) {
	t.mu.RLock()
	u := t.url
	t.mu.RUnlock()
	if u == nil {
		return "", fmt.Errorf("%w: no document loaded", utils.ErrPageLoad)
	}
	return parse.NormalizeURL(u), nil
}

// Close drops the loaded document
func (t *staticTab) Close() error {
	t.mu.Lock()
	t.url, t.root, t.doc = nil, nil, nil
	t.mu.Unlock()
	return nil
}

// staticElement is a node of a staticTab's document
type staticElement struct {
	tab  *staticTab
	node *html.Node
}

func (e *staticElement) selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

// Value reads text, inner HTML or a named attribute
func (e *staticElement) Value(_ context.Context, attr models.Attribute) (string, bool, error) {
	switch attr.Kind {
	case models.AttributeText:
		return htmlquery.InnerText(e.node), true, nil
	case models.AttributeHTML:
		markup, err := e.selection().Html()
		if err != nil {
			return "", false, fmt.Errorf("%w: reading inner HTML: %v", utils.ErrElementResolution, err)
		}
		return markup, true, nil
	default:
		v, ok := e.selection().Attr(attr.Name)
		return v, ok, nil
	}
}

func (e *staticElement) IsDisabled(_ context.Context) (bool, error) {
	attrs := make(map[string]string, len(e.node.Attr))
	for _, a := range e.node.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}
	return disabledFromAttributes(attrs), nil
}

// Activate navigates the tab to the element's link: its own href, a descendant anchor's, or an
// enclosing anchor's. The target is fetched by the next Load; until then CurrentURL reports it
// and queries fail. Controls without a link (script-driven buttons) need the Chrome renderer.
func (e *staticElement) Activate(_ context.Context) error {
	if e.tab.renderer == nil {
		return fmt.Errorf("%w: page has no renderer", utils.ErrActivationUnsupported)
	}
	href, ok := linkTarget(e.node)
	if !ok {
		return fmt.Errorf("%w: <%s> has no link to follow without a browser", utils.ErrActivationUnsupported, e.node.Data)
	}
	_, _, base, err := e.tab.loaded()
	if err != nil {
		return err
	}
	target, ok := parse.ResolveHref(base, href)
	if !ok {
		return fmt.Errorf("%w: link '%s' is not an http(s) URL", utils.ErrActivationUnsupported, href)
	}

	e.tab.mu.Lock()
	e.tab.url, e.tab.root, e.tab.doc = target, nil, nil
	e.tab.mu.Unlock()
	return nil
}

// linkTarget finds the href an activation of n would follow
func linkTarget(n *html.Node) (string, bool) {
	if href, ok := anchorHref(n); ok {
		return href, true
	}
	if a := htmlquery.FindOne(n, ".//a[@href]"); a != nil {
		return htmlquery.SelectAttr(a, "href"), true
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if href, ok := anchorHref(p); ok {
			return href, true
		}
	}
	return "", false
}

func anchorHref(n *html.Node) (string, bool) {
	if n.Type != html.ElementNode || (n.DataAtom != atom.A && n.DataAtom != atom.Area) {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == "href" && strings.TrimSpace(a.Val) != "" {
			return a.Val, true
		}
	}
	return "", false
}
