package page

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	applog "github.com/Sriram-PR/field-scraper/pkg/log"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// ChromeRenderer drives one headless Chrome process. Every Open creates a new tab,
// so concurrent runs never share page state.
type ChromeRenderer struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
	log           *logrus.Entry
}

// NewChromeRenderer starts the browser
func NewChromeRenderer(cfg config.ChromeConfig, log *logrus.Entry) (*ChromeRenderer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if !cfg.IsHeadless() {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	rlog := log.WithField("renderer", "chrome")
	logf, debugf, errorf := applog.ChromeLogf(rlog)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logf), chromedp.WithDebugf(debugf), chromedp.WithErrorf(errorf))

	// An empty Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}
	rlog.Info("Chrome started")

	return &ChromeRenderer{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		log:           rlog,
	}, nil
}

// Open creates a new tab in the shared browser
func (r *ChromeRenderer) Open(ctx context.Context, userAgent string) (Tab, error) {
	tabCtx, cancel := chromedp.NewContext(r.browserCtx)
	t := &chromeTab{ctx: tabCtx, cancel: cancel, log: r.log}

	var actions []chromedp.Action
	if userAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(userAgent))
	}
	if err := t.run(ctx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("opening tab: %w", err)
	}
	return t, nil
}

// Close shuts the browser down
func (r *ChromeRenderer) Close() error {
	r.closeOnce.Do(func() {
		r.browserCancel()
		r.allocCancel()
		r.log.Info("Chrome stopped")
	})
	return nil
}

// chromeTab is one browser target
type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry
}

// run executes actions on the tab, bounded by the caller's ctx as well as the tab's lifetime
func (t *chromeTab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ctxErr, err)
		}
		return err
	}
	return nil
}

func (t *chromeTab) Load(ctx context.Context, rawURL string) error {
	err := t.run(ctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: loading '%s': %w", utils.ErrPageLoad, rawURL, err)
	}
	t.log.WithField("url", rawURL).Debug("Loaded page")
	return nil
}

func (t *chromeTab) Query(ctx context.Context, css string) ([]Element, error) {
	return t.nodes(ctx, css, chromedp.ByQueryAll)
}

// QueryPath uses DOM search, which accepts XPath expressions
func (t *chromeTab) QueryPath(ctx context.Context, expr string) ([]Element, error) {
	return t.nodes(ctx, expr, chromedp.BySearch)
}

func (t *chromeTab) nodes(ctx context.Context, sel string, by chromedp.QueryOption) ([]Element, error) {
	var nodes []*cdp.Node
	if err := t.run(ctx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("%w: '%s': %v", utils.ErrElementResolution, sel, err)
	}
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{tab: t, id: n.NodeID})
	}
	return elements, nil
}

// Text returns document.body.innerText
func (t *chromeTab) Text(ctx context.Context) (string, error) {
	var text string
	if err := t.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return "", fmt.Errorf("%w: reading page text: %v", utils.ErrElementResolution, err)
	}
	return text, nil
}

func (t *chromeTab) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := t.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("%w: reading location: %v", utils.ErrPageLoad, err)
	}
	return location, nil
}

// Close closes the browser tab
func (t *chromeTab) Close() error {
	t.cancel()
	return nil
}

// chromeElement refers to a node by id within its tab's current document
type chromeElement struct {
	tab *chromeTab
	id  cdp.NodeID
}

func (e *chromeElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.id}
}

func (e *chromeElement) Value(ctx context.Context, attr models.Attribute) (string, bool, error) {
	var (
		value string
		ok    = true
		err   error
	)
	switch attr.Kind {
	case models.AttributeText:
		err = e.tab.run(ctx, chromedp.TextContent(e.ids(), &value, chromedp.ByNodeID))
	case models.AttributeHTML:
		err = e.tab.run(ctx, chromedp.InnerHTML(e.ids(), &value, chromedp.ByNodeID))
	default:
		err = e.tab.run(ctx, chromedp.AttributeValue(e.ids(), attr.Name, &value, &ok, chromedp.ByNodeID))
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: reading %s: %v", utils.ErrElementResolution, attr, err)
	}
	return value, ok, nil
}

func (e *chromeElement) IsDisabled(ctx context.Context) (bool, error) {
	attrs := make(map[string]string)
	if err := e.tab.run(ctx, chromedp.Attributes(e.ids(), &attrs, chromedp.ByNodeID)); err != nil {
		return false, fmt.Errorf("%w: reading attributes: %v", utils.ErrElementResolution, err)
	}
	return disabledFromAttributes(attrs), nil
}

// Activate clicks the element
func (e *chromeElement) Activate(ctx context.Context) error {
	if err := e.tab.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("%w: click: %v", utils.ErrElementResolution, err)
	}
	return nil
}
