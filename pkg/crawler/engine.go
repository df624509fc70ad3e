// Package crawler drives extraction across pages: the single-site pagination loop,
// multi-site discovery and traversal, and the session bookkeeping around both.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/detect"
	"github.com/Sriram-PR/field-scraper/pkg/extract"
	"github.com/Sriram-PR/field-scraper/pkg/fetch"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/page"
	"github.com/Sriram-PR/field-scraper/pkg/session"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Job is one run request
type Job struct {
	Key       string                // Optional configuration key, recorded on the session
	SessionID string                // Generated when empty
	Config    *config.Configuration // Read-only for the duration of the run
}

// EngineOptions contains optional collaborators for NewEngine
type EngineOptions struct {
	// Registry allows sharing one registry between engines. A private one is created when nil.
	Registry *session.Registry
	// Robots enables the advisory robots.txt check for jobs with respect_robots set
	Robots *fetch.RobotsChecker
}

// Engine runs jobs against a renderer and reports them to a session store
type Engine struct {
	appCfg     *config.AppConfig
	renderer   page.Renderer
	store      session.Store
	registry   *session.Registry
	extractor  *extract.Engine
	discoverer *Discoverer
	detector   *detect.RenderDetector
	robots     *fetch.RobotsChecker
	log        *logrus.Entry

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an Engine. appCfg is expected to be validated.
func NewEngine(appCfg *config.AppConfig, renderer page.Renderer, store session.Store, log *logrus.Entry, opts *EngineOptions) *Engine {
	if opts == nil {
		opts = &EngineOptions{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = session.NewRegistry()
	}
	log = log.WithField("component", "crawler")
	return &Engine{
		appCfg:     appCfg,
		renderer:   renderer,
		store:      store,
		registry:   registry,
		extractor:  extract.NewEngine(log),
		discoverer: NewDiscoverer(log),
		detector:   detect.NewRenderDetector(log),
		robots:     opts.Robots,
		log:        log,
		sleep:      utils.SleepContext,
	}
}

// Registry returns the engine's session registry
func (e *Engine) Registry() *session.Registry {
	return e.registry
}

// Run executes job to completion, dispatching on its options, and returns the final snapshot.
// The error is non-nil only when the run could not be registered.
func (e *Engine) Run(ctx context.Context, job Job) (models.Session, error) {
	if job.Config != nil && job.Config.Options.MultiWebsite {
		return e.RunMultiSite(ctx, job)
	}
	return e.RunSingleSite(ctx, job)
}

// RunSingleSite executes the pagination loop for job.Config.TargetURL
func (e *Engine) RunSingleSite(ctx context.Context, job Job) (models.Session, error) {
	st, err := e.begin(job)
	if err != nil {
		return models.Session{}, err
	}
	return e.execute(ctx, st, e.runSingle), nil
}

// RunMultiSite discovers candidate sites from job.Config.TargetURL and extracts from each.
// Without extract_urls_from_results it falls back to the single-site run.
func (e *Engine) RunMultiSite(ctx context.Context, job Job) (models.Session, error) {
	if job.Config != nil && !job.Config.IsMultiSite() {
		e.log.WithField("job", job.Key).Debug("multi_website without extract_urls_from_results, running single-site")
		return e.RunSingleSite(ctx, job)
	}
	st, err := e.begin(job)
	if err != nil {
		return models.Session{}, err
	}
	return e.execute(ctx, st, e.runMulti), nil
}

// Start registers job and runs it in the background. The returned Run's done channel
// closes with the final snapshot.
func (e *Engine) Start(ctx context.Context, job Job) (*session.Run, error) {
	loop := e.runSingle
	if job.Config != nil && job.Config.IsMultiSite() {
		loop = e.runMulti
	}
	st, err := e.begin(job)
	if err != nil {
		return nil, err
	}
	go e.execute(ctx, st, loop)
	return st.run, nil
}

// Stop requests a cooperative stop and marks the session stopped right away.
// The run notices at its next iteration boundary.
func (e *Engine) Stop(id string) error {
	requested, err := e.registry.Stop(id)
	if err != nil {
		return err
	}
	if !requested {
		if run, ok := e.registry.Get(id); ok {
			if _, finished := run.Result(); finished {
				return fmt.Errorf("%w: '%s'", utils.ErrSessionTerminal, id)
			}
		}
		return nil // Stop already requested
	}

	now := time.Now()
	if err := e.store.SetStatus(id, models.SessionStatusStopped, &now); err != nil {
		if errors.Is(err, utils.ErrSessionTerminal) {
			e.log.WithField("session_id", id).Debugf("Session finished before stop was recorded: %v", err)
			return nil
		}
		return err
	}
	e.log.WithField("session_id", id).Info("Stop requested")
	return nil
}

// StopAll stops every active run and returns their ids
func (e *Engine) StopAll() []string {
	ids := e.registry.Active()
	for _, id := range ids {
		if err := e.Stop(id); err != nil {
			e.log.WithField("session_id", id).Warnf("Stop failed: %v", err)
		}
	}
	return ids
}

// TestSelector loads targetURL in a fresh tab and evaluates one selector against it
func (e *Engine) TestSelector(ctx context.Context, targetURL, userAgentProfile string, sel config.Selector) extract.SelectorTestResult {
	tab, err := e.renderer.Open(ctx, e.appCfg.ResolveUserAgent(userAgentProfile))
	if err != nil {
		return extract.SelectorTestResult{Error: err.Error()}
	}
	defer tab.Close()

	if err := e.load(ctx, tab, targetURL); err != nil {
		return extract.SelectorTestResult{Error: err.Error()}
	}
	return e.extractor.TestSelector(ctx, tab, sel)
}

// load navigates tab with the per-page deadline
func (e *Engine) load(ctx context.Context, tab page.Tab, rawURL string) error {
	timeout := e.appCfg.PageLoadTimeout
	if timeout <= 0 {
		timeout = config.DefaultPageLoadTimeout
	}
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := tab.Load(loadCtx, rawURL)
	if err != nil && !errors.Is(err, utils.ErrPageLoad) {
		err = fmt.Errorf("%w: %w", utils.ErrPageLoad, err)
	}
	return err
}

// settle performs the optional dynamic-content wait and the politeness delay
func (e *Engine) settle(ctx context.Context, cfg *config.Configuration) error {
	if cfg.Options.WaitForDynamicContent {
		if err := e.sleep(ctx, e.appCfg.DynamicContentWait); err != nil {
			return err
		}
	}
	if delay := cfg.RequestDelay(); delay > 0 {
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// checkRobots logs when robots.txt disallows rawURL. The result never blocks a fetch.
func (e *Engine) checkRobots(ctx context.Context, cfg *config.Configuration, rawURL, userAgent string, log *logrus.Entry) {
	if e.robots == nil || !cfg.Options.RespectRobots {
		return
	}
	if !e.robots.Allowed(ctx, rawURL, userAgent) {
		log.WithField("url", rawURL).Warn("robots.txt disallows this URL; continuing (advisory)")
	}
}

// hintRendering warns when a statically loaded page with no records looks client-rendered
func (e *Engine) hintRendering(ctx context.Context, tab page.Page, rawURL string, log *logrus.Entry) {
	if e.appCfg.Renderer == config.RendererChrome {
		return
	}
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	if hint := e.detector.Detect(ctx, tab, host); hint.ClientRendered {
		log.WithField("framework", hint.Framework).
			Warn("No records extracted and the page looks client-rendered; consider renderer: chrome")
	}
}
