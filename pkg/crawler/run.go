package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/page"
	"github.com/Sriram-PR/field-scraper/pkg/process"
	"github.com/Sriram-PR/field-scraper/pkg/session"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// runState is the mutable state of one run. Only the run's own goroutine touches it;
// the store and registry see copies.
type runState struct {
	job Job
	run *session.Run
	rep *session.Reporter
	log *logrus.Entry

	sess models.Session // local mirror of everything pushed
}

// loopFunc runs one mode's loop and returns the status the run should end in
type loopFunc func(ctx context.Context, st *runState) models.SessionStatus

// begin registers the run and creates its session
func (e *Engine) begin(job Job) (*runState, error) {
	if job.SessionID == "" {
		job.SessionID = session.NewID()
	}
	run, err := e.registry.Register(job.SessionID)
	if err != nil {
		return nil, err
	}

	targetURL := ""
	if job.Config != nil {
		targetURL = job.Config.TargetURL
	}
	log := e.log.WithFields(logrus.Fields{"session_id": job.SessionID, "job": job.Key})
	st := &runState{
		job: job,
		run: run,
		rep: session.NewReporter(e.store, job.SessionID, log),
		log: log,
		sess: models.Session{
			ID:        job.SessionID,
			JobKey:    job.Key,
			TargetURL: targetURL,
			Status:    models.SessionStatusRunning,
			StartedAt: time.Now(),
			Results:   []models.Record{},
			Errors:    []string{},
		},
	}
	if err := st.rep.Begin(job.Key, targetURL); err != nil {
		st.sess.Status = models.SessionStatusFailed
		e.registry.Finish(run, st.sess)
		return nil, err
	}
	return st, nil
}

// execute runs loop, settles the final status and releases the run
func (e *Engine) execute(ctx context.Context, st *runState, loop loopFunc) (final models.Session) {
	startTime := time.Now()
	status := models.SessionStatusFailed

	defer func() {
		if r := recover(); r != nil {
			st.log.Errorf("PANIC in run: %v\n%s", r, string(debug.Stack()))
			st.recordError(fmt.Sprintf("Run aborted: %v", r))
			status = models.SessionStatusFailed
		}
		final = e.finish(st, status)
		st.log.WithFields(logrus.Fields{
			"status":    final.Status,
			"extracted": len(final.Results),
			"errors":    len(final.Errors),
			"duration":  time.Since(startTime).Round(time.Millisecond),
		}).Info("Run finished")
	}()

	if st.job.Config == nil {
		err := utils.ErrConfigurationNotFound
		if st.job.Key != "" {
			err = utils.WrapErrorf(err, "job '%s'", st.job.Key)
		}
		st.recordError(fmt.Sprintf("Configuration: %v", err))
		return
	}
	st.log.WithField("url", st.job.Config.TargetURL).Info("Run starting")
	status = loop(ctx, st)
	return
}

// finish pushes the terminal status and hands the final snapshot to the registry.
// A run whose stop was requested always ends stopped.
func (e *Engine) finish(st *runState, status models.SessionStatus) models.Session {
	if st.run.StopRequested() {
		status = models.SessionStatusStopped
	}
	now := time.Now()
	if !st.rep.Finish(status) {
		if stored, ok := st.rep.Snapshot(); ok && stored.Status.IsTerminal() {
			status = stored.Status
			if stored.EndedAt != nil {
				now = *stored.EndedAt
			}
		}
	}
	st.sess.Status = status
	st.sess.EndedAt = &now
	e.registry.Finish(st.run, st.sess)
	return st.sess.Clone()
}

func (st *runState) recordError(message string) {
	st.sess.Errors = append(st.sess.Errors, message)
	st.rep.Error(message)
}

func (st *runState) appendRecords(records []models.Record) {
	st.sess.Results = append(st.sess.Results, records...)
}

func (st *runState) push(p models.Progress) {
	st.sess.Progress = p
	st.rep.Push(st.sess.Results, p)
}

// finalize applies end-of-run deduplication when enabled and pushes the final results
func (st *runState) finalize(cfg *config.Configuration) {
	if cfg.Options.RemoveDuplicates {
		before := len(st.sess.Results)
		st.sess.Results = process.Dedupe(st.sess.Results)
		if removed := before - len(st.sess.Results); removed > 0 {
			st.log.Infof("Removed %d duplicate record(s)", removed)
		}
	}
	st.rep.Push(st.sess.Results, st.sess.Progress)
}

// runSingle is the pagination loop
func (e *Engine) runSingle(ctx context.Context, st *runState) models.SessionStatus {
	cfg := st.job.Config
	filter, err := process.NewFilter(cfg.Filters)
	if err != nil {
		st.recordError(fmt.Sprintf("Configuration: %v", err))
		return models.SessionStatusFailed
	}

	userAgent := e.appCfg.ResolveUserAgent(cfg.UserAgentProfile)
	tab, err := e.renderer.Open(ctx, userAgent)
	if err != nil {
		st.recordError(fmt.Sprintf("Renderer: %v", err))
		return models.SessionStatusFailed
	}
	defer tab.Close()

	pageIndex := 1
	currentURL := cfg.TargetURL
	for !st.run.StopRequested() {
		pageLog := st.log.WithFields(logrus.Fields{"page": pageIndex, "url": currentURL})
		nextURL, hasNext, err := e.crawlPage(ctx, tab, st, filter, pageIndex, currentURL, userAgent, pageLog)
		if err != nil {
			st.recordError(fmt.Sprintf("Page %d: %v", pageIndex, err))
			if pageIndex == 1 && errors.Is(err, utils.ErrPageLoad) {
				return models.SessionStatusFailed
			}
			break
		}
		if !hasNext {
			break
		}
		pageIndex++
		currentURL = nextURL
	}

	st.finalize(cfg)
	return models.SessionStatusCompleted
}

// crawlPage loads, extracts and filters one page, then decides whether to paginate
func (e *Engine) crawlPage(
	ctx context.Context,
	tab page.Tab,
	st *runState,
	filter *process.Filter,
	pageIndex int,
	currentURL string,
	userAgent string,
	pageLog *logrus.Entry,
) (nextURL string, hasNext bool, err error) {
	cfg := st.job.Config

	e.checkRobots(ctx, cfg, currentURL, userAgent, pageLog)
	if err := e.load(ctx, tab, currentURL); err != nil {
		return "", false, err
	}
	if err := e.settle(ctx, cfg); err != nil {
		return "", false, err
	}

	records := filter.Apply(e.extractor.Extract(ctx, tab, cfg.Selectors))
	if pageIndex == 1 && len(records) == 0 {
		e.hintRendering(ctx, tab, currentURL, pageLog)
	}
	st.appendRecords(records)
	st.push(models.Progress{
		Current:   pageIndex,
		Total:     cfg.ReportedTotal(),
		Extracted: len(st.sess.Results),
	})
	pageLog.Infof("Extracted %d record(s), %d total", len(records), len(st.sess.Results))

	if !cfg.Options.HandlePagination || cfg.Pagination.NextPageSelector == "" {
		return "", false, nil
	}
	if pageIndex >= cfg.EffectiveMaxPages() {
		pageLog.Debugf("Reached max_pages (%d)", cfg.EffectiveMaxPages())
		return "", false, nil
	}
	return e.advance(ctx, tab, cfg, pageLog)
}

// advance activates the next-page control. hasNext is false when it is absent or disabled.
func (e *Engine) advance(ctx context.Context, tab page.Tab, cfg *config.Configuration, pageLog *logrus.Entry) (string, bool, error) {
	selector := cfg.Pagination.NextPageSelector
	var (
		controls []page.Element
		err      error
	)
	if page.IsPathQuery(selector) {
		controls, err = tab.QueryPath(ctx, selector)
	} else {
		controls, err = tab.Query(ctx, selector)
	}
	if err != nil {
		return "", false, fmt.Errorf("next page control: %w", err)
	}
	if len(controls) == 0 {
		pageLog.Debug("No next page control, pagination finished")
		return "", false, nil
	}

	next := controls[0]
	disabled, err := next.IsDisabled(ctx)
	if err != nil {
		return "", false, fmt.Errorf("next page control: %w", err)
	}
	if disabled {
		pageLog.Debug("Next page control disabled, pagination finished")
		return "", false, nil
	}
	if err := next.Activate(ctx); err != nil {
		return "", false, fmt.Errorf("activating next page control: %w", err)
	}
	if err := e.sleep(ctx, e.appCfg.PaginationSettle); err != nil {
		return "", false, err
	}
	nextURL, err := tab.CurrentURL(ctx)
	if err != nil {
		return "", false, err
	}
	return nextURL, true, nil
}

// runMulti discovers candidate sites and extracts once from each
func (e *Engine) runMulti(ctx context.Context, st *runState) models.SessionStatus {
	cfg := st.job.Config
	filter, err := process.NewFilter(cfg.Filters)
	if err != nil {
		st.recordError(fmt.Sprintf("Configuration: %v", err))
		return models.SessionStatusFailed
	}

	userAgent := e.appCfg.ResolveUserAgent(cfg.UserAgentProfile)
	tab, err := e.renderer.Open(ctx, userAgent)
	if err != nil {
		st.recordError(fmt.Sprintf("Renderer: %v", err))
		return models.SessionStatusFailed
	}
	defer tab.Close()

	candidates, err := e.discover(ctx, tab, cfg)
	if err != nil {
		st.recordError(fmt.Sprintf("Discovery: %v", err))
		return models.SessionStatusFailed
	}
	st.log.Infof("Discovered %d candidate site(s)", len(candidates))

	total := len(candidates)
	for i, candidate := range candidates {
		if st.run.StopRequested() {
			break
		}
		siteIndex := i + 1
		siteLog := st.log.WithFields(logrus.Fields{"site": siteIndex, "url": candidate})

		records, err := e.crawlSite(ctx, tab, cfg, filter, candidate, userAgent, siteLog)
		if err != nil {
			st.recordError(fmt.Sprintf("Site %d (%s): %v", siteIndex, candidate, err))
		} else {
			for _, r := range records {
				r["source_url"] = models.StringPtr(candidate)
			}
			st.appendRecords(records)
			siteLog.Infof("Extracted %d record(s)", len(records))
		}
		st.push(models.Progress{Current: siteIndex, Total: total, Extracted: len(st.sess.Results)})
	}

	st.finalize(cfg)
	return models.SessionStatusCompleted
}

// discover loads the seed page and collects candidate sites from it
func (e *Engine) discover(ctx context.Context, tab page.Tab, cfg *config.Configuration) ([]string, error) {
	if err := e.load(ctx, tab, cfg.TargetURL); err != nil {
		return nil, err
	}
	if cfg.Options.WaitForDynamicContent {
		if err := e.sleep(ctx, e.appCfg.DynamicContentWait); err != nil {
			return nil, err
		}
	}
	return e.discoverer.Collect(ctx, tab, cfg.EffectiveMaxWebsites())
}

// crawlSite extracts from one discovered site without pagination
func (e *Engine) crawlSite(
	ctx context.Context,
	tab page.Tab,
	cfg *config.Configuration,
	filter *process.Filter,
	siteURL string,
	userAgent string,
	siteLog *logrus.Entry,
) ([]models.Record, error) {
	e.checkRobots(ctx, cfg, siteURL, userAgent, siteLog)
	if err := e.load(ctx, tab, siteURL); err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrSiteFetch, err)
	}
	if err := e.settle(ctx, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrSiteFetch, err)
	}
	return filter.Apply(e.extractor.Extract(ctx, tab, cfg.Selectors)), nil
}
