package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/crawler"
	"github.com/Sriram-PR/field-scraper/pkg/fetch"
	"github.com/Sriram-PR/field-scraper/pkg/page"
	"github.com/Sriram-PR/field-scraper/pkg/session"
)

const (
	dbGCInterval         = 10 * time.Minute
	hostEvictionInterval = 5 * time.Minute
	shutdownGrace        = 10 * time.Second
)

// Runtime bundles the long-lived components a process needs to run jobs
type Runtime struct {
	Engine   *crawler.Engine
	Sessions session.ReadWriteStore
	Renderer page.Renderer
	Fetcher  *fetch.Fetcher

	cancel context.CancelFunc
	log    *logrus.Entry
}

// NewRuntime wires the fetcher, renderer, session store and engine from a validated config.
// Background maintenance goroutines run until Close.
func NewRuntime(ctx context.Context, appCfg *config.AppConfig, log *logrus.Entry) (*Runtime, error) {
	bgCtx, cancel := context.WithCancel(ctx)
	rt := &Runtime{cancel: cancel, log: log.WithField("component", "runtime")}

	// --- HTTP Fetching Components ---
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, log)
	hosts := fetch.NewHostGates(appCfg.MaxRequestsPerHost, log)
	go hosts.Prune(bgCtx, hostEvictionInterval)
	limiter := fetch.NewRateLimiter(appCfg.DefaultDelayPerHost, log)
	rt.Fetcher = fetch.NewFetcher(httpClient, fetch.RetryPolicyFrom(appCfg), hosts, limiter, log)

	// --- Session Store ---
	switch appCfg.SessionStore {
	case config.SessionStoreBadger:
		store, err := session.NewBadgerStore(appCfg.StateDir, log)
		if err != nil {
			cancel()
			return nil, err
		}
		if n, err := store.RecoverInterrupted(bgCtx); err != nil {
			rt.log.Warnf("Recovering interrupted sessions: %v", err)
		} else if n > 0 {
			rt.log.Warnf("Marked %d interrupted session(s) as failed", n)
		}
		go store.RunGC(bgCtx, dbGCInterval)
		rt.Sessions = store
	default:
		rt.Sessions = session.NewMemoryStore()
	}

	// --- Renderer ---
	switch appCfg.Renderer {
	case config.RendererChrome:
		renderer, err := page.NewChromeRenderer(appCfg.Chrome, log)
		if err != nil {
			rt.Sessions.Close()
			cancel()
			return nil, fmt.Errorf("initializing renderer: %w", err)
		}
		rt.Renderer = renderer
	default:
		rt.Renderer = page.NewStaticRenderer(rt.Fetcher, log)
	}

	robots := fetch.NewRobotsChecker(rt.Fetcher, appCfg.DefaultUserAgent, log)
	rt.Engine = crawler.NewEngine(appCfg, rt.Renderer, rt.Sessions, log, &crawler.EngineOptions{Robots: robots})

	rt.log.Debugf("Runtime ready: renderer=%s, session_store=%s", appCfg.Renderer, appCfg.SessionStore)
	return rt, nil
}

// Close stops active runs, then releases the renderer and the session store
func (rt *Runtime) Close() error {
	if stopped := rt.Engine.StopAll(); len(stopped) > 0 {
		rt.log.Infof("Stopping %d active session(s)", len(stopped))
		waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		for _, id := range stopped {
			if run, ok := rt.Engine.Registry().Get(id); ok {
				if _, err := run.Wait(waitCtx); err != nil {
					rt.log.Warnf("Session %s did not stop in time: %v", id, err)
				}
			}
		}
		cancel()
	}
	rt.cancel()
	if err := rt.Renderer.Close(); err != nil {
		rt.log.Warnf("Closing renderer: %v", err)
	}
	return rt.Sessions.Close()
}
