package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsChecker fetches, parses and caches robots.txt per host.
// Results are advisory: callers log disallowed URLs but still crawl them.
type RobotsChecker struct {
	fetcher     *Fetcher
	userAgent   string
	robotsCache map[string]*robotstxt.RobotsData // host -> parsed data (nil when unavailable)
	mu          sync.Mutex
	log         *logrus.Entry
}

// NewRobotsChecker creates a RobotsChecker that fetches robots.txt with userAgent
func NewRobotsChecker(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsChecker {
	return &RobotsChecker{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log.WithField("component", "robots"),
	}
}

// robotsData returns the cached or freshly fetched rules for target's host; nil on any failure
func (rc *RobotsChecker) robotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host
	rc.mu.Lock()
	data, found := rc.robotsCache[host]
	rc.mu.Unlock()
	if found {
		return data
	}

	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rc.log.WithField("robots_url", robotsURL)

	doc, err := rc.fetcher.FetchPage(ctx, robotsURL, rc.userAgent)
	if err == nil {
		data, err = robotstxt.FromBytes(doc.Body)
	}
	if err != nil {
		robotsLog.Debugf("robots.txt unavailable, treating as allow-all: %v", err)
		data = nil
	}

	rc.mu.Lock()
	rc.robotsCache[host] = data
	rc.mu.Unlock()
	return data
}

// Allowed reports whether userAgent may fetch rawURL. Unparseable URLs and hosts
// without a readable robots.txt are allowed.
func (rc *RobotsChecker) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return true
	}
	data := rc.robotsData(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), userAgent)
}
