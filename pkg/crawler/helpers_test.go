package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/fetch"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/page"
	"github.com/Sriram-PR/field-scraper/pkg/session"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testSite serves fixed pages and counts hits per path. Unknown paths return 404.
type testSite struct {
	*httptest.Server

	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
	onHit func(path string)
}

func newTestSite(t *testing.T, pages map[string]string) *testSite {
	t.Helper()
	site := &testSite{pages: pages, hits: make(map[string]int)}
	site.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.hits[r.URL.Path]++
		hook := site.onHit
		body, ok := site.pages[r.URL.Path]
		site.mu.Unlock()

		if hook != nil {
			hook(r.URL.Path)
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, body)
	}))
	t.Cleanup(site.Close)
	return site
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testSite) totalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

func (s *testSite) setHook(fn func(path string)) {
	s.mu.Lock()
	s.onHit = fn
	s.mu.Unlock()
}

// listPage renders two items for page n and a next link; an empty next renders a disabled control
func listPage(prefix string, n int, next string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := 1; i <= 2; i++ {
		fmt.Fprintf(&b, `<li class="item"><span class="name">Item %d-%d</span><span class="price">Price: %d</span></li>`, n, i, n*10+i)
	}
	b.WriteString("</ul><nav>")
	if next == "" {
		fmt.Fprintf(&b, `<a class="next disabled" href="%s/%d">Next</a>`, prefix, n+1)
	} else {
		fmt.Fprintf(&b, `<a class="next" href="%s">Next</a>`, next)
	}
	b.WriteString("</nav></body></html>")
	return b.String()
}

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{DefaultUserAgent: "field-scraper-test", StateDir: t.TempDir(), MaxRetries: 0, InitialRetryDelay: time.Millisecond}
	_, err := cfg.Validate()
	require.NoError(t, err)
	cfg.MaxRetries = 0
	return cfg
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

type testHarness struct {
	engine  *Engine
	store   *session.MemoryStore
	sleeps  *sleepRecorder
	appCfg  *config.AppConfig
	fetcher *fetch.Fetcher
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	appCfg := testAppConfig(t)
	fetcher := fetch.NewFetcher(&http.Client{Timeout: 5 * time.Second}, fetch.RetryPolicyFrom(appCfg), nil, nil, testLogger())
	store := session.NewMemoryStore()
	engine := NewEngine(appCfg, page.NewStaticRenderer(fetcher, testLogger()), store, testLogger(), nil)
	rec := &sleepRecorder{}
	engine.sleep = rec.sleep
	return &testHarness{engine: engine, store: store, sleeps: rec, appCfg: appCfg, fetcher: fetcher}
}

func listSelectors() []config.Selector {
	return []config.Selector{
		{ID: "1", Name: "name", CSSQuery: "li.item .name", Attribute: models.TextAttribute},
		{ID: "2", Name: "price", CSSQuery: "li.item .price", Regex: `(\d+)`, Attribute: models.TextAttribute},
	}
}

func paginatedJob(targetURL string, maxPages int) *config.Configuration {
	return &config.Configuration{
		TargetURL: targetURL,
		Selectors: listSelectors(),
		Options:   config.Options{HandlePagination: true},
		Pagination: config.PaginationSettings{
			NextPageSelector: "a.next",
			MaxPages:         maxPages,
		},
	}
}

func names(records []models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if v := r["name"]; v != nil {
			out = append(out, *v)
		} else {
			out = append(out, "<nil>")
		}
	}
	return out
}
