package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// testPolicy returns a retry policy with fast delays for testing
func testPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testClientConfig() config.HTTPClientConfig {
	cfg := config.AppConfig{}
	cfg.Validate()
	return cfg.HTTPClientSettings
}

func testFetcher(maxRetries int) *Fetcher {
	return NewFetcher(&http.Client{Timeout: 30 * time.Second}, testPolicy(maxRetries), nil, nil, testLogger())
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetchWithRetry_ServerError_RetrySuccess(t *testing.T) {
	// 500 → 429 → 200 (succeeds on 3rd attempt)
	server, attempts := mockServer(t, []int{500, 429, 200})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := testFetcher(3).FetchWithRetry(context.Background(), req)

	if err != nil {
		t.Fatalf("expected no error after retry, got: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_AllRetriesFail(t *testing.T) {
	// 500 × 4 (initial + 3 retries = 4 attempts)
	server, attempts := mockServer(t, []int{500})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := testFetcher(3).FetchWithRetry(context.Background(), req)

	if err == nil {
		t.Fatal("expected error after all retries failed")
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response when all retries fail")
	}
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Errorf("expected ErrRetryFailed, got: %v", err)
	}
	if !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected wrapped ErrServerHTTPError, got: %v", err)
	}
	if got := utils.CategorizeError(err); got != "RetryFailed_HTTPServer" {
		t.Errorf("CategorizeError() = %q, want RetryFailed_HTTPServer", got)
	}
	if attempts.Load() != 4 {
		t.Errorf("expected 4 attempts (initial + 3 retries), got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ClientError_NoRetry(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"404 Not Found", http.StatusNotFound},
		{"403 Forbidden", http.StatusForbidden},
		{"400 Bad Request", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.statusCode})

			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			resp, err := testFetcher(3).FetchWithRetry(context.Background(), req)

			if !errors.Is(err, utils.ErrClientHTTPError) {
				t.Errorf("expected ErrClientHTTPError, got: %v", err)
			}
			if resp == nil {
				t.Fatal("expected response for 4xx (caller may need to inspect)")
			}
			defer resp.Body.Close()

			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt (no retry for 4xx), got %d", attempts.Load())
			}
		})
	}
}

func TestFetchWithRetry_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testFetcher(3).FetchWithRetry(ctx, req)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("expected 0 attempts (cancelled before first attempt), got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ContextTimeout_DuringBackoff(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	policy := testPolicy(3)
	policy.InitialRetryDelay = 10 * time.Second
	policy.MaxRetryDelay = 10 * time.Second
	fetcher := NewFetcher(&http.Client{}, policy, nil, nil, testLogger())

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := fetcher.FetchWithRetry(ctx, req)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt before timeout, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_NetworkError_RetrySuccess(t *testing.T) {
	attemptCount := &atomic.Int32{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attemptCount.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server doesn't support hijacking")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := testFetcher(3).FetchWithRetry(context.Background(), req)

	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	defer resp.Body.Close()

	if attemptCount.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attemptCount.Load())
	}
}

func TestFetchPage_ReadsBodyAndFinalURL(t *testing.T) {
	var gotUA atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>ok</body></html>")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gates := NewHostGates(1, testLogger())
	limiter := NewRateLimiter(0, testLogger())
	client := NewClient(testClientConfig(), testLogger())
	fetcher := NewFetcher(client, testPolicy(1), gates, limiter, testLogger())

	doc, err := fetcher.FetchPage(context.Background(), server.URL+"/old", "test-agent/1.0")
	if err != nil {
		t.Fatalf("FetchPage() unexpected error: %v", err)
	}
	if doc.URL.Path != "/new" {
		t.Errorf("expected final URL path /new, got %s", doc.URL.Path)
	}
	if string(doc.Body) != "<html><body>ok</body></html>" {
		t.Errorf("unexpected body %q", doc.Body)
	}
	if gotUA.Load() != "test-agent/1.0" {
		t.Errorf("user agent not kept across redirect, got %v", gotUA.Load())
	}
	if gates.Open() != 1 {
		t.Errorf("expected one host gate after the redirect, got %d", gates.Open())
	}
}

func TestFetchPage_NotFound(t *testing.T) {
	server, _ := mockServer(t, []int{404})

	_, err := testFetcher(0).FetchPage(context.Background(), server.URL, "")
	if !errors.Is(err, utils.ErrClientHTTPError) {
		t.Errorf("expected ErrClientHTTPError, got: %v", err)
	}
}

func TestFetchPage_BadURL(t *testing.T) {
	_, err := testFetcher(0).FetchPage(context.Background(), "http://bad host/", "")
	if !errors.Is(err, utils.ErrParsing) {
		t.Errorf("expected ErrParsing, got: %v", err)
	}
}
