package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRobotsChecker_Allowed(t *testing.T) {
	var robotsHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			io.WriteString(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	rc := NewRobotsChecker(testFetcher(0), "test-agent", testLogger())
	ctx := context.Background()

	if !rc.Allowed(ctx, server.URL+"/public/page", "test-agent") {
		t.Error("expected /public/page to be allowed")
	}
	if rc.Allowed(ctx, server.URL+"/private/page", "test-agent") {
		t.Error("expected /private/page to be disallowed")
	}
	if robotsHits.Load() != 1 {
		t.Errorf("expected robots.txt to be fetched once and cached, got %d fetches", robotsHits.Load())
	}
}

func TestRobotsChecker_MissingRobotsAllowsAll(t *testing.T) {
	server, _ := mockServer(t, []int{404})

	rc := NewRobotsChecker(testFetcher(0), "test-agent", testLogger())
	if !rc.Allowed(context.Background(), server.URL+"/anything", "test-agent") {
		t.Error("expected allow-all when robots.txt is missing")
	}
	if !rc.Allowed(context.Background(), "::not a url", "test-agent") {
		t.Error("expected unparseable URL to be allowed")
	}
}
