package page

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/models"
)

// chromePath returns a local Chrome/Chromium binary or skips the test
func chromePath(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary available")
	return ""
}

func TestChromeRenderer_ExtractAndPaginate(t *testing.T) {
	execPath := chromePath(t)
	server := newSiteServer(t)

	cfg := config.ChromeConfig{ExecPath: execPath, NoSandbox: true, WindowWidth: 1024, WindowHeight: 768}
	r, err := NewChromeRenderer(cfg, testLogger())
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tab, err := r.Open(ctx, "chrome-test-agent")
	require.NoError(t, err)
	defer tab.Close()

	require.NoError(t, tab.Load(ctx, server.URL+"/page/1"))

	links, err := tab.Query(ctx, "li.item a")
	require.NoError(t, err)
	require.Len(t, links, 2)
	title, ok, err := links[0].Value(ctx, models.ParseAttribute("title"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "First", title)

	prices, err := tab.QueryPath(ctx, "//span[@class='price']")
	require.NoError(t, err)
	assert.Len(t, prices, 2)

	prev, err := tab.Query(ctx, "button.prev")
	require.NoError(t, err)
	disabled, err := prev[0].IsDisabled(ctx)
	require.NoError(t, err)
	assert.True(t, disabled)

	next, err := tab.Query(ctx, "a.next")
	require.NoError(t, err)
	require.NoError(t, next[0].Activate(ctx))

	assert.Eventually(t, func() bool {
		loc, err := tab.CurrentURL(ctx)
		return err == nil && loc == server.URL+"/page/2"
	}, 10*time.Second, 100*time.Millisecond)
}
