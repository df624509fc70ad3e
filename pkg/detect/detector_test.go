package detect

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/page"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func mustPage(t *testing.T, markup string) page.Page {
	t.Helper()
	p, err := page.FromHTML("https://example.com/listing", []byte(markup))
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	return p
}

func TestDetectFrameworks(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   Framework
	}{
		{
			name: "next data script",
			markup: `<html><body><div id="__next"></div>
<script id="__NEXT_DATA__" type="application/json">{}</script></body></html>`,
			want: FrameworkNextJS,
		},
		{
			name:   "next static chunk",
			markup: `<html><head><script src="/_next/static/chunks/main.js"></script></head><body></body></html>`,
			want:   FrameworkNextJS,
		},
		{
			name:   "nuxt root",
			markup: `<html><body><div id="__nuxt"></div></body></html>`,
			want:   FrameworkNuxt,
		},
		{
			name:   "gatsby root",
			markup: `<html><body><div id="___gatsby"></div></body></html>`,
			want:   FrameworkGatsby,
		},
		{
			name:   "svelte class prefix",
			markup: `<html><body><main class="layout svelte-1x2y3z"></main></body></html>`,
			want:   FrameworkSvelteKit,
		},
		{
			name:   "angular version attribute",
			markup: `<html><body><app-root ng-version="17.0.0"></app-root></body></html>`,
			want:   FrameworkAngular,
		},
		{
			name:   "vue app attribute",
			markup: `<html><body><div id="app" data-v-app=""></div></body></html>`,
			want:   FrameworkVue,
		},
		{
			name:   "empty react root",
			markup: `<html><body><div id="root"></div><script src="/static/js/bundle.js"></script></body></html>`,
			want:   FrameworkReact,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewRenderDetector(testLogger())
			got := d.Detect(context.Background(), mustPage(t, tt.markup), "")
			if got.Framework != tt.want {
				t.Errorf("Framework = %q, want %q", got.Framework, tt.want)
			}
			if !got.ClientRendered {
				t.Error("ClientRendered = false, want true")
			}
		})
	}
}

func TestDetectServerRenderedPage(t *testing.T) {
	markup := `<html><body><div id="root"><ul><li class="item">Widget</li></ul></div></body></html>`

	d := NewRenderDetector(testLogger())
	got := d.Detect(context.Background(), mustPage(t, markup), "example.com")
	if got.Framework != FrameworkUnknown {
		t.Errorf("Framework = %q, want %q", got.Framework, FrameworkUnknown)
	}
	if got.ClientRendered {
		t.Error("ClientRendered = true, want false")
	}
}

func TestCaching(t *testing.T) {
	d := NewRenderDetector(testLogger())
	ctx := context.Background()

	first := d.Detect(ctx, mustPage(t, `<html><body><div id="___gatsby"></div></body></html>`), "example.com")
	if first.Framework != FrameworkGatsby {
		t.Fatalf("first Framework = %q, want %q", first.Framework, FrameworkGatsby)
	}
	if d.Cache().Size() != 1 {
		t.Errorf("cache size = %d, want 1", d.Cache().Size())
	}

	// Same host returns the cached result even for different markup
	second := d.Detect(ctx, mustPage(t, `<html><body><p>plain</p></body></html>`), "example.com")
	if second != first {
		t.Errorf("second = %+v, want cached %+v", second, first)
	}

	other := d.Detect(ctx, mustPage(t, `<html><body><p>plain</p></body></html>`), "other.example")
	if other.ClientRendered {
		t.Error("other host should not inherit the cached result")
	}
	if d.Cache().Size() != 2 {
		t.Errorf("cache size = %d, want 2", d.Cache().Size())
	}
}

func TestHintCache(t *testing.T) {
	cache := NewHintCache()

	if _, ok := cache.Get("example.com"); ok {
		t.Error("expected cache miss for new host")
	}

	result := DetectionResult{Framework: FrameworkReact, ClientRendered: true}
	cache.Set("example.com", result)

	got, ok := cache.Get("example.com")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != result {
		t.Errorf("Get = %+v, want %+v", got, result)
	}

	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Size after Clear = %d, want 0", cache.Size())
	}
}
