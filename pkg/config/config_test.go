package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
default_user_agent: "scraper-test/1.0"
user_agent_profiles:
  mobile: "Mozilla/5.0 (iPhone)"
renderer: static
page_load_timeout: 10s
jobs:
  books:
    target_url: "https://books.example.com/catalogue"
    user_agent_profile: mobile
    request_delay_ms: 500
    selectors:
      - name: title
        css_query: "article h3 a"
        attribute: title
      - name: price
        path_query: "//p[@class='price']"
        regex: '(\d+\.\d+)'
        required: true
      - name: body
        css_query: ".desc"
        attribute: innerHTML
    filters:
      exclude: "sold out"
    options:
      handle_pagination: true
      remove_duplicates: true
    pagination:
      next_page_selector: "li.next a"
      max_pages: 3
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.PageLoadTimeout)
	job, err := cfg.Job("books")
	require.NoError(t, err)

	assert.Equal(t, "https://books.example.com/catalogue", job.TargetURL)
	assert.Equal(t, 500, job.RequestDelayMs)
	require.Len(t, job.Selectors, 3)
	assert.Equal(t, models.Attribute{Kind: models.AttributeNamed, Name: "title"}, job.Selectors[0].Attribute)
	assert.Equal(t, models.AttributeText, job.Selectors[1].Attribute.Kind, "missing attribute means text")
	assert.True(t, job.Selectors[1].Required)
	assert.Equal(t, models.AttributeHTML, job.Selectors[2].Attribute.Kind)
	assert.Equal(t, "sold out", job.Filters.Exclude)
	assert.True(t, job.Options.HandlePagination)
	assert.Equal(t, 3, job.Pagination.MaxPages)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("jobs: [unterminated"))
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_Job_NotFound(t *testing.T) {
	cfg := AppConfig{}
	_, err := cfg.Job("missing")
	assert.ErrorIs(t, err, utils.ErrConfigurationNotFound)
}

func TestAppConfig_JobKeysSorted(t *testing.T) {
	cfg := AppConfig{Jobs: map[string]Configuration{"b": {}, "a": {}, "c": {}}}
	assert.Equal(t, []string{"a", "b", "c"}, cfg.JobKeys())
}

func TestAppConfig_ResolveUserAgent(t *testing.T) {
	cfg := AppConfig{
		DefaultUserAgent:  "default-ua",
		UserAgentProfiles: map[string]string{"mobile": "mobile-ua", "blank": ""},
	}

	tests := []struct {
		profile string
		want    string
	}{
		{"", "default-ua"},
		{"mobile", "mobile-ua"},
		{"unknown", "default-ua"},
		{"blank", "default-ua"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.ResolveUserAgent(tt.profile), "profile %q", tt.profile)
	}
}

func TestSelector_Kinds(t *testing.T) {
	assert.True(t, Selector{Name: "a", Regex: `\d+`}.IsPureRegex())
	assert.False(t, Selector{Name: "a", Regex: `\d+`, CSSQuery: "p"}.IsPureRegex())
	assert.True(t, Selector{Name: "a", PathQuery: "//p"}.IsElementBound())
	assert.False(t, Selector{Name: "a", Regex: "x"}.IsElementBound())
}
