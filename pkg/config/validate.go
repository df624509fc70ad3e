package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Engine defaults
const (
	DefaultPageLoadTimeout    = 30 * time.Second
	DefaultDynamicContentWait = 2 * time.Second
	DefaultPaginationSettle   = 1 * time.Second
	DefaultMaxPages           = 10
	DefaultMaxWebsites        = 20
	DefaultUserAgent          = "field-scraper/1.0"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// DefaultUserAgent
	if c.DefaultUserAgent == "" {
		warnings = append(warnings, fmt.Sprintf("default_user_agent is empty, defaulting to '%s'", DefaultUserAgent))
		c.DefaultUserAgent = DefaultUserAgent
	}

	// Renderer
	switch c.Renderer {
	case RendererStatic, RendererChrome:
	case "":
		c.Renderer = RendererStatic
	default:
		return warnings, fmt.Errorf("%w: unknown renderer '%s' (want %s or %s)",
			utils.ErrConfigValidation, c.Renderer, RendererStatic, RendererChrome)
	}

	// SessionStore
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreBadger:
	case "":
		c.SessionStore = SessionStoreMemory
	default:
		return warnings, fmt.Errorf("%w: unknown session_store '%s' (want %s or %s)",
			utils.ErrConfigValidation, c.SessionStore, SessionStoreMemory, SessionStoreBadger)
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './scraper_state'")
		c.StateDir = "./scraper_state"
	}

	// Engine timings
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = DefaultPageLoadTimeout
	}
	if c.DynamicContentWait < 0 {
		warnings = append(warnings, "dynamic_content_wait cannot be negative, using default")
		c.DynamicContentWait = 0
	}
	if c.DynamicContentWait == 0 {
		c.DynamicContentWait = DefaultDynamicContentWait
	}
	if c.PaginationSettle < 0 {
		warnings = append(warnings, "pagination_settle cannot be negative, using default")
		c.PaginationSettle = 0
	}
	if c.PaginationSettle == 0 {
		c.PaginationSettle = DefaultPaginationSettle
	}

	// MaxConcurrentSessions
	if c.MaxConcurrentSessions <= 0 {
		warnings = append(warnings, "max_concurrent_sessions should be > 0, defaulting to 2")
		c.MaxConcurrentSessions = 2
	}

	// MaxRequestsPerHost
	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 2")
		c.MaxRequestsPerHost = 2
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// SemaphoreTimeout
	if c.SemaphoreTimeout <= 0 {
		c.SemaphoreTimeout = 30 * time.Second
	}

	// Chrome window
	if c.Chrome.WindowWidth <= 0 || c.Chrome.WindowHeight <= 0 {
		c.Chrome.WindowWidth, c.Chrome.WindowHeight = 1366, 768
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	// Jobs
	for _, key := range c.JobKeys() {
		job := c.Jobs[key]
		jobWarnings, jobErr := job.Validate()
		if jobErr != nil {
			return warnings, fmt.Errorf("job '%s': %w", key, jobErr)
		}
		for _, w := range jobWarnings {
			warnings = append(warnings, fmt.Sprintf("[%s] %s", key, w))
		}
		if job.UserAgentProfile != "" {
			if _, ok := c.UserAgentProfiles[job.UserAgentProfile]; !ok {
				warnings = append(warnings, fmt.Sprintf(
					"[%s] user_agent_profile '%s' is not defined, using default_user_agent", key, job.UserAgentProfile))
			}
		}
		c.Jobs[key] = job
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks a job configuration.
// Returns collected warnings and any fatal error.
// Selector regexes and next-page selectors are not compiled here; they degrade per field at run time.
func (c *Configuration) Validate() (warnings []string, err error) {
	// Required: TargetURL
	if c.TargetURL == "" {
		return nil, fmt.Errorf("%w: job has no target_url", utils.ErrConfigValidation)
	}
	u, parseErr := url.Parse(c.TargetURL)
	if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: target_url '%s' must be an absolute http(s) URL", utils.ErrConfigValidation, c.TargetURL)
	}

	// Required: Selectors
	if len(c.Selectors) == 0 {
		return nil, fmt.Errorf("%w: job has no selectors", utils.ErrConfigValidation)
	}
	seen := make(map[string]bool, len(c.Selectors))
	for i, s := range c.Selectors {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: selector #%d has no name", utils.ErrConfigValidation, i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: duplicate selector name '%s'", utils.ErrConfigValidation, s.Name)
		}
		seen[s.Name] = true
		if s.CSSQuery == "" && s.PathQuery == "" && s.Regex == "" {
			return nil, fmt.Errorf("%w: selector '%s' needs css_query, path_query or regex", utils.ErrConfigValidation, s.Name)
		}
		if s.CSSQuery != "" && s.PathQuery != "" {
			warnings = append(warnings, fmt.Sprintf("selector '%s' sets both css_query and path_query, css_query wins", s.Name))
		}
		if s.Regex != "" {
			if _, reErr := regexp.Compile(s.Regex); reErr != nil {
				warnings = append(warnings, fmt.Sprintf("selector '%s' regex does not compile, raw values will be kept: %v", s.Name, reErr))
			}
		}
	}

	// Filters compile at run start; surface problems early
	for _, p := range []string{c.Filters.Include, c.Filters.Exclude} {
		if _, reErr := utils.CompileCaseInsensitive(p); reErr != nil {
			return nil, reErr
		}
	}

	// RequestDelayMs
	if c.RequestDelayMs < 0 {
		warnings = append(warnings, "request_delay_ms cannot be negative, setting to 0")
		c.RequestDelayMs = 0
	}

	// Pagination
	if c.Pagination.MaxPages < 0 {
		warnings = append(warnings, "pagination.max_pages cannot be negative, using default cap")
		c.Pagination.MaxPages = 0
	}
	if c.Options.HandlePagination && strings.TrimSpace(c.Pagination.NextPageSelector) == "" {
		warnings = append(warnings, "handle_pagination is set but pagination.next_page_selector is empty, only the first page will be read")
	}

	// Multi-site
	if c.Options.MaxWebsites < 0 {
		warnings = append(warnings, "options.max_websites cannot be negative, using default")
		c.Options.MaxWebsites = 0
	}
	if c.Options.MultiWebsite && !c.Options.ExtractURLsFromResults {
		warnings = append(warnings, "multi_website without extract_urls_from_results runs as a single site")
	}

	return warnings, nil
}

// EffectiveMaxPages returns the pagination cap, DefaultMaxPages when unset
func (c Configuration) EffectiveMaxPages() int {
	if c.Pagination.MaxPages > 0 {
		return c.Pagination.MaxPages
	}
	return DefaultMaxPages
}

// ReportedTotal returns the `total` pushed with single-site progress: max_pages, or 1 when unset
func (c Configuration) ReportedTotal() int {
	if c.Pagination.MaxPages > 0 {
		return c.Pagination.MaxPages
	}
	return 1
}

// EffectiveMaxWebsites returns the discovery cap, DefaultMaxWebsites when unset
func (c Configuration) EffectiveMaxWebsites() int {
	if c.Options.MaxWebsites > 0 {
		return c.Options.MaxWebsites
	}
	return DefaultMaxWebsites
}

// IsMultiSite reports whether the job discovers and traverses linked sites
func (c Configuration) IsMultiSite() bool {
	return c.Options.MultiWebsite && c.Options.ExtractURLsFromResults
}
