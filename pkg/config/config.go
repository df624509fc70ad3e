package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Selector is a named rule describing how to locate and read one field
type Selector struct {
	ID        string           `yaml:"id,omitempty" json:"id,omitempty"`
	Name      string           `yaml:"name" json:"name"`
	CSSQuery  string           `yaml:"css_query,omitempty" json:"css_query,omitempty"`
	PathQuery string           `yaml:"path_query,omitempty" json:"path_query,omitempty"` // XPath expression
	Regex     string           `yaml:"regex,omitempty" json:"regex,omitempty"`
	Attribute models.Attribute `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Required  bool             `yaml:"required,omitempty" json:"required,omitempty"`
}

// IsPureRegex reports whether the selector scans page text instead of elements
func (s Selector) IsPureRegex() bool {
	return s.Regex != "" && s.CSSQuery == "" && s.PathQuery == ""
}

// IsElementBound reports whether the selector resolves against page elements
func (s Selector) IsElementBound() bool {
	return s.CSSQuery != "" || s.PathQuery != ""
}

// FilterSet holds case-insensitive include/exclude patterns applied across all record fields
type FilterSet struct {
	Include string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// Options toggles crawl behaviour for a job
type Options struct {
	HandlePagination       bool `yaml:"handle_pagination,omitempty" json:"handle_pagination,omitempty"`
	WaitForDynamicContent  bool `yaml:"wait_for_dynamic_content,omitempty" json:"wait_for_dynamic_content,omitempty"`
	RemoveDuplicates       bool `yaml:"remove_duplicates,omitempty" json:"remove_duplicates,omitempty"`
	RespectRobots          bool `yaml:"respect_robots,omitempty" json:"respect_robots,omitempty"` // Advisory only
	MultiWebsite           bool `yaml:"multi_website,omitempty" json:"multi_website,omitempty"`
	ExtractURLsFromResults bool `yaml:"extract_urls_from_results,omitempty" json:"extract_urls_from_results,omitempty"`
	MaxWebsites            int  `yaml:"max_websites,omitempty" json:"max_websites,omitempty"`
}

// PaginationSettings controls how the next page is located
type PaginationSettings struct {
	NextPageSelector string `yaml:"next_page_selector,omitempty" json:"next_page_selector,omitempty"`
	MaxPages         int    `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`
}

// Configuration is one job: a target plus the rules applied to it. Read-only during a run.
type Configuration struct {
	TargetURL        string             `yaml:"target_url" json:"target_url"`
	UserAgentProfile string             `yaml:"user_agent_profile,omitempty" json:"user_agent_profile,omitempty"`
	RequestDelayMs   int                `yaml:"request_delay_ms,omitempty" json:"request_delay_ms,omitempty"`
	Selectors        []Selector         `yaml:"selectors" json:"selectors"`
	Filters          FilterSet          `yaml:"filters,omitempty" json:"filters,omitempty"`
	Options          Options            `yaml:"options,omitempty" json:"options,omitempty"`
	Pagination       PaginationSettings `yaml:"pagination,omitempty" json:"pagination,omitempty"`
	Schedule         string             `yaml:"schedule,omitempty" json:"schedule,omitempty"` // Watch interval, e.g. "1h"
}

// RequestDelay returns the politeness delay as a duration
func (c Configuration) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

// ChromeConfig configures the headless Chrome renderer
type ChromeConfig struct {
	Headless       *bool  `yaml:"headless,omitempty"`
	ExecPath       string `yaml:"exec_path,omitempty"`
	NoSandbox      bool   `yaml:"no_sandbox,omitempty"`
	WindowWidth    int    `yaml:"window_width,omitempty"`
	WindowHeight   int    `yaml:"window_height,omitempty"`
	DisableImages  bool   `yaml:"disable_images,omitempty"`
	UserDataDirTmp bool   `yaml:"user_data_dir_tmp,omitempty"`
}

// IsHeadless returns the effective headless setting (default true)
func (c ChromeConfig) IsHeadless() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}

// Renderer names
const (
	RendererStatic = "static"
	RendererChrome = "chrome"
)

// Session store names
const (
	SessionStoreMemory = "memory"
	SessionStoreBadger = "badger"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent      string                   `yaml:"default_user_agent"`
	UserAgentProfiles     map[string]string        `yaml:"user_agent_profiles,omitempty"`
	Renderer              string                   `yaml:"renderer,omitempty"`
	Chrome                ChromeConfig             `yaml:"chrome,omitempty"`
	StateDir              string                   `yaml:"state_dir"`
	SessionStore          string                   `yaml:"session_store,omitempty"`
	PageLoadTimeout       time.Duration            `yaml:"page_load_timeout,omitempty"`
	DynamicContentWait    time.Duration            `yaml:"dynamic_content_wait,omitempty"`
	PaginationSettle      time.Duration            `yaml:"pagination_settle,omitempty"`
	MaxConcurrentSessions int                      `yaml:"max_concurrent_sessions,omitempty"`
	DefaultDelayPerHost   time.Duration            `yaml:"default_delay_per_host"`
	MaxRequestsPerHost    int                      `yaml:"max_requests_per_host"`
	MaxRetries            int                      `yaml:"max_retries,omitempty"`
	InitialRetryDelay     time.Duration            `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay         time.Duration            `yaml:"max_retry_delay,omitempty"`
	SemaphoreTimeout      time.Duration            `yaml:"semaphore_acquire_timeout,omitempty"`
	HTTPClientSettings    HTTPClientConfig         `yaml:"http_client_settings,omitempty"`
	Jobs                  map[string]Configuration `yaml:"jobs"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Load reads and parses a YAML config file. Validation is left to the caller.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", utils.ErrConfigValidation, err)
	}
	return &cfg, nil
}

// Job returns the configuration for key, or ErrConfigurationNotFound
func (c *AppConfig) Job(key string) (Configuration, error) {
	job, ok := c.Jobs[key]
	if !ok {
		return Configuration{}, fmt.Errorf("%w: job '%s'", utils.ErrConfigurationNotFound, key)
	}
	return job, nil
}

// JobKeys returns the configured job keys in sorted order
func (c *AppConfig) JobKeys() []string {
	keys := make([]string, 0, len(c.Jobs))
	for k := range c.Jobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveUserAgent maps a profile name to a user agent string.
// Unknown or empty profiles fall back to the default user agent.
func (c *AppConfig) ResolveUserAgent(profile string) string {
	if profile != "" {
		if ua, ok := c.UserAgentProfiles[profile]; ok && ua != "" {
			return ua
		}
	}
	return c.DefaultUserAgent
}
