package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by every adapter.
type HTTPConfig struct {
	// Timeout caps a single outbound HTTP request.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "multi-search/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// RateLimitConfig configures client-side politeness limiting for one
// backend. A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// GitHubConfig configures the repository source.
type GitHubConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Token is an optional personal access token for higher rate limits.
	Token string `json:"token,omitempty" yaml:"token,omitempty" mapstructure:"token"`

	// FetchReadme attaches a README excerpt to each repository result.
	FetchReadme bool `json:"fetch_readme" yaml:"fetch_readme" mapstructure:"fetch_readme"`

	// ReadmeMaxChars bounds the attached excerpt (default 500).
	ReadmeMaxChars int `json:"readme_max_chars" yaml:"readme_max_chars" mapstructure:"readme_max_chars"`

	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ArxivConfig configures the preprint source.
type ArxivConfig struct {
	Enabled   bool            `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SemanticScholarConfig configures the citation source. Without an API key
// the source stays disabled unless AllowAnonymous is set.
type SemanticScholarConfig struct {
	Enabled        bool            `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	APIKey         string          `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	AllowAnonymous bool            `json:"allow_anonymous" yaml:"allow_anonymous" mapstructure:"allow_anonymous"`
	RateLimit      RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
}

// WebConfig configures the general web source.
type WebConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// SerpAPIKey selects SerpAPI; without it DuckDuckGo HTML is used.
	SerpAPIKey string `json:"serpapi_key,omitempty" yaml:"serpapi_key,omitempty" mapstructure:"serpapi_key"`

	// KeywordFilter keeps only hits whose title contains one of the words
	// (case-insensitive). Empty keeps everything.
	KeywordFilter []string `json:"keyword_filter,omitempty" yaml:"keyword_filter,omitempty" mapstructure:"keyword_filter"`

	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
}

// WebMode selects when the web source is consulted.
type WebMode string

const (
	// WebParallel fans the web source out together with every other source.
	WebParallel WebMode = "parallel"

	// WebFallback consults the web source only when the other sources came
	// back with fewer results than requested.
	WebFallback WebMode = "fallback"
)

// SearchConfig holds settings for the aggregation core and its adapters.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxResults is the default number of results when the caller gives none (default 10).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// RequestTimeout is the single deadline governing a whole aggregation (default 10s).
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`

	// SourceTimeout optionally caps each adapter below RequestTimeout.
	SourceTimeout time.Duration `json:"source_timeout" yaml:"source_timeout" mapstructure:"source_timeout"`

	// WebMode is parallel (default) or fallback.
	WebMode WebMode `json:"web_mode" yaml:"web_mode" mapstructure:"web_mode"`

	GitHub          GitHubConfig          `json:"github" yaml:"github" mapstructure:"github"`
	Arxiv           ArxivConfig           `json:"arxiv" yaml:"arxiv" mapstructure:"arxiv"`
	SemanticScholar SemanticScholarConfig `json:"semantic_scholar" yaml:"semantic_scholar" mapstructure:"semantic_scholar"`
	Web             WebConfig             `json:"web" yaml:"web" mapstructure:"web"`
}

// Enabled reports whether the given source takes part in fan-out. The
// citation source additionally needs an API key unless anonymous access is
// allowed.
func (c SearchConfig) Enabled(k SourceKind) bool {
	switch k {
	case SourceRepository:
		return c.GitHub.Enabled
	case SourcePreprint:
		return c.Arxiv.Enabled
	case SourceCitation:
		return c.SemanticScholar.Enabled && (c.SemanticScholar.APIKey != "" || c.SemanticScholar.AllowAnonymous)
	case SourceWeb:
		return c.Web.Enabled
	default:
		return false
	}
}

// EnabledSources returns the enabled sources in priority order.
func (c SearchConfig) EnabledSources() []SourceKind {
	var out []SourceKind
	for _, k := range SourceKinds {
		if c.Enabled(k) {
			out = append(out, k)
		}
	}
	return out
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	// Env is "dev" (console) or "prod" (JSON).
	Env string `json:"env" yaml:"env" mapstructure:"env"`

	// Level overrides the default level: debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`
}

// ServerConfig holds settings for the HTTP front-end.
type ServerConfig struct {
	Addr         string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
}

// Config groups every configuration section.
type Config struct {
	Search SearchConfig `json:"search" yaml:"search" mapstructure:"search"`
	Log    LogConfig    `json:"log" yaml:"log" mapstructure:"log"`
	Server ServerConfig `json:"server" yaml:"server" mapstructure:"server"`
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Search.MaxResults < 1 || c.Search.MaxResults > 100 {
		return fmt.Errorf("search.max_results must be between 1 and 100, got %d", c.Search.MaxResults)
	}
	if c.Search.RequestTimeout <= 0 {
		return fmt.Errorf("search.request_timeout must be positive")
	}
	if c.Search.SourceTimeout < 0 {
		return fmt.Errorf("search.source_timeout must not be negative")
	}
	switch c.Search.WebMode {
	case WebParallel, WebFallback:
	default:
		return fmt.Errorf("search.web_mode must be %q or %q, got %q", WebParallel, WebFallback, c.Search.WebMode)
	}
	return nil
}
