package model

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Config holds the complete ranker configuration
type Config struct {
	HTTP         HTTPConfig         `mapstructure:"http" yaml:"http"`
	Auth         AuthConfig         `mapstructure:"auth" yaml:"auth"`
	Concurrency  ConcurrencyConfig  `mapstructure:"concurrency" yaml:"concurrency"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting" yaml:"rate_limiting"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	Display      DisplayConfig      `mapstructure:"display" yaml:"display"`
	Query        QueryConfig        `mapstructure:"query" yaml:"query"`
}

// HTTPConfig configures outgoing requests to wikis and query services
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent" validate:"required"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes" validate:"gt=0"`
	HTTPProxy    string        `mapstructure:"http_proxy" yaml:"http_proxy,omitempty" validate:"omitempty,url"`
	HTTPSProxy   string        `mapstructure:"https_proxy" yaml:"https_proxy,omitempty" validate:"omitempty,url"`
	NoProxy      string        `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// AuthConfig holds the OAuth 2 access token used for edits
type AuthConfig struct {
	// Owner-only consumer access token; prefer RANKER_AUTH_ACCESS_TOKEN
	AccessToken string `mapstructure:"access_token" yaml:"access_token,omitempty"`
}

// ConcurrencyConfig bounds parallel work
type ConcurrencyConfig struct {
	Workers       int `mapstructure:"workers" yaml:"workers" validate:"gte=1,lte=64"`
	FetchParallel int `mapstructure:"fetch_parallel" yaml:"fetch_parallel" validate:"gte=1,lte=16"`
}

// QueryConfig overrides the SPARQL endpoints of wikis
type QueryConfig struct {
	Endpoints []QueryEndpointConfig `mapstructure:"endpoints" yaml:"endpoints,omitempty" validate:"dive"`
}

// QueryEndpointConfig points one wiki at a SPARQL endpoint
type QueryEndpointConfig struct {
	Wiki string `mapstructure:"wiki" yaml:"wiki" validate:"required,hostname"`
	URL  string `mapstructure:"url" yaml:"url" validate:"required,url"`
}

// QueryEndpoint returns the configured endpoint of wiki, or ""
func (c QueryConfig) QueryEndpoint(wiki string) string {
	for _, e := range c.Endpoints {
		if e.Wiki == wiki {
			return e.URL
		}
	}
	return ""
}

// RateLimitingConfig configures the per-host request limiter
type RateLimitingConfig struct {
	RequestsPerSecond float64          `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
	Burst             int              `mapstructure:"burst" yaml:"burst" validate:"gte=1"`
	Hosts             []HostRateConfig `mapstructure:"hosts" yaml:"hosts,omitempty" validate:"dive"` // Per-host overrides
}

// HostRateConfig overrides the request rate of one host
type HostRateConfig struct {
	Host              string  `mapstructure:"host" yaml:"host" validate:"required,hostname"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" yaml:"burst" validate:"gte=1"`
}

// CacheConfig configures the label cache
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gt=0"`
	Dir        string        `mapstructure:"dir" yaml:"dir,omitempty"`                        // Empty keeps labels in memory only
	MaxEntries int           `mapstructure:"max_entries" yaml:"max_entries" validate:"gte=0"` // Zero for no bound
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr" validate:"required,hostname_port"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
}

// LogConfig configures logging
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Format     string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
}

// DisplayConfig configures how results are shown
type DisplayConfig struct {
	Labels   bool   `mapstructure:"labels" yaml:"labels"`
	Language string `mapstructure:"language" yaml:"language" validate:"required"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Ranker/0.1 (https://github.com/ppiankov/ranker)",
			MaxBodyBytes: 20 << 20,
		},
		Concurrency: ConcurrencyConfig{
			Workers:       1,
			FetchParallel: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 5,
			Burst:             5,
			Hosts: []HostRateConfig{
				{Host: "query.wikidata.org", RequestsPerSecond: 1, Burst: 2},
				{Host: "wcqs-beta.wmflabs.org", RequestsPerSecond: 1, Burst: 2},
			},
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        time.Hour,
			MaxEntries: 1000,
		},
		Server: ServerConfig{
			Addr:           "localhost:8080",
			MaxBodyBytes:   10 << 20,
			RequestTimeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Display: DisplayConfig{
			Labels:   true,
			Language: "en",
		},
	}
}

// Validate checks the configuration against its constraints
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}
