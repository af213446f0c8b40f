// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/bookmeta/internal/catalog"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults.
type Config struct {
	// Credentials
	CFCookie   string `json:"cf_cookie,omitempty"`   // cf_clearance cookie value
	CookieFile string `json:"cookie_file,omitempty"` // File holding the cf_clearance value

	// Transport
	FetchMode         string  `json:"fetch_mode,omitempty" validate:"omitempty,oneof=fallback session process"`
	FallbackTransport string  `json:"fallback_transport,omitempty" validate:"omitempty,oneof=process browser"`
	CurlPath          string  `json:"curl_path,omitempty"`
	BrowserPath       string  `json:"browser_path,omitempty"`
	TimeoutSeconds    int     `json:"timeout_seconds,omitempty" validate:"gte=0"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" validate:"gte=0"`

	// Catalog
	SearchURL  string   `json:"search_url,omitempty" validate:"omitempty,url"`
	DetailURL  string   `json:"detail_url,omitempty" validate:"omitempty,url"`
	ImageURL   string   `json:"image_url,omitempty" validate:"omitempty,url"`
	SiteID     int      `json:"site_id,omitempty" validate:"gte=0"`
	GroupID    int      `json:"group_id,omitempty" validate:"gte=0"`
	BlockTerms []string `json:"block_terms,omitempty"` // nil means the default terms

	// Response cache
	DatabaseURL   string `json:"database_url,omitempty"`
	CacheTTLHours int    `json:"cache_ttl_hours,omitempty" validate:"gte=0"`

	// Server
	ListenAddr string `json:"listen_addr,omitempty"`

	// Behavior
	Verbose bool `json:"verbose,omitempty"` // Log at debug level
}

// Default returns the built-in configuration.
func Default() Config {
	ep := catalog.DefaultEndpoints()
	return Config{
		FetchMode:         "fallback",
		FallbackTransport: "process",
		CurlPath:          "curl",
		TimeoutSeconds:    30,
		SearchURL:         ep.SearchURL,
		DetailURL:         ep.DetailURL,
		ImageURL:          ep.ImageURL,
		SiteID:            ep.SiteID,
		GroupID:           ep.GroupID,
		CacheTTLHours:     24,
		ListenAddr:        ":8080",
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Load builds the effective configuration: the JSON file at path (if any), then
// environment overrides, then defaults for anything still unset.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	merged := cfg.MergeWithDefaults(Default())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// ApplyEnv overrides fields from BOOKMETA_* variables and DATABASE_URL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BOOKMETA_CF_COOKIE", &c.CFCookie)
	str("BOOKMETA_COOKIE_FILE", &c.CookieFile)
	str("BOOKMETA_FETCH_MODE", &c.FetchMode)
	str("BOOKMETA_FALLBACK_TRANSPORT", &c.FallbackTransport)
	str("BOOKMETA_CURL_PATH", &c.CurlPath)
	str("BOOKMETA_BROWSER_PATH", &c.BrowserPath)
	str("BOOKMETA_LISTEN_ADDR", &c.ListenAddr)
	str("DATABASE_URL", &c.DatabaseURL)

	if v, ok := lookup("BOOKMETA_TIMEOUT_SECONDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BOOKMETA_TIMEOUT_SECONDS: %w", err)
		}
		c.TimeoutSeconds = n
	}
	if v, ok := lookup("BOOKMETA_REQUESTS_PER_SECOND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid BOOKMETA_REQUESTS_PER_SECOND: %w", err)
		}
		c.RequestsPerSecond = f
	}
	if v, ok := lookup("BOOKMETA_BLOCK_TERMS"); ok {
		c.BlockTerms = splitList(v)
	}
	return nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.CFCookie != "" && c.CookieFile != "" {
		return fmt.Errorf("config error: 'cf_cookie' and 'cookie_file' are mutually exclusive")
	}
	if c.CookieFile != "" {
		if _, err := os.Stat(c.CookieFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: cookie file not found: %s", c.CookieFile)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with unset fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.FetchMode == "" {
		result.FetchMode = defaults.FetchMode
	}
	if result.FallbackTransport == "" {
		result.FallbackTransport = defaults.FallbackTransport
	}
	if result.CurlPath == "" {
		result.CurlPath = defaults.CurlPath
	}
	if result.BrowserPath == "" {
		result.BrowserPath = defaults.BrowserPath
	}
	if result.SearchURL == "" {
		result.SearchURL = defaults.SearchURL
	}
	if result.DetailURL == "" {
		result.DetailURL = defaults.DetailURL
	}
	if result.ImageURL == "" {
		result.ImageURL = defaults.ImageURL
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}

	// Numeric fields: use default if zero
	if result.TimeoutSeconds == 0 {
		result.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if result.RequestsPerSecond == 0 {
		result.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if result.SiteID == 0 {
		result.SiteID = defaults.SiteID
	}
	if result.GroupID == 0 {
		result.GroupID = defaults.GroupID
	}
	if result.CacheTTLHours == 0 {
		result.CacheTTLHours = defaults.CacheTTLHours
	}

	if result.BlockTerms == nil {
		result.BlockTerms = defaults.BlockTerms
	}

	// Bool fields: true wins
	if defaults.Verbose {
		result.Verbose = true
	}

	return result
}

// Credential returns the bypass cookie value, reading CookieFile when CFCookie is unset.
func (c *Config) Credential() (string, error) {
	if c.CFCookie != "" {
		return strings.TrimSpace(c.CFCookie), nil
	}
	if c.CookieFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.CookieFile)
	if err != nil {
		return "", fmt.Errorf("failed to read cookie file %s: %w", c.CookieFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Endpoints returns the configured catalog endpoints.
func (c *Config) Endpoints() catalog.Endpoints {
	return catalog.Endpoints{
		SearchURL: c.SearchURL,
		DetailURL: c.DetailURL,
		ImageURL:  c.ImageURL,
		SiteID:    c.SiteID,
		GroupID:   c.GroupID,
	}
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long cached responses stay fresh.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
