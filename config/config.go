// ABOUTME: Configuration surface for the query pipeline: YAML file plus SQLSCOUT_* env overrides.
// ABOUTME: Enforces security constraint: remote access requires auth token.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrNoDatabase = errors.New(
		"no database configured; set database_path in the config file or SQLSCOUT_DB",
	)
	ErrRemoteWithoutToken = errors.New(
		"SQLSCOUT_ALLOW_REMOTE is true but SQLSCOUT_AUTH_TOKEN is not set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"bind address is non-loopback but SQLSCOUT_ALLOW_REMOTE is not true; set SQLSCOUT_ALLOW_REMOTE=true and SQLSCOUT_AUTH_TOKEN to allow remote access",
	)
)

// Config holds everything the pipeline core consumes but does not own:
// safety limits, retry bounds, rate-limit budget, timeouts, and the
// connection targets for the database and reasoning backend.
type Config struct {
	DatabasePath string `yaml:"database_path"`

	Model   string `yaml:"model"`    // reasoning model name (default gpt-4o-mini)
	BaseURL string `yaml:"base_url"` // OpenAI-compatible endpoint override
	APIKey  string `yaml:"-"`        // env only, never from file

	Bind        string `yaml:"bind"`         // HTTP server address (default 127.0.0.1:7741)
	AllowRemote bool   `yaml:"allow_remote"` // allow non-loopback connections
	AuthToken   string `yaml:"-"`            // env only, never from file

	ForbiddenKeywords []string      `yaml:"forbidden_keywords"`
	RowLimitCap       int           `yaml:"row_limit_cap"`
	MaxRetries        int           `yaml:"max_retries"`
	MaxJoinHops       int           `yaml:"max_join_hops"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	RateLimitCount    int           `yaml:"rate_limit_count"`
	ReasoningTimeout  time.Duration `yaml:"reasoning_timeout"`
	StatementTimeout  time.Duration `yaml:"statement_timeout"`
	SampleRowCount    int           `yaml:"sample_row_count"`
}

// Default returns the baseline configuration before file or env overrides.
func Default() *Config {
	return &Config{
		Model:            "gpt-4o-mini",
		Bind:             "127.0.0.1:7741",
		RowLimitCap:      1000,
		MaxRetries:       2,
		MaxJoinHops:      3,
		RateLimitWindow:  60 * time.Second,
		RateLimitCount:   5,
		ReasoningTimeout: 60 * time.Second,
		StatementTimeout: 30 * time.Second,
		SampleRowCount:   3,
	}
}

// Load builds the configuration: defaults, then the YAML file (when path is
// non-empty), then SQLSCOUT_* environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from SQLSCOUT_* environment variables. Secrets
// (API key, auth token) are only ever read from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("SQLSCOUT_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("SQLSCOUT_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("SQLSCOUT_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SQLSCOUT_BIND"); v != "" {
		c.Bind = v
	}
	if v := os.Getenv("SQLSCOUT_ALLOW_REMOTE"); v == "true" || v == "1" || v == "yes" {
		c.AllowRemote = true
	}
	if v := os.Getenv("SQLSCOUT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("SQLSCOUT_ROW_LIMIT_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RowLimitCap = n
		}
	}
	if v := os.Getenv("SQLSCOUT_RATE_LIMIT_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitCount = n
		}
	}
	if v := os.Getenv("SQLSCOUT_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RateLimitWindow = d
		}
	}
	if v := os.Getenv("SQLSCOUT_REASONING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ReasoningTimeout = d
		}
	}

	c.APIKey = os.Getenv("OPENAI_API_KEY")
	c.AuthToken = os.Getenv("SQLSCOUT_AUTH_TOKEN")
}

// Validate checks cross-field constraints. The database path requirement is
// checked by callers that actually open a database (the schema mode and the
// pipeline both do), so it is not enforced here.
func (c *Config) Validate() error {
	if c.RowLimitCap <= 0 {
		return fmt.Errorf("row_limit_cap must be positive, got %d", c.RowLimitCap)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RateLimitCount <= 0 {
		return fmt.Errorf("rate_limit_count must be positive, got %d", c.RateLimitCount)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive, got %s", c.RateLimitWindow)
	}

	// Security: remote access requires an auth token, and non-loopback binds
	// require explicitly opting into remote access.
	if c.AllowRemote && c.AuthToken == "" {
		return ErrRemoteWithoutToken
	}
	if !c.AllowRemote {
		if host, _, err := net.SplitHostPort(c.Bind); err == nil && host != "" {
			ip := net.ParseIP(host)
			switch {
			case ip != nil && ip.IsLoopback():
			case host == "localhost":
			default:
				return fmt.Errorf("%w: bind=%s", ErrNonLoopbackBind, c.Bind)
			}
		}
	}

	return nil
}
