// ABOUTME: Tests for config loading: defaults, YAML file, env overrides, and validation.
// ABOUTME: Uses t.Setenv for environment isolation and t.TempDir for config files.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearScoutEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SQLSCOUT_DB", "SQLSCOUT_MODEL", "SQLSCOUT_BASE_URL", "SQLSCOUT_BIND",
		"SQLSCOUT_ALLOW_REMOTE", "SQLSCOUT_MAX_RETRIES", "SQLSCOUT_ROW_LIMIT_CAP",
		"SQLSCOUT_RATE_LIMIT_COUNT", "SQLSCOUT_RATE_LIMIT_WINDOW",
		"SQLSCOUT_REASONING_TIMEOUT", "SQLSCOUT_AUTH_TOKEN", "OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaults(t *testing.T) {
	clearScoutEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RowLimitCap != 1000 {
		t.Errorf("RowLimitCap = %d, want 1000", cfg.RowLimitCap)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.RateLimitCount != 5 {
		t.Errorf("RateLimitCount = %d, want 5", cfg.RateLimitCount)
	}
	if cfg.RateLimitWindow != 60*time.Second {
		t.Errorf("RateLimitWindow = %s, want 60s", cfg.RateLimitWindow)
	}
	if cfg.MaxJoinHops != 3 {
		t.Errorf("MaxJoinHops = %d, want 3", cfg.MaxJoinHops)
	}
	if cfg.StatementTimeout != 30*time.Second {
		t.Errorf("StatementTimeout = %s, want 30s", cfg.StatementTimeout)
	}
	if cfg.Bind != "127.0.0.1:7741" {
		t.Errorf("Bind = %q, want 127.0.0.1:7741", cfg.Bind)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearScoutEnv(t)

	path := filepath.Join(t.TempDir(), "sqlscout.yaml")
	body := strings.Join([]string{
		"database_path: /data/chinook.db",
		"model: gpt-4o",
		"row_limit_cap: 500",
		"max_retries: 1",
		"rate_limit_window: 30s",
		"forbidden_keywords: [INSERT, DELETE, EXPLAIN]",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "/data/chinook.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.RowLimitCap != 500 {
		t.Errorf("RowLimitCap = %d, want 500", cfg.RowLimitCap)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.MaxRetries)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Errorf("RateLimitWindow = %s, want 30s", cfg.RateLimitWindow)
	}
	if len(cfg.ForbiddenKeywords) != 3 || cfg.ForbiddenKeywords[2] != "EXPLAIN" {
		t.Errorf("ForbiddenKeywords = %v", cfg.ForbiddenKeywords)
	}
	// Fields absent from the file keep their defaults.
	if cfg.RateLimitCount != 5 {
		t.Errorf("RateLimitCount = %d, want default 5", cfg.RateLimitCount)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearScoutEnv(t)

	path := filepath.Join(t.TempDir(), "sqlscout.yaml")
	if err := os.WriteFile(path, []byte("database_path: /data/from-file.db\nrow_limit_cap: 500\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SQLSCOUT_DB", "/data/from-env.db")
	t.Setenv("SQLSCOUT_ROW_LIMIT_CAP", "250")
	t.Setenv("SQLSCOUT_RATE_LIMIT_WINDOW", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "/data/from-env.db" {
		t.Errorf("DatabasePath = %q, want env value", cfg.DatabasePath)
	}
	if cfg.RowLimitCap != 250 {
		t.Errorf("RowLimitCap = %d, want 250", cfg.RowLimitCap)
	}
	if cfg.RateLimitWindow != 2*time.Minute {
		t.Errorf("RateLimitWindow = %s, want 2m", cfg.RateLimitWindow)
	}
}

func TestSecretsOnlyFromEnv(t *testing.T) {
	clearScoutEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SQLSCOUT_AUTH_TOKEN", "tok")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.AuthToken != "tok" {
		t.Errorf("AuthToken = %q", cfg.AuthToken)
	}
}

func TestValidate(t *testing.T) {
	clearScoutEnv(t)

	t.Run("remote without token refused", func(t *testing.T) {
		cfg := Default()
		cfg.AllowRemote = true
		if err := cfg.Validate(); !errors.Is(err, ErrRemoteWithoutToken) {
			t.Errorf("err = %v, want ErrRemoteWithoutToken", err)
		}
	})

	t.Run("remote with token allowed", func(t *testing.T) {
		cfg := Default()
		cfg.AllowRemote = true
		cfg.AuthToken = "tok"
		cfg.Bind = "0.0.0.0:7741"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("non-loopback bind without allow_remote refused", func(t *testing.T) {
		cfg := Default()
		cfg.Bind = "0.0.0.0:7741"
		if err := cfg.Validate(); !errors.Is(err, ErrNonLoopbackBind) {
			t.Errorf("err = %v, want ErrNonLoopbackBind", err)
		}
	})

	t.Run("localhost bind allowed", func(t *testing.T) {
		cfg := Default()
		cfg.Bind = "localhost:7741"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("zero row cap rejected", func(t *testing.T) {
		cfg := Default()
		cfg.RowLimitCap = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for zero row cap")
		}
	})

	t.Run("negative retries rejected", func(t *testing.T) {
		cfg := Default()
		cfg.MaxRetries = -1
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative retries")
		}
	})
}

func TestLoadMissingFile(t *testing.T) {
	clearScoutEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
