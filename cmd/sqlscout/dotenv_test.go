// ABOUTME: Tests for the .env loader: parsing, quoting, and no-clobber behavior.
// ABOUTME: Uses t.TempDir for env files and t.Setenv for isolation.
package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("DOTENV_A", "")
	os.Unsetenv("DOTENV_A")
	t.Setenv("DOTENV_B", "")
	os.Unsetenv("DOTENV_B")
	t.Setenv("DOTENV_C", "")
	os.Unsetenv("DOTENV_C")

	path := writeEnvFile(t, `
# comment
DOTENV_A=plain
DOTENV_B="quoted value"
export DOTENV_C='single'
NOT_AN_ASSIGNMENT
`)
	loadDotEnv(path)

	if got := os.Getenv("DOTENV_A"); got != "plain" {
		t.Errorf("DOTENV_A = %q", got)
	}
	if got := os.Getenv("DOTENV_B"); got != "quoted value" {
		t.Errorf("DOTENV_B = %q", got)
	}
	if got := os.Getenv("DOTENV_C"); got != "single" {
		t.Errorf("DOTENV_C = %q", got)
	}
}

func TestLoadDotEnvDoesNotClobber(t *testing.T) {
	t.Setenv("DOTENV_KEEP", "original")
	path := writeEnvFile(t, "DOTENV_KEEP=overwritten\n")
	loadDotEnv(path)
	if got := os.Getenv("DOTENV_KEEP"); got != "original" {
		t.Errorf("DOTENV_KEEP = %q, want original", got)
	}
}

func TestLoadDotEnvMissingFileIsSilent(t *testing.T) {
	loadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
}
