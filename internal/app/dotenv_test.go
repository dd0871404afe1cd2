package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenv_SetsVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	data := []byte(`
# local development credentials
PROMOGATE_ACCESS_TOKEN=devtoken
export PROMOGATE_TENANT="tn_dev"
SINGLE='a b'
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("PROMOGATE_ACCESS_TOKEN", "")
	t.Setenv("PROMOGATE_TENANT", "")
	if err := loadDotenv(path); err != nil {
		t.Fatalf("loadDotenv: %v", err)
	}

	if got := os.Getenv("PROMOGATE_ACCESS_TOKEN"); got != "devtoken" {
		t.Fatalf("PROMOGATE_ACCESS_TOKEN=%q, want devtoken", got)
	}
	if got := os.Getenv("PROMOGATE_TENANT"); got != "tn_dev" {
		t.Fatalf("PROMOGATE_TENANT=%q, want tn_dev", got)
	}
	if got := os.Getenv("SINGLE"); got != "a b" {
		t.Fatalf("SINGLE=%q, want 'a b'", got)
	}
}

func TestLoadDotenv_DoesNotOverrideNonEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PROMOGATE_ACCESS_TOKEN=devtoken\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("PROMOGATE_ACCESS_TOKEN", "prodtoken")
	if err := loadDotenv(path); err != nil {
		t.Fatalf("loadDotenv: %v", err)
	}
	if got := os.Getenv("PROMOGATE_ACCESS_TOKEN"); got != "prodtoken" {
		t.Fatalf("PROMOGATE_ACCESS_TOKEN=%q, want prodtoken", got)
	}
}

func TestLoadDotenv_InvalidLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("NOEQUALS\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := loadDotenv(path); err == nil {
		t.Fatalf("expected error for line without '='")
	}
}
