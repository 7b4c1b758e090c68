package config

import (
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if cfg.Store.Root != "tiles" {
		t.Errorf("Store.Root = %q, want tiles", cfg.Store.Root)
	}
	if cfg.Ledger.Path != "failed_tiles.txt" {
		t.Errorf("Ledger.Path = %q, want failed_tiles.txt", cfg.Ledger.Path)
	}
	if cfg.Scheduler.Mode != "batch" {
		t.Errorf("Scheduler.Mode = %q, want batch", cfg.Scheduler.Mode)
	}
	if cfg.Progress.MaxLines != 10000 {
		t.Errorf("Progress.MaxLines = %d, want 10000", cfg.Progress.MaxLines)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("Fetch.Timeout = %v, want 30s", cfg.Fetch.Timeout)
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_ROOT", "/var/tiles")
	t.Setenv("LEDGER_PATH", "/var/failed.txt")
	t.Setenv("SCHEDULER_MODE", "window")
	t.Setenv("HTTP_SERVER_PORT", "9090")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_TTL", "1h")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if cfg.Store.Root != "/var/tiles" {
		t.Errorf("Store.Root = %q", cfg.Store.Root)
	}
	if cfg.Ledger.Path != "/var/failed.txt" {
		t.Errorf("Ledger.Path = %q", cfg.Ledger.Path)
	}
	if cfg.Scheduler.Mode != "window" {
		t.Errorf("Scheduler.Mode = %q", cfg.Scheduler.Mode)
	}
	if cfg.HTTP.Server.Port != "9090" {
		t.Errorf("HTTP.Server.Port = %q", cfg.HTTP.Server.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.TTL != time.Hour {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestNewInvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FETCH_TIMEOUT", "soon")

	if _, err := New(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
