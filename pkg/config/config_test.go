package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("api.port default = %d, want 8080", cfg.API.Port)
	}
	if cfg.Invocation.BreakerThreshold != 5 {
		t.Errorf("breaker_threshold default = %d, want 5", cfg.Invocation.BreakerThreshold)
	}
	if cfg.Planner.MaxContextTurns != 10 {
		t.Errorf("max_context_turns default = %d, want 10", cfg.Planner.MaxContextTurns)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
api:
  port: 9090
auth:
  roles:
    radiologist:
      - "pacs:*"
      - "reporting:read"
invocation:
  tool_timeouts:
    retrieve_study: "20s"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("api.port = %d, want 9090", cfg.API.Port)
	}
	perms := cfg.Auth.Roles["radiologist"]
	if len(perms) != 2 || perms[0] != "pacs:*" {
		t.Errorf("roles.radiologist = %v", perms)
	}
	if cfg.Invocation.ToolTimeouts["retrieve_study"] != "20s" {
		t.Errorf("tool_timeouts = %v", cfg.Invocation.ToolTimeouts)
	}
}

func TestDuration(t *testing.T) {
	if Duration("", 5*time.Second) != 5*time.Second {
		t.Error("empty should fall back")
	}
	if Duration("250ms", time.Second) != 250*time.Millisecond {
		t.Error("parse failed")
	}
	if Duration("bogus", 2*time.Second) != 2*time.Second {
		t.Error("invalid should fall back")
	}
}
