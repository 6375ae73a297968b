package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.HTTP.Addr == "" || cfg.DataDir == "" {
		t.Fatalf("defaults incomplete: %+v", cfg)
	}
	if cfg.Ledger.Fsync != "always" {
		t.Fatalf("durability must default to always, got %q", cfg.Ledger.Fsync)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "ledgerd.json", `{"http":{"addr":":9000"},"ledger":{"fsync":"never"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" || cfg.Ledger.Fsync != "never" {
		t.Fatalf("loaded %+v", cfg)
	}
	// Unset fields keep their defaults.
	if cfg.Deliver.QueueDepth != Default().Deliver.QueueDepth {
		t.Fatalf("defaults not preserved")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ledgerd.yaml", "http:\n  addr: \":9100\"\nauth:\n  secret: s3cret\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" || cfg.Auth.Secret != "s3cret" {
		t.Fatalf("loaded %+v", cfg)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := writeFile(t, "bad.json", `{`)
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed config must fail")
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("LEDGER_HTTP_ADDR", ":7000")
	t.Setenv("LEDGER_FSYNC", "interval")
	t.Setenv("LEDGER_QUEUE_DEPTH", "32")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.HTTP.Addr != ":7000" || cfg.Ledger.Fsync != "interval" || cfg.Deliver.QueueDepth != 32 {
		t.Fatalf("env overlay missed: %+v", cfg)
	}
}
