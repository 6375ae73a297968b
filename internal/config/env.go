package config

import (
	"os"
	"strconv"
)

// FromEnv overlays LEDGER_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("LEDGER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LEDGER_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LEDGER_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("LEDGER_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("LEDGER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LEDGER_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LEDGER_FSYNC"); v != "" {
		cfg.Ledger.Fsync = v
	}
	if v := os.Getenv("LEDGER_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("LEDGER_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.PayloadMaxBytes = n
		}
	}
	if v := os.Getenv("LEDGER_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deliver.QueueDepth = n
		}
	}
	if v := os.Getenv("LEDGER_DISPATCH_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deliver.DispatchBatch = n
		}
	}
	if v := os.Getenv("LEDGER_BACKFILL_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deliver.BackfillBatch = n
		}
	}
}
