// Package config provides loading and environment overlay for ledgerd
// configuration. It exposes a Default() baseline, file loading from JSON or
// YAML, and LEDGER_* environment overrides.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/ledgerd.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
