package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir string  `json:"dataDir" yaml:"dataDir"`
	HTTP    HTTP    `json:"http" yaml:"http"`
	Auth    Auth    `json:"auth" yaml:"auth"`
	Log     Log     `json:"log" yaml:"log"`
	Ledger  Ledger  `json:"ledger" yaml:"ledger"`
	Deliver Deliver `json:"deliver" yaml:"deliver"`
}

// HTTP configures the API listener.
type HTTP struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Auth configures bearer-token verification. An empty secret disables
// authentication; every request is then treated as the identity named in the
// X-Ledger-Identity header. Dev/test only.
type Auth struct {
	Secret string `json:"secret" yaml:"secret"`
	Issuer string `json:"issuer" yaml:"issuer"`
}

// Log configures the process logger.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Ledger captures append-path limits and durability policy.
type Ledger struct {
	// Fsync is one of "always", "interval", "never".
	Fsync           string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
	PayloadMaxBytes int    `json:"payloadMaxBytes" yaml:"payloadMaxBytes"`
}

// Deliver tunes fan-out and backfill.
type Deliver struct {
	QueueDepth    int `json:"queueDepth" yaml:"queueDepth"`
	DispatchBatch int `json:"dispatchBatch" yaml:"dispatchBatch"`
	BackfillBatch int `json:"backfillBatch" yaml:"backfillBatch"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		HTTP:    HTTP{Addr: ":8787"},
		Auth:    Auth{Issuer: "ledgerd"},
		Log:     Log{Level: "info", Format: "text"},
		Ledger: Ledger{
			Fsync:           "always",
			PayloadMaxBytes: 1 << 20,
		},
		Deliver: Deliver{
			QueueDepth:    256,
			DispatchBatch: 256,
			BackfillBatch: 256,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
