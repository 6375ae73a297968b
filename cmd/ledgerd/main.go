package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/claudeayi/kalyptia-ledger/internal/cmd/client"
	serverrun "github.com/claudeayi/kalyptia-ledger/internal/cmd/server"
	cfgpkg "github.com/claudeayi/kalyptia-ledger/internal/config"
	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"
)

func main() {
	level := os.Getenv("LEDGER_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "ledgerd",
		Short: "Tamper-evident event ledger with real-time fan-out",
		Long:  "ledgerd is a single-binary event ledger: a hash-linked append-only chain with streaming delivery and reconnect reconciliation. This CLI manages the server and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the ledgerd server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			authSecret, _ := cmd.Flags().GetString("auth-secret")

			cfg, err := cfgpkg.Load(cfgPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}
			if fsyncMode != "" {
				switch fsyncMode {
				case "always", "interval", "never":
					cfg.Ledger.Fsync = fsyncMode
				default:
					return fmt.Errorf("invalid --fsync; use always|interval|never")
				}
			}
			if fsyncIntervalMs > 0 {
				cfg.Ledger.FsyncIntervalMs = fsyncIntervalMs
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			if authSecret != "" {
				cfg.Auth.Secret = authSecret
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("config", "", "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (defaults to the OS application data directory)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8787)")
	serverStartCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 0, "When --fsync=interval, group-commit window in ms")
	serverStartCmd.Flags().String("log-level", os.Getenv("LEDGER_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("LEDGER_LOG_FORMAT"), "Log format: text|json (default text)")
	serverStartCmd.Flags().String("auth-secret", "", "Bearer token signing secret (empty disables auth)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewLedgerCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("LEDGER_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8787"
}
