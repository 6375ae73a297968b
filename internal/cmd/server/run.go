package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	cfgpkg "github.com/claudeayi/kalyptia-ledger/internal/config"
	"github.com/claudeayi/kalyptia-ledger/internal/runtime"
	httpserver "github.com/claudeayi/kalyptia-ledger/internal/server/http"
	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"
)

// Options configures one server process.
type Options struct {
	Config cfgpkg.Config
}

// Run starts the HTTP server and blocks until ctx is cancelled or a signal
// arrives.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers without
	// signal handling still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	procLogger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  opts.Config.Log.Level,
		Format: opts.Config.Log.Format,
	})
	if err != nil {
		procLogger = logpkg.NewLogger(logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	if opts.Config.DataDir == "" {
		opts.Config.DataDir = cfgpkg.DefaultDataDir()
	}
	opts.Config.DataDir = filepath.Join(opts.Config.DataDir, "store")

	rt, err := runtime.Open(sctx, runtime.Options{Config: opts.Config, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("starting ledgerd",
		logpkg.Str("http", opts.Config.HTTP.Addr),
		logpkg.Str("data_dir", opts.Config.DataDir),
		logpkg.Str("fsync", opts.Config.Ledger.Fsync),
		logpkg.Bool("auth", opts.Config.Auth.Secret != ""),
	)

	hsrv := httpserver.New(rt)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.Config.HTTP.Addr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server failed", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Close servers before the runtime/DB to avoid handler races on shutdown.
	hsrv.Close()
	wg.Wait()
	return nil
}
