package runtime

import (
	"context"
	"errors"
	"time"

	pebblestore "github.com/claudeayi/kalyptia-ledger/internal/storage/pebble"
	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/broadcast"
	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	cfgpkg "github.com/claudeayi/kalyptia-ledger/internal/config"
	"github.com/claudeayi/kalyptia-ledger/internal/gateway"
	"github.com/claudeayi/kalyptia-ledger/internal/metrics"
	"github.com/claudeayi/kalyptia-ledger/internal/subscription"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
}

// Runtime wires storage, the chain, and the delivery fabric for a
// single-node instance.
type Runtime struct {
	db          *pebblestore.DB
	chain       *chain.Store
	registry    *subscription.Registry
	broadcaster *broadcast.Broadcaster
	gateway     *gateway.Gateway
	metrics     *metrics.Metrics
	config      cfgpkg.Config
	logger      logpkg.Logger
}

// Open initializes storage, restores the chain tail, and starts the dispatch
// loop. The caller owns the lifecycle and must Close.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	m := metrics.New()

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.Config.DataDir,
		Fsync:         fsyncMode(opts.Config.Ledger.Fsync),
		FsyncInterval: time.Duration(opts.Config.Ledger.FsyncIntervalMs) * time.Millisecond,
		Metrics:       m,
	})
	if err != nil {
		return nil, err
	}

	store, err := chain.Open(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	reg := subscription.NewRegistry()
	b := broadcast.New(store, reg, logger, broadcast.Options{
		Batch:   opts.Config.Deliver.DispatchBatch,
		Metrics: m,
	})
	b.Start(ctx)

	return &Runtime{
		db:          db,
		chain:       store,
		registry:    reg,
		broadcaster: b,
		gateway:     gateway.New(store, reg, b, logger, m),
		metrics:     m,
		config:      opts.Config,
		logger:      logger,
	}, nil
}

// Close stops dispatch and releases storage.
func (r *Runtime) Close() error {
	if r.broadcaster != nil {
		r.broadcaster.Stop()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage liveness check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Chain returns the ledger store.
func (r *Runtime) Chain() *chain.Store { return r.chain }

// Registry returns the live subscription registry.
func (r *Runtime) Registry() *subscription.Registry { return r.registry }

// Broadcaster returns the dispatch loop.
func (r *Runtime) Broadcaster() *broadcast.Broadcaster { return r.broadcaster }

// Gateway returns the reconnection gateway.
func (r *Runtime) Gateway() *gateway.Gateway { return r.gateway }

// Metrics returns the process metrics registry.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

func fsyncMode(s string) pebblestore.FsyncMode {
	switch s {
	case "interval":
		return pebblestore.FsyncModeInterval
	case "never":
		return pebblestore.FsyncModeNever
	default:
		return pebblestore.FsyncModeAlways
	}
}
