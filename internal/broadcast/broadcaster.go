package broadcast

import (
	"context"
	"errors"
	"time"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	"github.com/claudeayi/kalyptia-ledger/internal/events"
	"github.com/claudeayi/kalyptia-ledger/internal/subscription"
)

// Metrics observes dispatch outcomes. Optional.
type Metrics interface {
	ObserveDispatch(t events.Type, fanout int)
	ObserveOverflow()
	ObserveRoutingError(t events.Type)
}

type NoopMetrics struct{}

func (NoopMetrics) ObserveDispatch(events.Type, int) {}
func (NoopMetrics) ObserveOverflow()                 {}
func (NoopMetrics) ObserveRoutingError(events.Type)  {}

// Options configures a Broadcaster.
type Options struct {
	// Batch caps how many entries one read pass dispatches.
	Batch int
	// Metrics receives dispatch observations.
	Metrics Metrics
	// RetryBackoff paces retries after storage read errors.
	RetryBackoff time.Duration
}

// Broadcaster tails the ledger and fans each committed entry out to the live
// subscriptions its route set selects. It is the only component that turns
// commits into deliveries, so every subscriber observes events in commit
// order. A slow subscriber is disconnected, never waited on.
type Broadcaster struct {
	chain   *chain.Store
	reg     *subscription.Registry
	logger  logpkg.Logger
	metrics Metrics
	batch   int
	backoff time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func New(store *chain.Store, reg *subscription.Registry, logger logpkg.Logger, opts Options) *Broadcaster {
	if opts.Batch <= 0 {
		opts.Batch = 256
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	return &Broadcaster{
		chain:   store,
		reg:     reg,
		logger:  logger.With(logpkg.Component("broadcast")),
		metrics: opts.Metrics,
		batch:   opts.Batch,
		backoff: opts.RetryBackoff,
	}
}

// Start begins tailing from the current tail. Entries committed before Start
// are not re-dispatched; reconnecting sessions backfill those themselves.
func (b *Broadcaster) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	next := uint64(0)
	if seq, ok := b.chain.TailSeq(); ok {
		next = seq + 1
	}
	go b.run(ctx, next)
}

// Stop halts the dispatch loop and waits for it to exit.
func (b *Broadcaster) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

func (b *Broadcaster) run(ctx context.Context, next uint64) {
	defer close(b.done)
	for {
		entries, err := b.chain.Range(next, b.batch)
		if err != nil {
			b.logger.Error("broadcast.read_failed", logpkg.Err(err), logpkg.Uint64("seq", next))
			select {
			case <-time.After(b.backoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		if len(entries) == 0 {
			if err := b.chain.WaitForAppend(ctx, next); err != nil {
				return
			}
			continue
		}
		for _, e := range entries {
			b.Dispatch(e)
			next = e.Sequence + 1
		}
	}
}

// Dispatch routes one committed entry to its live audience. Exported so the
// reconciliation gateway can reuse the same routing check during backfill.
func (b *Broadcaster) Dispatch(e *chain.Entry) {
	t0 := time.Now()
	rs := b.routes(e)
	subs := b.reg.Match(rs)
	for _, sub := range subs {
		if err := sub.Receiver.Deliver(e); err != nil {
			// Disconnect rather than stall: the session's watermark makes the
			// reconnect lossless.
			b.reg.Unregister(sub.ID)
			sub.Receiver.Close(err)
			if errors.Is(err, ErrQueueOverflow) {
				b.metrics.ObserveOverflow()
			}
			b.logger.Warn("broadcast.subscriber_dropped",
				logpkg.Str("subscription", sub.ID),
				logpkg.Str("identity", string(sub.Identity)),
				logpkg.Err(err),
			)
		}
	}
	b.metrics.ObserveDispatch(e.Type, len(subs))
	b.logger.Debug("broadcast.deliver",
		logpkg.Str("type", string(e.Type)),
		logpkg.Uint64("seq", e.Sequence),
		logpkg.Int("fanout", len(subs)),
		logpkg.Int64("dur_ms", time.Since(t0).Milliseconds()),
	)
}

// Routes resolves the audience for an entry, degrading to admin-only when the
// route computation fails.
func (b *Broadcaster) Routes(e *chain.Entry) events.RouteSet { return b.routes(e) }

func (b *Broadcaster) routes(e *chain.Entry) events.RouteSet {
	rs, err := events.RoutesFor(e.Type, e.Payload)
	if err != nil {
		b.metrics.ObserveRoutingError(e.Type)
		b.logger.Error("broadcast.routing_failed",
			logpkg.Uint64("seq", e.Sequence),
			logpkg.Str("type", string(e.Type)),
			logpkg.Err(err),
		)
	}
	if len(rs) == 0 {
		rs = events.RouteSet{events.ScopeAdmin: struct{}{}}
	}
	return rs
}
