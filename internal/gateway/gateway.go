package gateway

import (
	"context"
	"errors"
	"fmt"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/broadcast"
	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	"github.com/claudeayi/kalyptia-ledger/internal/events"
	"github.com/claudeayi/kalyptia-ledger/internal/subscription"
)

// State labels the phases of one reconciliation session.
type State string

const (
	StateConnecting   State = "CONNECTING"
	StateBackfilling  State = "BACKFILLING"
	StateLive         State = "LIVE"
	StateDisconnected State = "DISCONNECTED"
)

// Sender is the wire side of one connected client. Send blocks until the
// entry is on its way or the connection failed.
type Sender interface {
	Send(ctx context.Context, e *chain.Entry) error
}

// Metrics receives backfill volume observations.
type Metrics interface {
	ObserveBackfill(entries int)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) ObserveBackfill(int) {}

// Options tunes one session.
type Options struct {
	// From overrides the resume point. When nil, the identity's durable
	// watermark decides.
	From *uint64
	// QueueDepth bounds the live delivery buffer.
	QueueDepth int
	// BackfillBatch caps entries read per backfill pass.
	BackfillBatch int
	// AutoAck advances the watermark after each successful send. Clients that
	// acknowledge explicitly (POST ack) turn this off.
	AutoAck bool
	// Filter drops entries the client asked to skip. Filtered entries still
	// advance the session cursor, just not the durable watermark.
	Filter func(e *chain.Entry) bool
}

// Gateway reconciles a reconnecting client with the ledger: it replays the
// durable history the client missed, then hands the session to live fan-out,
// without dropping or duplicating an entry across the seam.
type Gateway struct {
	chain  *chain.Store
	reg    *subscription.Registry
	router interface {
		Routes(e *chain.Entry) events.RouteSet
	}
	logger  logpkg.Logger
	metrics Metrics
}

func New(store *chain.Store, reg *subscription.Registry, b *broadcast.Broadcaster, logger logpkg.Logger, m Metrics) *Gateway {
	if m == nil {
		m = NoopMetrics{}
	}
	return &Gateway{
		chain:   store,
		reg:     reg,
		router:  b,
		logger:  logger.With(logpkg.Component("gateway")),
		metrics: m,
	}
}

// Serve runs one session to completion: backfill from the resume point, then
// live deliveries, until the context ends or the session is torn down. The
// returned error is the disconnect reason; context cancellation is reported
// as nil because the client simply went away.
func (g *Gateway) Serve(ctx context.Context, identity events.Identity, admin bool, sender Sender, opts Options) error {
	if identity == "" {
		return errors.New("gateway: identity required")
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 256
	}
	if opts.BackfillBatch <= 0 {
		opts.BackfillBatch = 256
	}

	log := g.logger.With(logpkg.Str("identity", string(identity)))
	log.Debug("session.state", logpkg.Str("state", string(StateConnecting)))

	next, err := g.resumePoint(identity, opts.From)
	if err != nil {
		return err
	}

	// Register before reading the backfill window. Entries committed from
	// this point on land in the queue; everything older is read below. The
	// overlap is resolved in the live pump by sequence.
	q := broadcast.NewQueue(opts.QueueDepth)
	sub := g.reg.Register(identity, admin, q)
	defer func() {
		g.reg.Unregister(sub.ID)
		q.Close(nil)
	}()

	log.Debug("session.state", logpkg.Str("state", string(StateBackfilling)), logpkg.Uint64("from", next))
	next, err = g.backfill(ctx, identity, admin, sender, next, opts)
	if err != nil {
		log.Debug("session.state", logpkg.Str("state", string(StateDisconnected)), logpkg.Err(err))
		return disconnectErr(err)
	}

	log.Debug("session.state", logpkg.Str("state", string(StateLive)), logpkg.Uint64("from", next))
	err = g.live(ctx, identity, sender, q, next, opts)
	log.Debug("session.state", logpkg.Str("state", string(StateDisconnected)), logpkg.Err(err))
	return disconnectErr(err)
}

func (g *Gateway) resumePoint(identity events.Identity, from *uint64) (uint64, error) {
	if from != nil {
		return *from, nil
	}
	next, err := g.chain.ResumeFrom(string(identity))
	if err != nil {
		return 0, fmt.Errorf("gateway: resume point: %w", err)
	}
	return next, nil
}

// backfill replays committed entries in [next, tail], re-reading the tail
// each pass until the session has caught up. Returns the first sequence the
// live phase owns.
func (g *Gateway) backfill(ctx context.Context, identity events.Identity, admin bool, sender Sender, next uint64, opts Options) (uint64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return next, err
		}
		entries, err := g.chain.Range(next, opts.BackfillBatch)
		if err != nil {
			return next, fmt.Errorf("gateway: backfill read: %w", err)
		}
		if len(entries) == 0 {
			return next, nil
		}
		for _, e := range entries {
			if err := g.deliver(ctx, identity, admin, sender, e, opts); err != nil {
				return next, err
			}
			next = e.Sequence + 1
		}
		g.metrics.ObserveBackfill(len(entries))
	}
}

func (g *Gateway) live(ctx context.Context, identity events.Identity, sender Sender, q *broadcast.Queue, next uint64, opts Options) error {
	for {
		e, err := q.Next(ctx)
		if err != nil {
			return err
		}
		// Entries queued while backfill was still replaying them.
		if e.Sequence < next {
			continue
		}
		if err := g.send(ctx, identity, sender, e, opts); err != nil {
			return err
		}
		next = e.Sequence + 1
	}
}

// deliver applies routing and filtering for backfilled entries. Live entries
// were already routed by the broadcaster.
func (g *Gateway) deliver(ctx context.Context, identity events.Identity, admin bool, sender Sender, e *chain.Entry, opts Options) error {
	if !g.router.Routes(e).Covers(identity, admin) {
		return nil
	}
	return g.send(ctx, identity, sender, e, opts)
}

func (g *Gateway) send(ctx context.Context, identity events.Identity, sender Sender, e *chain.Entry, opts Options) error {
	if opts.Filter != nil && !opts.Filter(e) {
		return nil
	}
	if err := sender.Send(ctx, e); err != nil {
		return fmt.Errorf("gateway: send seq %d: %w", e.Sequence, err)
	}
	if opts.AutoAck {
		if err := g.chain.AdvanceWatermark(string(identity), e.Sequence); err != nil {
			return err
		}
	}
	return nil
}

// Ack durably records a client's explicit acknowledgement.
func (g *Gateway) Ack(identity events.Identity, seq uint64) error {
	if identity == "" {
		return errors.New("gateway: identity required")
	}
	return g.chain.AdvanceWatermark(string(identity), seq)
}

func disconnectErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
