package ledgersvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	"github.com/claudeayi/kalyptia-ledger/internal/events"
	"github.com/claudeayi/kalyptia-ledger/internal/gateway"
	"github.com/claudeayi/kalyptia-ledger/internal/runtime"
)

// ErrPayloadTooLarge rejects appends over the configured payload limit.
var ErrPayloadTooLarge = errors.New("ledger: payload too large")

// ErrInvalidFilter rejects a subscription whose CEL expression fails to
// compile.
var ErrInvalidFilter = errors.New("ledger: invalid filter expression")

// Service is the transport-facing facade over the chain and the delivery
// fabric. Handlers and the CLI talk to this, never to the chain directly.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// New returns a Service using the runtime's logger.
func New(rt *runtime.Runtime) *Service {
	return &Service{rt: rt, logger: rt.Logger().With(logpkg.Component("ledger"))}
}

// Append validates and commits one event, returning the sealed entry.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*chain.Entry, error) {
	if max := s.rt.Config().Ledger.PayloadMaxBytes; max > 0 && len(req.Payload) > max {
		s.rt.Metrics().ObserveAppendFailure(req.Type)
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(req.Payload), max)
	}
	start := time.Now()
	e, err := s.rt.Chain().Append(ctx, req.Type, req.Payload, chain.AppendOptions{
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.rt.Metrics().ObserveAppendFailure(req.Type)
		return nil, err
	}
	s.rt.Metrics().ObserveAppend(e.Type, time.Since(start))
	return e, nil
}

// Get returns the committed entry at seq.
func (s *Service) Get(seq uint64) (*chain.Entry, error) {
	return s.rt.Chain().Get(seq)
}

// Range returns a window of committed entries in sequence order.
func (s *Service) Range(req RangeRequest) ([]*chain.Entry, error) {
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.rt.Chain().Range(req.From, limit)
}

// Tail returns the last committed entry, or chain.ErrNotFound while empty.
func (s *Service) Tail() (*chain.Entry, error) {
	return s.rt.Chain().Tail()
}

// Verify re-checks the chain, or just the requested window, and reports
// the outcome.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	res := VerifyResult{}
	tail, tailOK := s.rt.Chain().TailSeq()
	if tailOK {
		res.Entries = tail + 1
	}
	var err error
	if req.From != nil || req.To != nil {
		from := uint64(0)
		if req.From != nil {
			from = *req.From
		}
		to := tail
		if req.To != nil {
			to = *req.To
		}
		res.Entries = 0
		if to >= from {
			res.Entries = to - from + 1
		}
		err = s.rt.Chain().VerifyRange(ctx, from, to)
	} else {
		err = s.rt.Chain().VerifyChain(ctx)
	}
	var ce *chain.CorruptionError
	switch {
	case err == nil:
		res.OK = true
	case errors.As(err, &ce):
		bad := ce.Seq
		res.BadSeq = &bad
		res.Reason = ce.Reason
	default:
		return res, err
	}
	s.rt.Metrics().ObserveVerify(res.OK)
	if !res.OK {
		s.logger.Error("ledger.verify_failed", logpkg.Uint64("seq", *res.BadSeq), logpkg.Str("reason", res.Reason))
	}
	return res, nil
}

// Subscribe runs one backfill-then-live session against the sender until the
// context ends or the session is torn down.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest, sender gateway.Sender) error {
	filter, err := newCELFilter(req.Filter)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	opts := gateway.Options{
		From:          req.From,
		QueueDepth:    s.rt.Config().Deliver.QueueDepth,
		BackfillBatch: s.rt.Config().Deliver.BackfillBatch,
		AutoAck:       req.AutoAck,
	}
	if filter.enabled {
		opts.Filter = filter.Eval
	}
	s.rt.Metrics().SessionStarted()
	defer s.rt.Metrics().SessionEnded()
	return s.rt.Gateway().Serve(ctx, req.Identity, req.Admin, sender, opts)
}

// Ack records an explicit acknowledgement for identity through seq.
func (s *Service) Ack(identity events.Identity, seq uint64) error {
	return s.rt.Gateway().Ack(identity, seq)
}

// Watermark reports the durable watermark for identity.
func (s *Service) Watermark(identity events.Identity) (seq uint64, ok bool, err error) {
	return s.rt.Chain().Watermark(string(identity))
}

// Types lists the declared event taxonomy.
func (s *Service) Types() []events.Type { return events.Declared() }
