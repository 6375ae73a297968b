package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
)

// ErrQueueOverflow tears down a session whose delivery queue filled up. The
// client reconnects and backfills from its watermark, so nothing is lost.
var ErrQueueOverflow = errors.New("broadcast: delivery queue overflow")

// ErrQueueClosed is returned by Next once the queue is closed and drained.
var ErrQueueClosed = errors.New("broadcast: delivery queue closed")

// Queue is the bounded, per-session delivery buffer between the broadcaster
// and one connection's write pump. Deliver never blocks the dispatch loop: a
// full queue fails fast instead of stalling every other subscriber.
type Queue struct {
	ch   chan *chain.Entry
	done chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 64
	}
	return &Queue{
		ch:   make(chan *chain.Entry, depth),
		done: make(chan struct{}),
	}
}

// Deliver enqueues one entry without blocking. It returns ErrQueueOverflow
// when the buffer is full, or the close reason after Close.
func (q *Queue) Deliver(e *chain.Entry) error {
	q.mu.Lock()
	if q.closed {
		err := q.err
		q.mu.Unlock()
		return err
	}
	q.mu.Unlock()

	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueOverflow
	}
}

// Close marks the queue closed with the given reason. nil means an orderly
// shutdown; Close is idempotent and the first reason wins.
func (q *Queue) Close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if err == nil {
		err = ErrQueueClosed
	}
	q.err = err
	close(q.done)
}

// Err returns the close reason, or nil while the queue is open.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		return nil
	}
	return q.err
}

// Next blocks for the next queued entry. Entries buffered before Close are
// still drained; after that Next returns the close reason.
func (q *Queue) Next(ctx context.Context) (*chain.Entry, error) {
	select {
	case e := <-q.ch:
		return e, nil
	default:
	}
	select {
	case e := <-q.ch:
		return e, nil
	case <-q.done:
		select {
		case e := <-q.ch:
			return e, nil
		default:
			return nil, q.Err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
