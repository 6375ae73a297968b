package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pebblestore "github.com/claudeayi/kalyptia-ledger/internal/storage/pebble"
	"github.com/claudeayi/kalyptia-ledger/pkg/id"
	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/events"
)

// ErrNotFound reports a sequence outside the committed chain.
var ErrNotFound = errors.New("chain: entry not found")

// Store is the append-only, hash-linked ledger over Pebble. All appends
// serialize through one logical lock; sequence and hash are never computed by
// callers. Entries become visible only after their batch commits, so
// concurrent readers never observe a torn entry.
type Store struct {
	db     *pebblestore.DB
	logger logpkg.Logger
	idgen  *id.Generator

	mu       sync.Mutex
	nextSeq  uint64
	lastHash string
	lastTsMs int64
	notifyCh chan struct{}
}

// tailMeta is the persisted tail state, updated atomically with each entry.
type tailMeta struct {
	NextSeq  uint64 `json:"nextSeq"`
	LastHash string `json:"lastHash"`
	LastTsMs int64  `json:"lastTsMs"`
}

// Open initializes a Store and restores the tail from metadata (if any).
func Open(db *pebblestore.DB, logger logpkg.Logger) (*Store, error) {
	s := &Store{
		db:       db,
		logger:   logger.With(logpkg.Component("chain")),
		idgen:    id.NewGenerator(),
		lastHash: GenesisHash,
		notifyCh: make(chan struct{}),
	}
	raw, err := db.Get(metaKey)
	if err == nil && len(raw) > 0 {
		var m tailMeta
		if uerr := json.Unmarshal(raw, &m); uerr != nil {
			return nil, fmt.Errorf("chain: corrupt tail metadata: %w", uerr)
		}
		s.nextSeq = m.NextSeq
		s.lastHash = m.LastHash
		s.lastTsMs = m.LastTsMs
	} else if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return nil, fmt.Errorf("chain: load tail metadata: %w", err)
	}
	return s, nil
}

// AppendOptions carries optional append behavior.
type AppendOptions struct {
	// IdempotencyKey dedupes retried producer calls: a second append with the
	// same key returns the originally committed entry.
	IdempotencyKey string
}

// Append records one event. It validates the type against the declared
// taxonomy, canonicalizes the payload, assigns the next sequence and the
// chain hash under the append lock, and persists entry + tail metadata in one
// fsynced batch before returning. Durability precedes visibility: waiters are
// only woken after the commit succeeds.
func (s *Store) Append(ctx context.Context, t events.Type, payload json.RawMessage, opts AppendOptions) (*Entry, error) {
	if !events.IsDeclared(t) {
		return nil, fmt.Errorf("%w: %s", events.ErrUnknownType, t)
	}
	canon, err := canonicalPayload(payload)
	if err != nil {
		return nil, err
	}

	t0 := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.IdempotencyKey != "" {
		if raw, gerr := s.db.Get(keyIdempotency(opts.IdempotencyKey)); gerr == nil && len(raw) >= 8 {
			return s.getEntry(seqFromEntryKey(raw))
		}
	}

	tsMs := time.Now().UnixMilli()
	if tsMs < s.lastTsMs {
		tsMs = s.lastTsMs
	}

	entry := &Entry{
		ID:          s.idgen.Next().String(),
		Sequence:    s.nextSeq,
		TimestampMs: tsMs,
		Type:        t,
		Payload:     canon,
		PrevHash:    s.lastHash,
	}
	entry.Hash = computeHash(entry.PrevHash, canon, tsMs, t)

	rec, err := encodeEntry(entry)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(tailMeta{NextSeq: entry.Sequence + 1, LastHash: entry.Hash, LastTsMs: tsMs})
	if err != nil {
		return nil, fmt.Errorf("chain: encode tail metadata: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyEntry(entry.Sequence), rec, nil); err != nil {
		return nil, fmt.Errorf("chain: stage entry: %w", err)
	}
	if err := b.Set(metaKey, meta, nil); err != nil {
		return nil, fmt.Errorf("chain: stage tail metadata: %w", err)
	}
	if opts.IdempotencyKey != "" {
		if err := b.Set(keyIdempotency(opts.IdempotencyKey), keyEntry(entry.Sequence), nil); err != nil {
			return nil, fmt.Errorf("chain: stage idempotency index: %w", err)
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		// No partial commit: in-memory tail is untouched, the caller retries
		// the whole event.
		return nil, fmt.Errorf("chain: append commit: %w", err)
	}

	s.nextSeq = entry.Sequence + 1
	s.lastHash = entry.Hash
	s.lastTsMs = tsMs

	// wake tail followers
	close(s.notifyCh)
	s.notifyCh = make(chan struct{})

	s.logger.Debug("ledger.append",
		logpkg.Str("type", string(t)),
		logpkg.Uint64("seq", entry.Sequence),
		logpkg.Int("bytes", len(canon)),
		logpkg.Int64("dur_ms", time.Since(t0).Milliseconds()),
	)
	return entry, nil
}

func (s *Store) getEntry(seq uint64) (*Entry, error) {
	raw, err := s.db.Get(keyEntry(seq))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chain: get %d: %w", seq, err)
	}
	return decodeEntry(seq, raw)
}

// Get returns the committed entry at seq, or ErrNotFound.
func (s *Store) Get(seq uint64) (*Entry, error) {
	return s.getEntry(seq)
}

// TailSeq returns the highest committed sequence. ok is false while the chain
// is empty.
func (s *Store) TailSeq() (seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextSeq == 0 {
		return 0, false
	}
	return s.nextSeq - 1, true
}

// TailHash returns the hash of the last committed entry (GenesisHash while
// empty). Used by verification to detect a forged tail.
func (s *Store) TailHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}
