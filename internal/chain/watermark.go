package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	pebblestore "github.com/claudeayi/kalyptia-ledger/internal/storage/pebble"
)

// Watermark returns the highest sequence recorded as processed for identity.
// ok is false when the identity has never acknowledged anything, which is
// distinct from having acknowledged sequence 0.
func (s *Store) Watermark(identity string) (seq uint64, ok bool, err error) {
	raw, gerr := s.db.Get(keyWatermark(identity))
	if gerr != nil {
		if errors.Is(gerr, pebblestore.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("chain: load watermark %q: %w", identity, gerr)
	}
	if len(raw) != 8 {
		return 0, false, fmt.Errorf("chain: malformed watermark %q", identity)
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

// AdvanceWatermark durably records that identity has processed everything
// through seq. Advancement is monotonic: acknowledging at or below the stored
// watermark is an idempotent no-op, never a regression.
func (s *Store) AdvanceWatermark(identity string, seq uint64) error {
	cur, ok, err := s.Watermark(identity)
	if err != nil {
		return err
	}
	if ok && seq <= cur {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := s.db.Set(keyWatermark(identity), buf[:]); err != nil {
		return fmt.Errorf("chain: advance watermark %q: %w", identity, err)
	}
	return nil
}

// ResumeFrom returns the sequence a reconnecting identity should resume
// delivery at: one past its watermark, or 0 when nothing was ever
// acknowledged.
func (s *Store) ResumeFrom(identity string) (uint64, error) {
	seq, ok, err := s.Watermark(identity)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return seq + 1, nil
}
