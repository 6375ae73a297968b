package chain

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Range returns up to limit committed entries starting at from, in sequence
// order. limit <= 0 means no limit. Reading past the tail returns what exists;
// an empty result is not an error.
func (s *Store) Range(from uint64, limit int) ([]*Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyEntry(from),
		UpperBound: entryUpper,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: range iterator: %w", err)
	}
	defer iter.Close()

	var out []*Entry
	for valid := iter.First(); valid; valid = iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		e, err := decodeEntry(seqFromEntryKey(iter.Key()), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("chain: range scan: %w", err)
	}
	return out, nil
}

// Tail returns the last committed entry, or ErrNotFound on an empty chain.
func (s *Store) Tail() (*Entry, error) {
	seq, ok := s.TailSeq()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(seq)
}
