package chain

import "context"

// WaitForAppend blocks until an entry with sequence >= afterSeq is committed,
// or the context is canceled. Followers that have drained the chain park here
// instead of polling.
func (s *Store) WaitForAppend(ctx context.Context, afterSeq uint64) error {
	for {
		s.mu.Lock()
		if s.nextSeq > afterSeq {
			s.mu.Unlock()
			return nil
		}
		ch := s.notifyCh
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
