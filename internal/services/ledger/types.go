package ledgersvc

import (
	"encoding/json"

	"github.com/claudeayi/kalyptia-ledger/internal/events"
)

// AppendRequest is one producer call.
type AppendRequest struct {
	Type           events.Type     `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// RangeRequest reads a window of committed entries.
type RangeRequest struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

// SubscribeRequest opens one reconciliation session.
type SubscribeRequest struct {
	Identity events.Identity
	Admin    bool
	// From overrides the watermark resume point when non-nil.
	From *uint64
	// Filter is an optional CEL expression over the entry.
	Filter string
	// AutoAck advances the watermark after each delivered entry.
	AutoAck bool
}

// VerifyRequest narrows verification to an inclusive sequence window. Nil
// bounds fall back to the chain's ends.
type VerifyRequest struct {
	From *uint64
	To   *uint64
}

// VerifyResult reports a chain verification outcome.
type VerifyResult struct {
	OK      bool    `json:"ok"`
	Entries uint64  `json:"entries"`
	BadSeq  *uint64 `json:"badSeq,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}
