// Package chain implements the durable hash-linked event ledger.
//
// Entries are appended under a single writer lock, assigned a gapless
// sequence starting at 0, and linked through previousHash so any mutation of
// committed history is detectable by VerifyChain. Entry, tail metadata, and
// the optional idempotency index are committed in one fsynced Pebble batch:
// an entry is either fully durable or absent, and it only becomes visible to
// readers and followers after the commit returns.
//
// The package also persists per-identity delivery watermarks, which back the
// reconnect contract of the streaming layer.
package chain
