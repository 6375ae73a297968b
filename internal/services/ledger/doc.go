// Package ledgersvc exposes the ledger's operations to transports: append,
// reads, verification, and backfill-then-live subscriptions with optional
// CEL filtering. It enforces request-level limits the chain itself does not
// know about, like the payload size cap.
package ledgersvc
