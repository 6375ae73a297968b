// Package httpserver exposes the ledger over HTTP: JSON endpoints for
// append, reads, verification, and acknowledgements, plus two streaming
// transports for the backfill-then-live protocol, server-sent events and
// WebSocket. The Prometheus registry is served on /metrics.
package httpserver
