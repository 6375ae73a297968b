// Package gateway runs the backfill-then-live protocol for reconnecting
// clients. A session resumes from its identity's durable watermark, replays
// everything it missed in sequence order, then switches to live fan-out with
// no gap and no duplicate across the handover. Delivery is at-least-once:
// the watermark only advances after a send succeeds.
package gateway
