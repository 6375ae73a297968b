// Package broadcast turns committed ledger entries into real-time fan-out.
//
// A single dispatch loop tails the chain in commit order, resolves each
// entry's audience through the event taxonomy, and offers the entry to every
// matching live subscription's bounded queue. Queues never block the loop:
// overflow disconnects that one session, and its durable watermark turns the
// reconnect into a lossless backfill.
package broadcast
