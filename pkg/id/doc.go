// Package id provides 128-bit, lexicographically sortable identifiers used
// for ledger entry IDs.
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence],
// so byte-wise comparison preserves chronological order and IDs generated
// within the same millisecond remain strictly increasing.
//
// The Generator guarantees per-process monotonicity: a regressing system
// clock pins to the last seen millisecond, and a sequence overflow within one
// millisecond waits for the next millisecond.
package id
