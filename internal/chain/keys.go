package chain

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - ledger/m            (tail metadata: next sequence, last hash, last ts)
// - ledger/e/{seq_be8}  (entries)
// - ledger/w/{identity} (per-identity delivery watermarks)
// - ledger/i/{key}      (append idempotency index)
var (
	metaKey    = []byte("ledger/m")
	entryPfx   = []byte("ledger/e/")
	watermPfx  = []byte("ledger/w/")
	idemPfx    = []byte("ledger/i/")
	entryUpper = []byte("ledger/e0") // '0' > '/': exclusive upper bound for entry scans
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyEntry builds the entry key with a big-endian sequence for ordering.
func keyEntry(seq uint64) []byte {
	k := make([]byte, 0, len(entryPfx)+8)
	k = append(k, entryPfx...)
	return appendBE8(k, seq)
}

// seqFromEntryKey recovers the sequence from an entry key.
func seqFromEntryKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(k)-8:])
}

// keyWatermark builds the durable watermark key for an identity.
func keyWatermark(identity string) []byte {
	k := make([]byte, 0, len(watermPfx)+len(identity))
	k = append(k, watermPfx...)
	return append(k, identity...)
}

// keyIdempotency builds the idempotency index key.
func keyIdempotency(key string) []byte {
	k := make([]byte, 0, len(idemPfx)+len(key))
	k = append(k, idemPfx...)
	return append(k, key...)
}
