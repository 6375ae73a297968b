package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gowebpki/jcs"

	"github.com/claudeayi/kalyptia-ledger/internal/events"
)

// GenesisHash is the previousHash sentinel carried by the sequence-0 entry.
const GenesisHash = "GENESIS"

// Entry is one immutable, hash-linked ledger record. All fields are fixed at
// commit time; Sequence is the sole ordering authority.
type Entry struct {
	ID          string          `json:"id"`
	Sequence    uint64          `json:"sequence"`
	TimestampMs int64           `json:"timestampMs"`
	Type        events.Type     `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	PrevHash    string          `json:"previousHash"`
	Hash        string          `json:"hash"`
}

// canonicalPayload returns the RFC 8785 (JCS) canonical form of a JSON
// payload. Entries store the canonical form so the digest is reproducible
// from stored fields alone.
func canonicalPayload(payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	canon, err := jcs.Transform(payload)
	if err != nil {
		return nil, fmt.Errorf("chain: canonicalize payload: %w", err)
	}
	return canon, nil
}

// computeHash derives the entry digest over
// previousHash || canonical(payload) || timestampMs || eventType.
func computeHash(prevHash string, canonPayload []byte, tsMs int64, t events.Type) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonPayload)
	h.Write([]byte(strconv.FormatInt(tsMs, 10)))
	h.Write([]byte(t))
	return hex.EncodeToString(h.Sum(nil))
}

// recomputeHash rebuilds the digest from an entry's stored fields.
func recomputeHash(e *Entry) string {
	return computeHash(e.PrevHash, e.Payload, e.TimestampMs, e.Type)
}

func encodeEntry(e *Entry) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("chain: encode entry %d: %w", e.Sequence, err)
	}
	return encodeRecord(body), nil
}

func decodeEntry(seq uint64, raw []byte) (*Entry, error) {
	body, ok := decodeRecord(raw)
	if !ok {
		return nil, &CorruptionError{Seq: seq, Reason: "record checksum mismatch"}
	}
	var e Entry
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, &CorruptionError{Seq: seq, Reason: "undecodable entry: " + err.Error()}
	}
	return &e, nil
}
