package chain

import (
	"encoding/binary"
	"hash/crc32"
)

// Stored record encoding: body | crc32c(body). The CRC catches torn or
// bit-rotted storage before hash verification even runs; hash-chain checks
// then cover deliberate tampering.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(body []byte) []byte {
	out := make([]byte, 0, len(body)+4)
	out = append(out, body...)
	crc := crc32.Update(0, castagnoli, body)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

func decodeRecord(b []byte) ([]byte, bool) {
	if len(b) < 4 {
		return nil, false
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Update(0, castagnoli, body) != expect {
		return nil, false
	}
	return append([]byte(nil), body...), true
}
