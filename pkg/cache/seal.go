package cache

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Sealed values carry a one-byte version and a CRC-32 of the payload so a
// truncated or overwritten entry is detected on read instead of returned.
const (
	sealVersion   byte = 1
	sealHeaderLen      = 5
)

func seal(value []byte) []byte {
	out := make([]byte, sealHeaderLen+len(value))
	out[0] = sealVersion
	binary.BigEndian.PutUint32(out[1:sealHeaderLen], crc32.ChecksumIEEE(value))
	copy(out[sealHeaderLen:], value)
	return out
}

func unseal(sealed []byte) ([]byte, error) {
	if len(sealed) < sealHeaderLen {
		return nil, fmt.Errorf("%w: short entry (%d bytes)", ErrCorrupt, len(sealed))
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorrupt, sealed[0])
	}
	payload := sealed[sealHeaderLen:]
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(sealed[1:sealHeaderLen]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}
