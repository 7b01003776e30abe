// Package codec implements byte-exact parsers for raw Bitcoin block
// headers, transactions, and gettxoutproof-style Merkle proofs. Parsing is
// total and pure: no storage, no network I/O, every function either
// produces a value or a precise *faults.Error.
package codec

import (
	"encoding/binary"
	"math/big"

	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/pkg/util"
)

// RawHeaderSize is the fixed wire size of a serialized block header.
const RawHeaderSize = 80

// Header is a parsed Bitcoin block header (§3 BlockHeader).
type Header struct {
	Version    int32
	PrevHash   [32]byte
	MerkleRoot [32]byte
	Timestamp  uint32
	Bits       uint32
	Target     *big.Int
	Nonce      uint32
}

// ParseHeader decodes exactly 80 bytes into a Header. Any other length
// fails with InvalidHeaderSize.
func ParseHeader(raw []byte) (*Header, error) {
	if len(raw) != RawHeaderSize {
		return nil, faults.New(faults.InvalidHeaderSize, "raw header must be 80 bytes")
	}

	h := &Header{
		Version:   int32(binary.LittleEndian.Uint32(raw[0:4])),
		Timestamp: binary.LittleEndian.Uint32(raw[68:72]),
		Bits:      binary.LittleEndian.Uint32(raw[72:76]),
		Nonce:     binary.LittleEndian.Uint32(raw[76:80]),
	}
	copy(h.PrevHash[:], raw[4:36])
	copy(h.MerkleRoot[:], raw[36:68])
	h.Target = util.CompactToTarget(h.Bits)

	return h, nil
}

// Serialize re-encodes a Header to its canonical 80-byte wire form. This is
// the inverse of ParseHeader and the round-trip identity the spec requires.
func (h *Header) Serialize() []byte {
	buf := make([]byte, RawHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// Hash returns the double-SHA256 of the header's 80-byte serialization —
// the block hash, in Bitcoin's native little-endian byte order.
func (h *Header) Hash() [32]byte {
	return util.DoubleSHA256(h.Serialize())
}
