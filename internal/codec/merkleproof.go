package codec

import (
	"encoding/binary"

	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/pkg/util"
)

// MerkleProof is a parsed gettxoutproof payload: a block header plus the
// partial Merkle tree needed to prove one transaction's inclusion (§4.4.1).
type MerkleProof struct {
	BlockHeader  *Header
	Transactions uint32
	Hashes       [][32]byte
	Flags        []byte
}

// ParseMerkleProof decodes the wire format produced by Bitcoin Core's
// gettxoutproof RPC: an 80-byte header, a tx count, a varint-prefixed hash
// list, and a varint-prefixed flag bit-vector.
func ParseMerkleProof(raw []byte) (*MerkleProof, error) {
	if len(raw) < RawHeaderSize+4 {
		return nil, faults.New(faults.MalformedMerkleProof, "proof shorter than header+count")
	}

	header, err := ParseHeader(raw[:RawHeaderSize])
	if err != nil {
		return nil, faults.New(faults.MalformedMerkleProof, "embedded header: "+err.Error())
	}

	r := &byteReader{data: raw, pos: RawHeaderSize}
	txCount, err := r.readUint32()
	if err != nil {
		return nil, faults.New(faults.MalformedMerkleProof, "transaction count")
	}

	hashCount, err := r.readVarInt()
	if err != nil {
		return nil, faults.New(faults.MalformedMerkleProof, "hash count")
	}
	hashes := make([][32]byte, hashCount)
	for i := range hashes {
		b, err := r.readBytes(32)
		if err != nil {
			return nil, faults.New(faults.MalformedMerkleProof, "hash list truncated")
		}
		copy(hashes[i][:], b)
	}

	flagBytes, err := r.readVarInt()
	if err != nil {
		return nil, faults.New(faults.MalformedMerkleProof, "flag byte count")
	}
	flags, err := r.readBytes(int(flagBytes))
	if err != nil {
		return nil, faults.New(faults.MalformedMerkleProof, "flag bits truncated")
	}

	return &MerkleProof{
		BlockHeader:  header,
		Transactions: txCount,
		Hashes:       hashes,
		Flags:        append([]byte(nil), flags...),
	}, nil
}

// Serialize re-encodes the proof to its gettxoutproof wire form.
func (p *MerkleProof) Serialize() []byte {
	buf := make([]byte, 0, RawHeaderSize+4+9+len(p.Hashes)*32+9+len(p.Flags))
	buf = append(buf, p.BlockHeader.Serialize()...)

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], p.Transactions)
	buf = append(buf, countBuf[:]...)

	buf = append(buf, util.WriteVarInt(uint64(len(p.Hashes)))...)
	for _, h := range p.Hashes {
		buf = append(buf, h[:]...)
	}

	buf = append(buf, util.WriteVarInt(uint64(len(p.Flags)))...)
	buf = append(buf, p.Flags...)
	return buf
}
