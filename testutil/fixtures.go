package testutil

import (
	"testing"

	"github.com/btcrelay-go/relay/internal/codec"
)

// EasyBits is the regtest-style compact difficulty target, for tests that
// don't exercise the difficulty-retarget path. It is permissive but not
// unconditional: roughly half of all header hashes meet it.
const EasyBits uint32 = 0x207fffff

// BuildRawHeader serializes a minimal, parseable 80-byte block header for
// tests. MerkleRoot is fixed to a nonzero single byte since most header
// tests don't care about its contents.
func BuildRawHeader(t *testing.T, prevHash [32]byte, timestamp uint32, bits, nonce uint32) []byte {
	t.Helper()
	h := &codec.Header{
		Version:    1,
		PrevHash:   prevHash,
		MerkleRoot: [32]byte{0x01},
		Timestamp:  timestamp,
		Bits:       bits,
		Nonce:      nonce,
	}
	return h.Serialize()
}

// SampleHeaderChain builds a linear chain of count raw headers, each
// pointing at the previous one's hash, starting from a zero prev-hash
// genesis. Timestamps advance by 600 seconds (Bitcoin's target block
// interval) per header.
func SampleHeaderChain(t *testing.T, count int, startTimestamp uint32) [][]byte {
	t.Helper()
	headers := make([][]byte, count)
	var prevHash [32]byte
	timestamp := startTimestamp

	for i := 0; i < count; i++ {
		raw := BuildRawHeader(t, prevHash, timestamp, EasyBits, uint32(i))
		parsed, err := codec.ParseHeader(raw)
		if err != nil {
			t.Fatalf("building sample chain: %v", err)
		}
		headers[i] = raw
		prevHash = parsed.Hash()
		timestamp += 600
	}

	return headers
}

// SampleMerkleProof builds a minimal gettxoutproof-style proof wrapping a
// single transaction hash: a one-header Merkle block where the leaf is
// its own root, no siblings needed.
func SampleMerkleProof(header []byte, txHash [32]byte) []byte {
	buf := make([]byte, 0, len(header)+4+1+32+1+1)
	buf = append(buf, header...)
	buf = append(buf, 0x01, 0x00, 0x00, 0x00) // transaction count
	buf = append(buf, 0x01)                   // hash count
	buf = append(buf, txHash[:]...)
	buf = append(buf, 0x01) // flag byte count (varint)
	buf = append(buf, 0x01) // flags: the single leaf is the matched tx and the root
	return buf
}
