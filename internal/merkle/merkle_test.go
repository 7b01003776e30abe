package merkle

import (
	"encoding/hex"
	"testing"

	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
)

func hashOf(b byte) [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = b
	}
	return h
}

func mustHex32(t *testing.T, s string) [32]byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	if len(b) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(b))
	}
	var h [32]byte
	copy(h[:], b)
	return h
}

// Four leaves (A,B,C,D) where only A is of interest. Values independently
// computed: AB = dsha256(A||B), CD = dsha256(C||D), root = dsha256(AB||CD).
func TestVerifyFourLeavesSingleMatch(t *testing.T) {
	txA := hashOf(0xAA)
	txB := hashOf(0xBB)
	cd := mustHex32(t, "f91baa5f2e2b59bba23970385ccbb4929ef41b2fe48dd86457aedfb3d2ae5e01")
	wantRoot := mustHex32(t, "efe8b66f519d513b0fb54df9bfea1da6d31525e04b67a7e85ff5e97090fb02fd")

	proof := &codec.MerkleProof{
		Transactions: 4,
		Hashes:       [][32]byte{txA, txB, cd},
		Flags:        []byte{0x07},
	}

	result, err := Verify(proof)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Root != wantRoot {
		t.Fatalf("root mismatch: got %x want %x", result.Root, wantRoot)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected exactly one match, got %d", len(result.Matches))
	}
	if result.Matches[0].Position != 0 || result.Matches[0].TxHash != txA {
		t.Fatalf("unexpected match: %+v", result.Matches[0])
	}
}

func TestVerifyRejectsDuplicateSiblingHash(t *testing.T) {
	same := hashOf(0x11)
	proof := &codec.MerkleProof{
		Transactions: 2,
		Hashes:       [][32]byte{same, same},
		Flags:        []byte{0x07},
	}
	_, err := Verify(proof)
	if !faults.Is(err, faults.MalformedMerkleProof) {
		t.Fatalf("expected MalformedMerkleProof for duplicate sibling, got %v", err)
	}
}

func TestVerifyRejectsShortFlagList(t *testing.T) {
	proof := &codec.MerkleProof{
		Transactions: 4,
		Hashes:       [][32]byte{hashOf(0xAA)},
		Flags:        []byte{},
	}
	_, err := Verify(proof)
	if !faults.Is(err, faults.MalformedMerkleProof) {
		t.Fatalf("expected MalformedMerkleProof for empty flags, got %v", err)
	}
}

func TestVerifyRejectsLeftoverHashes(t *testing.T) {
	// A single-transaction tree (height 0) consumes exactly one hash; a
	// second, unused hash must be rejected as malformed.
	proof := &codec.MerkleProof{
		Transactions: 1,
		Hashes:       [][32]byte{hashOf(0xAA), hashOf(0xBB)},
		Flags:        []byte{0x01},
	}
	_, err := Verify(proof)
	if !faults.Is(err, faults.MalformedMerkleProof) {
		t.Fatalf("expected MalformedMerkleProof for leftover hashes, got %v", err)
	}
}
