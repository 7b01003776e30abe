package codec

import (
	"bytes"
	"testing"

	"github.com/btcrelay-go/relay/testutil"
)

func sampleHeader(t *testing.T) *Header {
	t.Helper()
	raw := testutil.MustDecodeHex(t, sampleHeaderHex)
	h, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	return h
}

func TestMerkleProofRoundTrip(t *testing.T) {
	proof := &MerkleProof{
		BlockHeader:  sampleHeader(t),
		Transactions: 3,
		Hashes: [][32]byte{
			testutil.HashFromHex("11" + "00"),
			testutil.HashFromHex("22" + "00"),
		},
		Flags: []byte{0x05},
	}

	raw := proof.Serialize()
	parsed, err := ParseMerkleProof(raw)
	if err != nil {
		t.Fatalf("ParseMerkleProof: %v", err)
	}

	if parsed.Transactions != proof.Transactions {
		t.Fatalf("transaction count mismatch: got %d want %d", parsed.Transactions, proof.Transactions)
	}
	if len(parsed.Hashes) != len(proof.Hashes) {
		t.Fatalf("hash count mismatch")
	}
	for i := range proof.Hashes {
		if parsed.Hashes[i] != proof.Hashes[i] {
			t.Fatalf("hash %d mismatch", i)
		}
	}
	if !bytes.Equal(parsed.Flags, proof.Flags) {
		t.Fatalf("flags mismatch")
	}
	if parsed.BlockHeader.Hash() != proof.BlockHeader.Hash() {
		t.Fatalf("header mismatch")
	}
}

func TestParseMerkleProofTooShort(t *testing.T) {
	if _, err := ParseMerkleProof(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for undersized proof")
	}
}
