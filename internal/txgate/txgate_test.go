package txgate

import (
	"encoding/hex"
	"testing"

	"go.uber.org/zap"

	"github.com/btcrelay-go/relay/internal/chainstore"
	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
)

type fakeAmbient struct{ height uint32 }

func (f fakeAmbient) BlockNumber() uint32 { return f.height }

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
	if err != nil || len(b) != 32 {
		t.Fatalf("bad fixture hex %q: %v", s, err)
	}
	var h [32]byte
	copy(h[:], b)
	return h
}

// buildProofRootFixture reuses the four-leaf tree from the merkle package's
// own tests: AB = dsha256(A||B), CD is supplied directly, root = dsha256(AB||CD).
func buildProofRootFixture(t *testing.T) (root [32]byte, txA [32]byte, hashes [][32]byte, flags []byte) {
	txA = hashOf(0xAA)
	txB := hashOf(0xBB)
	cd := mustHex32(t, "f91baa5f2e2b59bba23970385ccbb4929ef41b2fe48dd86457aedfb3d2ae5e01")
	root = mustHex32(t, "efe8b66f519d513b0fb54df9bfea1da6d31525e04b67a7e85ff5e97090fb02fd")
	return root, txA, [][32]byte{txA, txB, cd}, []byte{0x07}
}

func setupStore(t *testing.T, cfg chainstore.Config, merkleRoot [32]byte) (*chainstore.Store, *codec.Header) {
	t.Helper()
	header := &codec.Header{
		Version:    1,
		PrevHash:   [32]byte{},
		MerkleRoot: merkleRoot,
		Timestamp:  1700000000,
		Bits:       0x207fffff,
		Nonce:      0,
	}
	raw := header.Serialize()
	parsed, err := codec.ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	s := chainstore.New(zap.NewNop(), cfg)
	genesis := &chainstore.StoredHeader{
		Header: *parsed,
		Hash:   parsed.Hash(),
		Height: 100,
	}
	if err := s.Initialize(genesis, 100); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s, parsed
}

func TestVerifyTransactionInclusionSucceeds(t *testing.T) {
	root, txA, hashes, flags := buildProofRootFixture(t)
	cfg := chainstore.Config{StableBitcoinConfirmations: 1, StableParachainConfirmations: 0}
	s, header := setupStore(t, cfg, root)
	g := New(s)

	proof := &codec.MerkleProof{
		BlockHeader:  header,
		Transactions: 4,
		Hashes:       hashes,
		Flags:        flags,
	}
	rawProof := proof.Serialize()

	err := g.VerifyTransactionInclusion(fakeAmbient{height: 100}, txA, rawProof, nil)
	if err != nil {
		t.Fatalf("VerifyTransactionInclusion: %v", err)
	}
}

func TestVerifyTransactionInclusionWrongTxid(t *testing.T) {
	root, _, hashes, flags := buildProofRootFixture(t)
	cfg := chainstore.Config{StableBitcoinConfirmations: 1, StableParachainConfirmations: 0}
	s, header := setupStore(t, cfg, root)
	g := New(s)

	proof := &codec.MerkleProof{
		BlockHeader:  header,
		Transactions: 4,
		Hashes:       hashes,
		Flags:        flags,
	}
	rawProof := proof.Serialize()

	err := g.VerifyTransactionInclusion(fakeAmbient{height: 100}, hashOf(0xEE), rawProof, nil)
	if !faults.Is(err, faults.InvalidTxid) {
		t.Fatalf("expected InvalidTxid, got %v", err)
	}
}

func TestVerifyTransactionInclusionInsufficientConfirmations(t *testing.T) {
	root, txA, hashes, flags := buildProofRootFixture(t)
	cfg := chainstore.Config{StableBitcoinConfirmations: 6, StableParachainConfirmations: 0}
	s, header := setupStore(t, cfg, root)
	g := New(s)

	proof := &codec.MerkleProof{
		BlockHeader:  header,
		Transactions: 4,
		Hashes:       hashes,
		Flags:        flags,
	}
	rawProof := proof.Serialize()

	err := g.VerifyTransactionInclusion(fakeAmbient{height: 100}, txA, rawProof, nil)
	if !faults.Is(err, faults.BitcoinConfirmations) {
		t.Fatalf("expected BitcoinConfirmations, got %v", err)
	}
}

func TestVerifyTransactionInclusionDisabledShortCircuits(t *testing.T) {
	root, txA, hashes, flags := buildProofRootFixture(t)
	cfg := chainstore.Config{DisableInclusionCheck: true}
	s, header := setupStore(t, cfg, root)
	g := New(s)

	proof := &codec.MerkleProof{
		BlockHeader:  header,
		Transactions: 4,
		Hashes:       hashes,
		Flags:        flags,
	}
	rawProof := proof.Serialize()

	// Even a garbage txHash succeeds because the check is fully disabled.
	if err := g.VerifyTransactionInclusion(fakeAmbient{height: 0}, hashOf(0xFF), rawProof, nil); err != nil {
		t.Fatalf("expected success with inclusion checks disabled, got %v", err)
	}
}

func TestValidateTransactionSinglePayment(t *testing.T) {
	recipientHash := make([]byte, 20)
	for i := range recipientHash {
		recipientHash[i] = 0x33
	}
	tx := &codec.Transaction{
		Inputs: []codec.Input{
			{Witness: [][]byte{{0x01}, bytes20Pubkey()}},
		},
		Outputs: []codec.Output{
			{IsAddress: true, Kind: codec.KindP2PKH, Hash: recipientHash, Value: 50000},
		},
	}

	kind, hash, value, err := ValidateTransaction(tx, RecipientAddress{Kind: codec.KindP2PKH, Hash: recipientHash}, nil, nil, true)
	if err != nil {
		t.Fatalf("ValidateTransaction: %v", err)
	}
	if kind != codec.KindP2WPKH {
		t.Fatalf("expected origin kind P2WPKH, got %v", kind)
	}
	if len(hash) != 20 {
		t.Fatalf("expected 20-byte origin hash, got %d bytes", len(hash))
	}
	if value != 50000 {
		t.Fatalf("expected matched value 50000, got %d", value)
	}
}

func TestValidateTransactionNoMatchIsInvalidPayment(t *testing.T) {
	recipientHash := make([]byte, 20)
	other := make([]byte, 20)
	other[0] = 0x01
	tx := &codec.Transaction{
		Inputs:  []codec.Input{{Witness: [][]byte{{0x01}, bytes20Pubkey()}}},
		Outputs: []codec.Output{{IsAddress: true, Kind: codec.KindP2PKH, Hash: other, Value: 1}},
	}
	_, _, _, err := ValidateTransaction(tx, RecipientAddress{Kind: codec.KindP2PKH, Hash: recipientHash}, nil, nil, true)
	if !faults.Is(err, faults.InvalidPayment) {
		t.Fatalf("expected InvalidPayment, got %v", err)
	}
}

func TestValidateTransactionBelowMinimumValue(t *testing.T) {
	recipientHash := make([]byte, 20)
	tx := &codec.Transaction{
		Inputs:  []codec.Input{{Witness: [][]byte{{0x01}, bytes20Pubkey()}}},
		Outputs: []codec.Output{{IsAddress: true, Kind: codec.KindP2PKH, Hash: recipientHash, Value: 10}},
	}
	min := uint64(100)
	_, _, _, err := ValidateTransaction(tx, RecipientAddress{Kind: codec.KindP2PKH, Hash: recipientHash}, &min, nil, true)
	if !faults.Is(err, faults.InsufficientValue) {
		t.Fatalf("expected InsufficientValue, got %v", err)
	}
}

func TestValidateTransactionMissingOpReturn(t *testing.T) {
	recipientHash := make([]byte, 20)
	tx := &codec.Transaction{
		Inputs: []codec.Input{{Witness: [][]byte{{0x01}, bytes20Pubkey()}}},
		Outputs: []codec.Output{
			{IsAddress: true, Kind: codec.KindP2PKH, Hash: recipientHash, Value: 100},
		},
	}
	ident := hashOf(0x42)
	_, _, _, err := ValidateTransaction(tx, RecipientAddress{Kind: codec.KindP2PKH, Hash: recipientHash}, nil, &ident, false)
	if !faults.Is(err, faults.InvalidPayment) {
		t.Fatalf("expected InvalidPayment (output count below the 2-output OP_RETURN minimum), got %v", err)
	}
}

func bytes20Pubkey() []byte {
	b := make([]byte, 33)
	b[0] = 0x02
	return b
}
