package relay

import (
	"testing"

	"go.uber.org/zap"

	"github.com/btcrelay-go/relay/internal/ambient"
	"github.com/btcrelay-go/relay/internal/chainstore"
	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
)

func buildRawHeader(t *testing.T, prevHash [32]byte, timestamp uint32, bits, nonce uint32) []byte {
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

func TestInitializeThenStoreBlockHeader(t *testing.T) {
	r := New(zap.NewNop(), chainstore.Config{StableBitcoinConfirmations: 1, DisableDifficultyCheck: true})
	collab := ambient.NewMock(0)

	genesisRaw := buildRawHeader(t, [32]byte{}, 1000, 0x207fffff, 0)
	if err := r.Initialize(collab, "alice", genesisRaw, 100); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	genesisHash := mustHash(t, genesisRaw)
	nextRaw := buildRawHeader(t, genesisHash, 1030, 0x207fffff, 0)
	if err := r.StoreBlockHeader(collab, "alice", nextRaw); err != nil {
		t.Fatalf("StoreBlockHeader: %v", err)
	}

	if r.Store().BestHeight() != 101 {
		t.Fatalf("expected best height 101, got %d", r.Store().BestHeight())
	}
}

func mustHash(t *testing.T, raw []byte) [32]byte {
	t.Helper()
	h, err := codec.ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	return h.Hash()
}

func TestStoreBlockHeaderRejectsUnknownParent(t *testing.T) {
	r := New(zap.NewNop(), chainstore.Config{DisableDifficultyCheck: true})
	collab := ambient.NewMock(0)

	genesisRaw := buildRawHeader(t, [32]byte{}, 1000, 0x207fffff, 0)
	if err := r.Initialize(collab, "alice", genesisRaw, 100); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	orphanRaw := buildRawHeader(t, [32]byte{0xde, 0xad}, 1030, 0x207fffff, 0)
	err := r.StoreBlockHeader(collab, "alice", orphanRaw)
	if !faults.Is(err, faults.PrevBlock) {
		t.Fatalf("expected PrevBlock, got %v", err)
	}
}

func TestOperationsGatedOnShutdown(t *testing.T) {
	r := New(zap.NewNop(), chainstore.Config{})
	collab := ambient.NewMock(0)
	collab.Shutdown = true

	genesisRaw := buildRawHeader(t, [32]byte{}, 1000, 0x207fffff, 0)
	err := r.Initialize(collab, "alice", genesisRaw, 100)
	if !faults.Is(err, faults.Shutdown) {
		t.Fatalf("expected Shutdown, got %v", err)
	}
}

func TestInsertAndRemoveBlockError(t *testing.T) {
	r := New(zap.NewNop(), chainstore.Config{})
	collab := ambient.NewMock(0)

	genesisRaw := buildRawHeader(t, [32]byte{}, 1000, 0x207fffff, 0)
	if err := r.Initialize(collab, "alice", genesisRaw, 100); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	genesisHash := mustHash(t, genesisRaw)

	if err := r.InsertBlockError(collab, genesisHash, faults.Invalid); err != nil {
		t.Fatalf("InsertBlockError: %v", err)
	}
	if err := r.Store().FlagGate(100); !faults.Is(err, faults.Invalid) {
		t.Fatalf("expected flag gate to block on Invalid, got %v", err)
	}

	if err := r.RemoveBlockError(collab, genesisHash, faults.Invalid); err != nil {
		t.Fatalf("RemoveBlockError: %v", err)
	}
	if err := r.Store().FlagGate(100); err != nil {
		t.Fatalf("expected flag gate clear after RemoveBlockError, got %v", err)
	}
}
