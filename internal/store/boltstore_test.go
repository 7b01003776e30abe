package store

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/btcrelay-go/relay/internal/chainstore"
)

func TestBoltStoreSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBoltStore(filepath.Join(dir, "relay.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer bs.Close()

	if _, ok, err := bs.Load(); err != nil || ok {
		t.Fatalf("expected no snapshot in a fresh database, ok=%v err=%v", ok, err)
	}

	state := chainstore.PersistedState{
		Headers:      []chainstore.StoredHeader{{Hash: [32]byte{0x01}, Height: 100}},
		Chains:       []chainstore.ChainDescriptorSnapshot{{ChainID: 0, StartHeight: 100, MaxHeight: 100}},
		Index:        []chainstore.IndexEntry{{ChainID: 0, Height: 100, Hash: [32]byte{0x01}}},
		Queue:        []uint32{0},
		BestHash:     [32]byte{0x01},
		BestHeight:   100,
		StartHeight:  100,
		Initialized:  true,
	}
	if err := bs.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := bs.Load()
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.BestHeight != 100 || got.BestHash != [32]byte{0x01} || !got.Initialized {
		t.Fatalf("unexpected loaded state: %+v", got)
	}
	if len(got.Headers) != 1 || got.Headers[0].Height != 100 {
		t.Fatalf("unexpected headers after reload: %+v", got.Headers)
	}
}

func TestBoltStorePersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.db")

	state := chainstore.PersistedState{
		BestHash:    [32]byte{0x02},
		BestHeight:  200,
		StartHeight: 100,
		Initialized: true,
	}
	{
		bs, err := NewBoltStore(path, zap.NewNop())
		if err != nil {
			t.Fatalf("NewBoltStore (phase 1): %v", err)
		}
		if err := bs.Save(state); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := bs.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	{
		bs, err := NewBoltStore(path, zap.NewNop())
		if err != nil {
			t.Fatalf("NewBoltStore (phase 2): %v", err)
		}
		defer bs.Close()
		got, ok, err := bs.Load()
		if err != nil || !ok {
			t.Fatalf("Load after reopen: ok=%v err=%v", ok, err)
		}
		if got.BestHeight != 200 {
			t.Fatalf("expected state to survive restart, got %+v", got)
		}
	}
}
