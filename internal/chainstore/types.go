// Package chainstore keeps block headers, chain descriptors, a per-chain
// height→hash index, and a priority queue of chains sorted by tip height.
// It owns the fork-insertion and reorganization algorithm (§4.3 of the
// relay design) and is the only mutable shared state in the relay core.
package chainstore

import (
	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
)

// MainChainID is the reserved chain id for the canonical chain. It always
// occupies position 0 of the priority queue.
const MainChainID uint32 = 0

// StoredHeader is a parsed header plus the bookkeeping the store needs:
// which chain currently owns it, and the two heights ("this system's own
// height" vs. Bitcoin height) used by the two confirmation-depth checks.
type StoredHeader struct {
	Header           codec.Header
	Hash             [32]byte
	Height           uint32
	ChainID          uint32
	Submitter        string
	SubmissionHeight uint32
}

// ChainDescriptor describes one chain (main or fork): its height range and
// the fault flags recorded against blocks it currently owns.
type ChainDescriptor struct {
	ChainID     uint32
	StartHeight uint32
	MaxHeight   uint32
	NoData      map[uint32]struct{}
	Invalid     map[uint32]struct{}
}

func newDescriptor(chainID, startHeight, maxHeight uint32) *ChainDescriptor {
	return &ChainDescriptor{
		ChainID:     chainID,
		StartHeight: startHeight,
		MaxHeight:   maxHeight,
		NoData:      make(map[uint32]struct{}),
		Invalid:     make(map[uint32]struct{}),
	}
}

// hasAnyFlags reports whether the descriptor carries any fault annotation.
func (d *ChainDescriptor) hasAnyFlags() bool {
	return len(d.NoData) > 0 || len(d.Invalid) > 0
}

// splitFlagsAt partitions no_data/invalid into the portion below height
// (kept on d) and the portion at or above height (returned for the
// displaced descriptor), per §4.3.5 step 1.
func (d *ChainDescriptor) splitFlagsAt(height uint32) (noDataSuffix, invalidSuffix map[uint32]struct{}) {
	noDataSuffix = make(map[uint32]struct{})
	invalidSuffix = make(map[uint32]struct{})
	for h := range d.NoData {
		if h >= height {
			noDataSuffix[h] = struct{}{}
			delete(d.NoData, h)
		}
	}
	for h := range d.Invalid {
		if h >= height {
			invalidSuffix[h] = struct{}{}
			delete(d.Invalid, h)
		}
	}
	return noDataSuffix, invalidSuffix
}

func unionFlags(into, from map[uint32]struct{}) {
	for h := range from {
		into[h] = struct{}{}
	}
}

// indexKey addresses one entry of the per-chain height→hash index.
type indexKey struct {
	ChainID uint32
	Height  uint32
}

// Config holds the genesis-settable toggles and safety margins (§3, §6).
type Config struct {
	StableBitcoinConfirmations   uint32
	StableParachainConfirmations uint32
	DisableDifficultyCheck       bool
	DisableInclusionCheck        bool
	DisableOpReturnCheck         bool
}

// Ambient is the narrow capability the store calls into for the security
// collaborator's state (§6, §9 — "a narrow capability passed in, not a
// runtime-registered observer").
type Ambient interface {
	BlockNumber() uint32
	ClearRelayFailure()
}

// Event is the closed set of observable state transitions (§6, §8).
type Event struct {
	Kind       EventKind
	BlockHash  [32]byte
	ChainID    uint32
	Height     uint32
	ForkDepth  uint32
	MainHeight uint32
	ForkHeight uint32
	FlagKind   faults.Kind
}

// EventKind enumerates the events the store can emit.
type EventKind int

const (
	EventInitialized EventKind = iota + 1
	EventStoreMainChainHeader
	EventStoreForkHeader
	EventChainReorg
	EventForkAheadOfMainChain
	EventFlagBlockError
	EventClearBlockError
)
