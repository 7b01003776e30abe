// Package relay wires the codec, header validator, chain store, Merkle
// verifier, and transaction gate behind the six public operations named in
// spec.md §6. It is the only place that knows about all of them; every
// other package only depends on the ones it actually needs.
package relay

import (
	"github.com/btcrelay-go/relay/internal/ambient"
	"github.com/btcrelay-go/relay/internal/chainstore"
	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/internal/headerval"
	"github.com/btcrelay-go/relay/internal/store"
	"github.com/btcrelay-go/relay/internal/txgate"
	"github.com/btcrelay-go/relay/pkg/util"

	"go.uber.org/zap"
)

// Relay is the orchestrator holding the chain store, header validator, and
// transaction gate for one instance of the relay core.
type Relay struct {
	log       *zap.Logger
	store     *chainstore.Store
	validator *headerval.Validator
	gate      *txgate.Gate
}

// New builds a Relay over a fresh, uninitialized chain store.
func New(log *zap.Logger, cfg chainstore.Config) *Relay {
	store := chainstore.New(log, cfg)
	lookup := func(chainID uint32, height int64) (*codec.Header, bool) {
		stored, ok := store.HeaderAtChainHeight(chainID, height)
		if !ok {
			return nil, false
		}
		return &stored.Header, true
	}
	validator := headerval.New(headerval.Params{DisableDifficultyCheck: cfg.DisableDifficultyCheck}, lookup)
	return &Relay{
		log:       log,
		store:     store,
		validator: validator,
		gate:      txgate.New(store),
	}
}

// Store exposes the underlying chain store for status queries (best
// height/hash, event draining) that don't belong to one of the six
// public operations.
func (r *Relay) Store() *chainstore.Store { return r.store }

// LoadFrom replaces the current chain-store state with whatever was last
// durably saved, if anything was. Intended for startup, before any public
// operation has been dispatched.
func (r *Relay) LoadFrom(bs *store.BoltStore) error {
	state, ok, err := bs.Load()
	if err != nil || !ok {
		return err
	}
	return r.store.Import(state)
}

// SaveTo durably persists the current chain-store state. The daemon's
// event loop calls this on a fixed interval; public operations do not
// save on their own, so the on-disk snapshot can lag the store by up to
// that interval.
func (r *Relay) SaveTo(bs *store.BoltStore) error {
	return bs.Save(r.store.Export())
}

func requireRunning(collab ambient.Collaborator) error {
	if collab.IsShutdown() {
		return faults.New(faults.Shutdown, "relay is shut down")
	}
	return nil
}

// Initialize accepts the genesis header for chain 0 (§4.3.1). May only
// succeed once.
func (r *Relay) Initialize(collab ambient.Collaborator, relayer string, rawHeader []byte, height uint32) error {
	if err := requireRunning(collab); err != nil {
		return err
	}
	parsed, err := codec.ParseHeader(rawHeader)
	if err != nil {
		return err
	}
	stored := &chainstore.StoredHeader{
		Header:           *parsed,
		Hash:             parsed.Hash(),
		Submitter:        relayer,
		SubmissionHeight: collab.BlockNumber(),
	}
	return r.store.Initialize(stored, height)
}

// StoreBlockHeader validates and inserts a new header (§4.2, §4.3.2).
func (r *Relay) StoreBlockHeader(collab ambient.Collaborator, relayer string, rawHeader []byte) error {
	if err := requireRunning(collab); err != nil {
		return err
	}
	candidate, err := codec.ParseHeader(rawHeader)
	if err != nil {
		return err
	}

	prevStored, ok := r.store.HeaderByHash(candidate.PrevHash)
	if !ok {
		return faults.New(faults.PrevBlock, "parent header not found")
	}

	if err := r.validator.Verify(candidate, &prevStored.Header, prevStored.ChainID, int64(prevStored.Height)); err != nil {
		return err
	}

	stored := &chainstore.StoredHeader{
		Header:           *candidate,
		Hash:             candidate.Hash(),
		Submitter:        relayer,
		SubmissionHeight: collab.BlockNumber(),
	}
	return r.store.Insert(stored, prevStored, collab)
}

// VerifyTransactionInclusion checks that a transaction hash is included in
// a confirmed main-chain block (§4.5.1).
func (r *Relay) VerifyTransactionInclusion(collab ambient.Collaborator, txHash [32]byte, rawProof []byte, overrideConfirmations *uint32) error {
	if err := requireRunning(collab); err != nil {
		return err
	}
	return r.gate.VerifyTransactionInclusion(collab, txHash, rawProof, overrideConfirmations)
}

// ValidateTransaction checks a transaction's payload against an expected
// recipient/value/identifier without requiring inclusion proof (§4.5.2).
func (r *Relay) ValidateTransaction(
	collab ambient.Collaborator,
	rawTx []byte,
	recipient txgate.RecipientAddress,
	minValue *uint64,
	opReturnID *[32]byte,
) (codec.AddressKind, []byte, uint64, error) {
	if err := requireRunning(collab); err != nil {
		return codec.KindUnknown, nil, 0, err
	}
	tx, err := codec.ParseTransaction(rawTx)
	if err != nil {
		return codec.KindUnknown, nil, 0, err
	}
	return txgate.ValidateTransaction(tx, recipient, minValue, opReturnID, r.store.Config().DisableOpReturnCheck)
}

// VerifyAndValidateTransaction combines inclusion and payload validation
// in one call (§6): the transaction must both be included in a confirmed
// block and pay the expected recipient.
func (r *Relay) VerifyAndValidateTransaction(
	collab ambient.Collaborator,
	rawProof []byte,
	overrideConfirmations *uint32,
	rawTx []byte,
	minValue *uint64,
	recipient txgate.RecipientAddress,
	opReturnID *[32]byte,
) (codec.AddressKind, []byte, uint64, error) {
	if err := requireRunning(collab); err != nil {
		return codec.KindUnknown, nil, 0, err
	}

	txHash := util.DoubleSHA256(rawTx)
	if err := r.gate.VerifyTransactionInclusion(collab, txHash, rawProof, overrideConfirmations); err != nil {
		return codec.KindUnknown, nil, 0, err
	}

	tx, err := codec.ParseTransaction(rawTx)
	if err != nil {
		return codec.KindUnknown, nil, 0, err
	}
	return txgate.ValidateTransaction(tx, recipient, minValue, opReturnID, r.store.Config().DisableOpReturnCheck)
}

// InsertBlockError annotates a block with a fault kind (§4.6). Root-only
// at the dispatch layer; the core itself doesn't gate on caller identity,
// and doesn't record a relay failure itself — that's the security
// collaborator's own decision, made from its own observations, independent
// of this annotation.
func (r *Relay) InsertBlockError(collab ambient.Collaborator, blockHash [32]byte, kind faults.Kind) error {
	if err := requireRunning(collab); err != nil {
		return err
	}
	return r.store.FlagBlockError(blockHash, kind)
}

// RemoveBlockError clears a fault annotation (§4.6).
func (r *Relay) RemoveBlockError(collab ambient.Collaborator, blockHash [32]byte, kind faults.Kind) error {
	if err := requireRunning(collab); err != nil {
		return err
	}
	return r.store.ClearBlockError(blockHash, kind, collab)
}
