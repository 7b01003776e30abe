// Package txgate implements the two caller-facing checks the relay core
// performs on a transaction before anything external is allowed to act on
// it: that it is actually included in a confirmed main-chain block
// (§4.5.1), and that its payload matches an expected recipient/identifier
// (§4.5.2).
package txgate

import (
	"bytes"

	"github.com/btcrelay-go/relay/internal/chainstore"
	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/internal/merkle"
	"github.com/btcrelay-go/relay/pkg/util"
)

// Ambient is the narrow collaborator capability the inclusion check
// consults for the parachain confirmation depth (§4.5.1 step 7).
type Ambient interface {
	BlockNumber() uint32
}

// RecipientAddress names the expected standard payment destination a
// validated transaction must pay.
type RecipientAddress struct {
	Kind codec.AddressKind
	Hash []byte
}

// Gate wires the chain store and Merkle verifier behind the inclusion and
// payload-validation procedures.
type Gate struct {
	store *chainstore.Store
}

// New builds a Gate over the given store.
func New(store *chainstore.Store) *Gate {
	return &Gate{store: store}
}

// VerifyTransactionInclusion runs the 8-step inclusion procedure (§4.5.1).
// overrideConfirmations, when non-nil, replaces stable_bitcoin_confirmations
// for this call only.
func (g *Gate) VerifyTransactionInclusion(
	ambient Ambient,
	txHash [32]byte,
	rawProof []byte,
	overrideConfirmations *uint32,
) error {
	cfg := g.store.Config()

	// Step 1.
	if cfg.DisableInclusionCheck {
		return nil
	}

	// Step 2.
	if ongoing, err := g.store.HasOngoingFork(); err != nil {
		return err
	} else if ongoing {
		return faults.New(faults.OngoingFork, "a competing fork is still within the confirmation margin")
	}

	// Step 3.
	proof, err := codec.ParseMerkleProof(rawProof)
	if err != nil {
		return err
	}
	headerHash := proof.BlockHeader.Hash()
	stored, ok := g.store.HeaderByHash(headerHash)
	if !ok {
		return faults.New(faults.BlockNotFound, "no stored header for proof's block hash")
	}

	// Step 4.
	if stored.ChainID != chainstore.MainChainID {
		return faults.New(faults.InvalidChainID, "proof's block is not on the main chain")
	}

	// Step 5.
	if err := g.store.FlagGate(stored.Height); err != nil {
		return err
	}

	// Step 6.
	req := cfg.StableBitcoinConfirmations
	if overrideConfirmations != nil {
		req = *overrideConfirmations
	}
	need, ok := util.CheckedAddU32(stored.Height, req)
	if !ok {
		return faults.New(faults.ArithmeticOverflow, "confirmation depth arithmetic overflowed")
	}
	need, ok = util.CheckedSubU32(need, 1)
	if !ok {
		return faults.New(faults.ArithmeticUnderflow, "confirmation depth arithmetic underflowed")
	}
	if g.store.BestHeight() < need {
		return faults.New(faults.BitcoinConfirmations, "block has not reached the required confirmation depth")
	}

	// Step 7.
	parachainNeed, ok := util.CheckedAddU32(stored.SubmissionHeight, cfg.StableParachainConfirmations)
	if !ok {
		return faults.New(faults.ArithmeticOverflow, "confirmation depth arithmetic overflowed")
	}
	if ambient.BlockNumber() < parachainNeed {
		return faults.New(faults.ParachainConfirmations, "submission has not reached the required parachain depth")
	}

	// Step 8.
	result, err := merkle.Verify(proof)
	if err != nil {
		return err
	}
	if !containsMatch(result.Matches, txHash) {
		return faults.New(faults.InvalidTxid, "transaction hash is not among the proof's matched leaves")
	}
	if result.Root != stored.Header.MerkleRoot {
		return faults.New(faults.InvalidMerkleProof, "extracted root does not match the stored header")
	}
	return nil
}

func containsMatch(matches []merkle.Match, txHash [32]byte) bool {
	for _, m := range matches {
		if m.TxHash == txHash {
			return true
		}
	}
	return false
}

// ValidateTransaction runs the payload-validation procedure (§4.5.2) against
// an already-parsed transaction. minValue and opReturnID are optional.
func ValidateTransaction(
	tx *codec.Transaction,
	recipient RecipientAddress,
	minValue *uint64,
	opReturnID *[32]byte,
	disableOpReturnCheck bool,
) (originKind codec.AddressKind, originHash []byte, matchedValue uint64, err error) {
	requireOpReturn := opReturnID != nil && !disableOpReturnCheck

	acceptedMin := 1
	if requireOpReturn {
		acceptedMin = 2
	}
	if len(tx.Outputs) < acceptedMin || len(tx.Outputs) > 32 {
		return codec.KindUnknown, nil, 0, faults.New(faults.InvalidPayment, "output count out of range")
	}

	scanLimit := len(tx.Outputs)
	if scanLimit > 3 {
		scanLimit = 3
	}

	var matches int
	var matchedOutput codec.Output
	var opReturnOK bool
	for i := 0; i < scanLimit; i++ {
		out := tx.Outputs[i]
		if out.IsAddress && out.Kind == recipient.Kind && bytes.Equal(out.Hash, recipient.Hash) {
			matches++
			matchedOutput = out
		}
		if requireOpReturn && !out.IsAddress && len(out.OpReturn) == 32 && bytes.Equal(out.OpReturn, opReturnID[:]) {
			opReturnOK = true
		}
	}

	if matches != 1 {
		return codec.KindUnknown, nil, 0, faults.New(faults.InvalidPayment, "expected exactly one matching recipient output")
	}
	if requireOpReturn && !opReturnOK {
		return codec.KindUnknown, nil, 0, faults.New(faults.InvalidOpReturn, "no output carries the expected identifier")
	}
	if minValue != nil && uint64(matchedOutput.Value) < *minValue {
		return codec.KindUnknown, nil, 0, faults.New(faults.InsufficientValue, "matched output value below the minimum")
	}

	if len(tx.Inputs) == 0 {
		return codec.KindUnknown, nil, 0, faults.New(faults.MalformedTransaction, "transaction has no inputs")
	}
	kind, hash, oerr := tx.Inputs[0].OriginAddress()
	if oerr != nil {
		return codec.KindUnknown, nil, 0, faults.New(faults.MalformedTransaction, "could not extract origin address: "+oerr.Error())
	}

	return kind, hash, uint64(matchedOutput.Value), nil
}
