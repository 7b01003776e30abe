// Package headerval implements the stateless acceptance checks a block
// header must pass before it may be stored: proof-of-work, prev-hash
// linkage, and the difficulty retarget rule (§4.2).
package headerval

import (
	"math/big"

	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/pkg/util"
)

// TargetTimespan is the number of seconds a 2016-block retarget window is
// supposed to span under Bitcoin's consensus rules (two weeks).
const TargetTimespan = 14 * 24 * 60 * 60

// RetargetInterval is the number of blocks between difficulty adjustments.
const RetargetInterval = 2016

// PrevBlockLookup resolves a chain id and block height to the stored header
// at that position, used to find the retarget anchor. The anchor must be
// looked up on the same chain as the header being retargeted against — a
// fork can cross a 2016-block boundary before it ever catches up to main
// (§4.2.1).
type PrevBlockLookup func(chainID uint32, height int64) (*codec.Header, bool)

// Params configures the validator's toggles, mirroring the collaborator's
// disable-difficulty-check switch (§2 Genesis.disableDifficultyCheck).
type Params struct {
	DisableDifficultyCheck bool
}

// Validator checks a candidate header against its claimed predecessor. It
// holds no mutable state of its own; all chain data is supplied by the
// caller or fetched through Lookup.
type Validator struct {
	params Params
	lookup PrevBlockLookup
}

// New builds a Validator. lookup is used only when a retarget boundary is
// crossed, to find the window-opening header.
func New(params Params, lookup PrevBlockLookup) *Validator {
	return &Validator{params: params, lookup: lookup}
}

// Verify checks that candidate legitimately extends prev at prevHeight+1 on
// prevChainID: its PrevHash must equal prev's hash, its PoW must meet its
// claimed target, and — unless DisableDifficultyCheck is set — that claimed
// target must match the retarget-adjusted target for this height (§4.2.1,
// §4.2.2). prevChainID identifies which chain prev itself sits on, so a
// retarget boundary crossed mid-fork resolves its anchor there rather than
// on main.
func (v *Validator) Verify(candidate, prev *codec.Header, prevChainID uint32, prevHeight int64) error {
	prevHash := prev.Hash()
	if candidate.PrevHash != prevHash {
		return faults.New(faults.PrevBlock, "candidate does not extend the given predecessor")
	}

	hash := candidate.Hash()
	if !util.HashLessThanTarget(hash, candidate.Target) {
		return faults.New(faults.LowDiff, "header hash does not meet its claimed target")
	}

	if v.params.DisableDifficultyCheck {
		return nil
	}

	expected, err := v.expectedTarget(candidate, prev, prevChainID, prevHeight)
	if err != nil {
		return err
	}
	if util.TargetToCompact(expected) != candidate.Bits {
		return faults.New(faults.DiffTargetHeader, "claimed difficulty target does not match the retarget rule")
	}
	return nil
}

// expectedTarget returns the target a header at prevHeight+1 must carry.
// Outside a retarget boundary this is simply prev's target; at a boundary
// it is prev's target scaled by the ratio of actual to expected retarget
// window duration, clamped to [1/4, 4x] as Bitcoin's consensus rules
// require (not the unclamped scaling some SPV reimplementations mistakenly
// carry over from the original).
func (v *Validator) expectedTarget(candidate, prev *codec.Header, prevChainID uint32, prevHeight int64) (*big.Int, error) {
	height := prevHeight + 1
	if height < RetargetInterval || height%RetargetInterval != 0 {
		return prev.Target, nil
	}

	anchorHeight := height - RetargetInterval
	anchor, ok := v.lookup(prevChainID, anchorHeight)
	if !ok {
		return nil, faults.New(faults.MissingBlockHeight, "retarget anchor header not found")
	}

	actual := int64(prev.Timestamp) - int64(anchor.Timestamp)
	actual = util.ClampInt64(actual, TargetTimespan/4, TargetTimespan*4)

	return util.MulDivTarget(prev.Target, actual, TargetTimespan, util.MaxTarget), nil
}
