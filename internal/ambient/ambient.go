// Package ambient defines the narrow set of capabilities the relay core
// asks its host environment for (§6's "collaborator interfaces consumed"):
// the current block height, a shutdown flag, and the security
// collaborator's relay-failure bookkeeping. The core never reaches for a
// runtime-registered observer or a global — every public operation that
// needs one of these takes it as an explicit parameter.
package ambient

import "github.com/btcrelay-go/relay/internal/faults"

// Collaborator is the full capability surface consumed by the relay
// orchestrator. Individual components (chainstore, txgate) depend on
// narrower structural subsets of this rather than importing it directly,
// so a Collaborator value satisfies them all without adaptation.
type Collaborator interface {
	// BlockNumber is the ambient framework's own block height, used for
	// the parachain confirmation-depth check (§4.5.1 step 7).
	BlockNumber() uint32

	// IsShutdown gates every public operation: callers must check
	// !IsShutdown() before dispatching and return Shutdown otherwise.
	IsShutdown() bool

	// RecordRelayFailure and ClearRelayFailure track the security
	// collaborator's relay-failure state, set when a fault-flagged block
	// reaches the main chain and cleared once the main chain is flag-free
	// again (§4.3.5 step 10, §4.6).
	RecordRelayFailure(kind faults.Kind)
	ClearRelayFailure()

	// IsParachainErrorSet reports whether the security collaborator
	// already has an outstanding failure of this kind recorded.
	IsParachainErrorSet(kind faults.Kind) bool
}
