// Package node wires the relay core, the P2P transport, and the RPC
// façade behind a single daemon event loop.
package node

import (
	"github.com/btcrelay-go/relay/internal/chainstore"
	"github.com/btcrelay-go/relay/internal/p2p"
)

// Event types for the orchestrator event loop.

// HeaderSubmitEvent signals that an RPC caller submitted a header for
// validation and storage.
type HeaderSubmitEvent struct {
	RawHeader []byte
	Relayer   string
}

// P2PHeaderEvent signals that a header was received from the P2P network
// and needs to be fed through the same validation path as an RPC submission.
type P2PHeaderEvent struct {
	Header *p2p.HeaderMsg
}

// PeerSyncEvent signals that a new peer connected. The loop logs it; it
// does not start a locator-based sync exchange with that peer.
type PeerSyncEvent struct {
	PeerAddr string
}

// ChainEvent signals a chain-store state change (new main-chain header, a
// fork extended, a reorg, a fault flag raised or cleared — §4 throughout).
type ChainEvent struct {
	Event chainstore.Event
}
