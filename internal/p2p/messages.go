package p2p

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

const (
	// maxP2PHeaderSize bounds a single wire header: Bitcoin headers are a
	// fixed 80 bytes, but peers are untrusted until parsed.
	maxP2PHeaderSize = 80
	// maxP2PSubmitterLen is the maximum submitter identifier length
	// accepted from P2P peers.
	maxP2PSubmitterLen = 128
)

const (
	// ProtocolVersion is the current P2P protocol version.
	ProtocolVersion = "1.0.0"

	// HeaderTopicName is the GossipSub topic for header propagation.
	HeaderTopicName = "/btcrelay/headers/" + ProtocolVersion

	// SyncProtocolID is the protocol ID for initial sync.
	// Version 2.0.0: locator-based sync (incompatible with v1 batch sync).
	SyncProtocolID = "/btcrelay/sync/2.0.0"
)

// MessageType identifies the type of P2P message.
type MessageType uint8

const (
	MsgTypeHeader       MessageType = 1
	MsgTypeTipAnnounce  MessageType = 2
	MsgTypeHeaderReq    MessageType = 3
	MsgTypeHeaderResp   MessageType = 4
	MsgTypeLocatorReq   MessageType = 5
	MsgTypeLocatorResp  MessageType = 6
)

// HeaderMsg is a raw Bitcoin header broadcast via GossipSub, plus the
// identity of whoever relayed it — the core's StoredHeader.Submitter.
type HeaderMsg struct {
	Type MessageType `cbor:"1,keyasint"`

	RawHeader []byte `cbor:"2,keyasint"` // bit-exact 80-byte wire header
	Submitter string `cbor:"3,keyasint"`
}

// TipAnnounce announces a node's current main-chain tip.
type TipAnnounce struct {
	Type    MessageType `cbor:"1,keyasint"`
	TipHash [32]byte    `cbor:"2,keyasint"`
	Height  int64       `cbor:"3,keyasint"`
}

// HeaderRequest requests a batch of headers by hash.
type HeaderRequest struct {
	Type      MessageType `cbor:"1,keyasint"`
	StartHash [32]byte    `cbor:"2,keyasint"` // walk backwards from here
	Count     int         `cbor:"3,keyasint"`
}

// HeaderResponse contains a batch of headers.
type HeaderResponse struct {
	Type    MessageType `cbor:"1,keyasint"`
	Headers []HeaderMsg `cbor:"2,keyasint"`
}

// Encode serializes a message to CBOR.
func Encode(msg interface{}) ([]byte, error) {
	return cbor.Marshal(msg)
}

// DecodeHeaderMsg decodes a CBOR-encoded HeaderMsg.
func DecodeHeaderMsg(data []byte) (*HeaderMsg, error) {
	var msg HeaderMsg
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if len(msg.RawHeader) > maxP2PHeaderSize {
		return nil, fmt.Errorf("raw header too large: %d bytes", len(msg.RawHeader))
	}
	if len(msg.Submitter) > maxP2PSubmitterLen {
		return nil, fmt.Errorf("submitter identifier too long: %d bytes", len(msg.Submitter))
	}
	return &msg, nil
}

// DecodeTipAnnounce decodes a CBOR-encoded TipAnnounce.
func DecodeTipAnnounce(data []byte) (*TipAnnounce, error) {
	var msg TipAnnounce
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeHeaderRequest decodes a CBOR-encoded HeaderRequest.
func DecodeHeaderRequest(data []byte) (*HeaderRequest, error) {
	var msg HeaderRequest
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeHeaderResponse decodes a CBOR-encoded HeaderResponse.
func DecodeHeaderResponse(data []byte) (*HeaderResponse, error) {
	var msg HeaderResponse
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// HeaderLocatorReq sends exponentially-spaced hashes from the client's
// chain tip, the same locator scheme Bitcoin Core itself uses for
// getheaders.
type HeaderLocatorReq struct {
	Type     MessageType `cbor:"1,keyasint"`
	Locators [][32]byte  `cbor:"2,keyasint"` // tip, tip-1, tip-2, tip-4, tip-8, ..., genesis
	MaxCount int         `cbor:"3,keyasint"` // max headers to return
}

// HeaderLocatorResp returns headers from the fork point forward.
type HeaderLocatorResp struct {
	Type    MessageType `cbor:"1,keyasint"`
	Headers []HeaderMsg `cbor:"2,keyasint"` // oldest-first (forward order)
	More    bool        `cbor:"3,keyasint"` // true if more headers available
}

// DecodeHeaderLocatorReq decodes a CBOR-encoded HeaderLocatorReq.
func DecodeHeaderLocatorReq(data []byte) (*HeaderLocatorReq, error) {
	var msg HeaderLocatorReq
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeHeaderLocatorResp decodes a CBOR-encoded HeaderLocatorResp.
func DecodeHeaderLocatorResp(data []byte) (*HeaderLocatorResp, error) {
	var msg HeaderLocatorResp
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BigIntToBytes converts a big.Int to bytes for CBOR encoding (used for
// target/difficulty fields exchanged out-of-band from the header bytes).
func BigIntToBytes(n *big.Int) []byte {
	if n == nil {
		return nil
	}
	return n.Bytes()
}

// BytesToBigInt converts bytes back to a big.Int.
func BytesToBigInt(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(b)
}
