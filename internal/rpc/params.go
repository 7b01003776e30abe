package rpc

import (
	"encoding/hex"

	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/internal/txgate"
)

type initializeParams struct {
	RawHeaderHex string `json:"raw_header"`
	Relayer      string `json:"relayer"`
	Height       uint32 `json:"height"`
}

type storeBlockHeaderParams struct {
	RawHeaderHex string `json:"raw_header"`
	Relayer      string `json:"relayer"`
}

type verifyInclusionParams struct {
	TxHashHex             string  `json:"tx_hash"`
	RawProofHex           string  `json:"raw_proof"`
	OverrideConfirmations *uint32 `json:"override_confirmations,omitempty"`
}

type recipientParams struct {
	Kind string `json:"kind"`
	Hash string `json:"hash"`
}

func (r recipientParams) toRecipient() (txgate.RecipientAddress, error) {
	kind, err := parseAddressKind(r.Kind)
	if err != nil {
		return txgate.RecipientAddress{}, err
	}
	hash, err := hex.DecodeString(r.Hash)
	if err != nil {
		return txgate.RecipientAddress{}, err
	}
	return txgate.RecipientAddress{Kind: kind, Hash: hash}, nil
}

type validateTransactionParams struct {
	RawTxHex      string          `json:"raw_tx"`
	Recipient     recipientParams `json:"recipient"`
	MinValue      *uint64         `json:"min_value,omitempty"`
	OpReturnIDHex *string         `json:"op_return_id,omitempty"`
}

func (p validateTransactionParams) opReturnID() (*[32]byte, error) {
	return decodeOptionalHash32(p.OpReturnIDHex)
}

type verifyAndValidateParams struct {
	RawProofHex           string          `json:"raw_proof"`
	OverrideConfirmations *uint32         `json:"override_confirmations,omitempty"`
	RawTxHex              string          `json:"raw_tx"`
	MinValue              *uint64         `json:"min_value,omitempty"`
	Recipient             recipientParams `json:"recipient"`
	OpReturnIDHex         *string         `json:"op_return_id,omitempty"`
}

func (p verifyAndValidateParams) opReturnID() (*[32]byte, error) {
	return decodeOptionalHash32(p.OpReturnIDHex)
}

type blockErrorParams struct {
	BlockHashHex string `json:"block_hash"`
	Kind         string `json:"kind"`
}

func decodeOptionalHash32(s *string) (*[32]byte, error) {
	if s == nil {
		return nil, nil
	}
	h, err := decodeHash32(*s)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

var addressKindNames = map[codec.AddressKind]string{
	codec.KindUnknown: "unknown",
	codec.KindP2PKH:   "p2pkh",
	codec.KindP2SH:    "p2sh",
	codec.KindP2WPKH:  "p2wpkh",
	codec.KindP2WSH:   "p2wsh",
}

func addressKindName(k codec.AddressKind) string {
	if name, ok := addressKindNames[k]; ok {
		return name
	}
	return "unknown"
}

func parseAddressKind(s string) (codec.AddressKind, error) {
	for k, name := range addressKindNames {
		if name == s {
			return k, nil
		}
	}
	return codec.KindUnknown, faults.New(faults.InvalidBtcAddress, "unrecognized address kind: "+s)
}

// faultKindNames covers the subset of faults.Kind the fault-flag subsystem
// (§4.6) accepts from a caller: NoData and Invalid. Anything else is
// rejected with UnknownErrorcode, the same as the core's own flag/clear
// operations do for an unsupported kind.
var faultKindNames = map[string]faults.Kind{
	"no_data": faults.NoData,
	"invalid": faults.Invalid,
}

func parseFaultKind(s string) (faults.Kind, error) {
	if kind, ok := faultKindNames[s]; ok {
		return kind, nil
	}
	return 0, faults.New(faults.UnknownErrorcode, "unrecognized fault kind: "+s)
}
