package rpc

import (
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/btcrelay-go/relay/internal/ambient"
	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/internal/relay"
	"github.com/btcrelay-go/relay/internal/txgate"
)

// Method names, one per public operation (§6) plus a read-only status query.
const (
	MethodInitialize                    = "initialize"
	MethodStoreBlockHeader               = "store_block_header"
	MethodVerifyTransactionInclusion     = "verify_transaction_inclusion"
	MethodValidateTransaction            = "validate_transaction"
	MethodVerifyAndValidateTransaction   = "verify_and_validate_transaction"
	MethodInsertBlockError               = "insert_block_error"
	MethodRemoveBlockError                = "remove_block_error"
	MethodStatus                         = "status"
)

// Dispatcher routes JSON-RPC requests to the relay core's public
// operations. It serializes every call behind one mutex: the core assumes
// a single-threaded, cooperatively-scheduled caller (§5), and the ambient
// framework — here, this dispatcher — is responsible for providing that.
type Dispatcher struct {
	mu     sync.Mutex
	relay  *relay.Relay
	collab ambient.Collaborator
}

// NewDispatcher builds a Dispatcher over a relay and its collaborator.
func NewDispatcher(r *relay.Relay, collab ambient.Collaborator) *Dispatcher {
	return &Dispatcher{relay: r, collab: collab}
}

// Dispatch runs one request to completion and builds its response. It never
// panics on malformed input — JSON or hex decode failures become an
// RPCError of kind "Internal" carrying the decoder's message rather than
// crashing the connection.
func (d *Dispatcher) Dispatch(req *Request) *Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.call(req.Method, req.Params)
	if err != nil {
		return &Response{ID: req.ID, Error: toRPCError(err)}
	}
	return &Response{ID: req.ID, Result: result}
}

// WithRelay runs fn with the same mutex Dispatch itself holds. Any other
// caller that needs to read or mutate the relay core — the daemon's P2P
// event loop, chiefly — must go through this rather than holding its own
// reference, or the single-threaded-caller assumption (§5) breaks the
// moment a gossiped header and an RPC call land at the same instant.
func (d *Dispatcher) WithRelay(fn func(r *relay.Relay, collab ambient.Collaborator)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.relay, d.collab)
}

func (d *Dispatcher) call(method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case MethodInitialize:
		var p initializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(p.RawHeaderHex)
		if err != nil {
			return nil, err
		}
		if err := d.relay.Initialize(d.collab, p.Relayer, raw, p.Height); err != nil {
			return nil, err
		}
		return okResult, nil

	case MethodStoreBlockHeader:
		var p storeBlockHeaderParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(p.RawHeaderHex)
		if err != nil {
			return nil, err
		}
		if err := d.relay.StoreBlockHeader(d.collab, p.Relayer, raw); err != nil {
			return nil, err
		}
		return okResult, nil

	case MethodVerifyTransactionInclusion:
		var p verifyInclusionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		txHash, err := decodeHash32(p.TxHashHex)
		if err != nil {
			return nil, err
		}
		proof, err := hex.DecodeString(p.RawProofHex)
		if err != nil {
			return nil, err
		}
		if err := d.relay.VerifyTransactionInclusion(d.collab, txHash, proof, p.OverrideConfirmations); err != nil {
			return nil, err
		}
		return okResult, nil

	case MethodValidateTransaction:
		var p validateTransactionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		rawTx, err := hex.DecodeString(p.RawTxHex)
		if err != nil {
			return nil, err
		}
		recipient, err := p.Recipient.toRecipient()
		if err != nil {
			return nil, err
		}
		opReturnID, err := p.opReturnID()
		if err != nil {
			return nil, err
		}
		kind, hash, value, err := d.relay.ValidateTransaction(d.collab, rawTx, recipient, p.MinValue, opReturnID)
		if err != nil {
			return nil, err
		}
		return validationResult(kind, hash, value), nil

	case MethodVerifyAndValidateTransaction:
		var p verifyAndValidateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		proof, err := hex.DecodeString(p.RawProofHex)
		if err != nil {
			return nil, err
		}
		rawTx, err := hex.DecodeString(p.RawTxHex)
		if err != nil {
			return nil, err
		}
		recipient, err := p.Recipient.toRecipient()
		if err != nil {
			return nil, err
		}
		opReturnID, err := p.opReturnID()
		if err != nil {
			return nil, err
		}
		kind, hash, value, err := d.relay.VerifyAndValidateTransaction(
			d.collab, proof, p.OverrideConfirmations, rawTx, p.MinValue, recipient, opReturnID,
		)
		if err != nil {
			return nil, err
		}
		return validationResult(kind, hash, value), nil

	case MethodInsertBlockError:
		var p blockErrorParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		blockHash, err := decodeHash32(p.BlockHashHex)
		if err != nil {
			return nil, err
		}
		kind, err := parseFaultKind(p.Kind)
		if err != nil {
			return nil, err
		}
		if err := d.relay.InsertBlockError(d.collab, blockHash, kind); err != nil {
			return nil, err
		}
		return okResult, nil

	case MethodRemoveBlockError:
		var p blockErrorParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		blockHash, err := decodeHash32(p.BlockHashHex)
		if err != nil {
			return nil, err
		}
		kind, err := parseFaultKind(p.Kind)
		if err != nil {
			return nil, err
		}
		if err := d.relay.RemoveBlockError(d.collab, blockHash, kind); err != nil {
			return nil, err
		}
		return okResult, nil

	case MethodStatus:
		store := d.relay.Store()
		return statusResult{
			BestHash:   hex.EncodeToString(reverse32(store.BestHash())[:]),
			BestHeight: store.BestHeight(),
		}, nil

	default:
		return nil, faults.New(faults.UnknownErrorcode, "unknown method: "+method)
	}
}

var okResult = map[string]bool{"ok": true}

type statusResult struct {
	BestHash   string `json:"best_hash"`
	BestHeight uint32 `json:"best_height"`
}

func validationResult(kind codec.AddressKind, hash []byte, value uint64) interface{} {
	return struct {
		OriginKind string `json:"origin_kind"`
		OriginHash string `json:"origin_hash"`
		Value      uint64 `json:"value"`
	}{
		OriginKind: addressKindName(kind),
		OriginHash: hex.EncodeToString(hash),
		Value:      value,
	}
}

func toRPCError(err error) *RPCError {
	if fe, ok := err.(*faults.Error); ok {
		return &RPCError{Kind: fe.Kind.String(), Message: fe.Error()}
	}
	return &RPCError{Kind: "Internal", Message: err.Error()}
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, faults.New(faults.InvalidBtcHash, "hash must be 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}

// reverse32 flips byte order: stored hashes are internal little-endian
// double-SHA256 digests, but the conventional display form reported by
// status is big-endian. Hashes passed in request params (decodeHash32)
// are taken in internal byte order, unreversed.
func reverse32(h [32]byte) [32]byte {
	var out [32]byte
	for i := range h {
		out[i] = h[31-i]
	}
	return out
}
