package codec

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // Bitcoin HASH160 requires RIPEMD160.

	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/pkg/util"
)

// Script opcodes needed for output/input pattern matching (§4.1).
const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqualVerify = 0x88
	opEqual       = 0x87
	opCheckSig    = 0xac
	opReturn      = 0x6a
	opPushData1   = 0x4c
	opPushData2   = 0x4d
	opPushData4   = 0x4e
	op0           = 0x00
)

// AddressKind identifies the recognized standard output/input script shapes.
type AddressKind int

const (
	KindUnknown AddressKind = iota
	KindP2PKH
	KindP2SH
	KindP2WPKH
	KindP2WSH
)

// Output is a decoded transaction output: either a payment to a recognized
// address, or an OP_RETURN carrying an opaque payload.
type Output struct {
	Value     int64
	IsAddress bool
	Kind      AddressKind
	Hash      []byte // 20 bytes for P2PKH/P2SH/P2WPKH, 32 bytes for P2WSH
	OpReturn  []byte // set iff !IsAddress
}

// Input is parsed only far enough to recover its origin address, the
// refund target a payer's coins would have come from.
type Input struct {
	PrevTxHash [32]byte
	PrevIndex  uint32
	Sequence   uint32
	Script     []byte
	Witness    [][]byte
}

// Transaction is a parsed Bitcoin transaction (legacy or SegWit).
type Transaction struct {
	Version  int32
	Inputs   []Input
	Outputs  []Output
	LockTime uint32
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) remaining() int { return len(r.data) - r.pos }

func (r *byteReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, faults.New(faults.EndOfFile, "unexpected end of transaction data")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) readUint8() (byte, error) {
	b, err := r.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) readUint32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) readUint64() (uint64, error) {
	b, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *byteReader) readVarInt() (uint64, error) {
	n, read, err := util.ReadVarInt(r.data[r.pos:])
	if err != nil {
		return 0, faults.New(faults.MalformedTransaction, err.Error())
	}
	r.pos += read
	return n, nil
}

// ParseTransaction decodes a raw Bitcoin transaction, handling the optional
// SegWit marker/flag (§4.1).
func ParseTransaction(raw []byte) (*Transaction, error) {
	r := &byteReader{data: raw}

	version, err := r.readUint32()
	if err != nil {
		return nil, faults.New(faults.MalformedTransaction, "version: "+err.Error())
	}

	segwit := false
	save := r.pos
	marker, err := r.readUint8()
	if err == nil {
		flag, err2 := r.readUint8()
		if err2 == nil && marker == 0x00 && flag != 0x00 {
			segwit = true
		} else {
			r.pos = save
		}
	} else {
		r.pos = save
	}

	inCount, err := r.readVarInt()
	if err != nil {
		return nil, faults.New(faults.MalformedTransaction, "input count: "+err.Error())
	}

	tx := &Transaction{Version: int32(version)}
	tx.Inputs = make([]Input, inCount)
	for i := range tx.Inputs {
		prevHash, err := r.readBytes(32)
		if err != nil {
			return nil, faults.New(faults.MalformedTransaction, "input prev hash")
		}
		var in Input
		copy(in.PrevTxHash[:], prevHash)
		in.PrevIndex, err = r.readUint32()
		if err != nil {
			return nil, faults.New(faults.MalformedTransaction, "input prev index")
		}
		scriptLen, err := r.readVarInt()
		if err != nil {
			return nil, faults.New(faults.MalformedTransaction, "input script length")
		}
		in.Script, err = r.readBytes(int(scriptLen))
		if err != nil {
			return nil, faults.New(faults.MalformedTransaction, "input script")
		}
		in.Sequence, err = r.readUint32()
		if err != nil {
			return nil, faults.New(faults.MalformedTransaction, "input sequence")
		}
		tx.Inputs[i] = in
	}

	outCount, err := r.readVarInt()
	if err != nil {
		return nil, faults.New(faults.MalformedTransaction, "output count")
	}
	tx.Outputs = make([]Output, outCount)
	for i := range tx.Outputs {
		value, err := r.readUint64()
		if err != nil {
			return nil, faults.New(faults.MalformedTransaction, "output value")
		}
		scriptLen, err := r.readVarInt()
		if err != nil {
			return nil, faults.New(faults.MalformedTransaction, "output script length")
		}
		script, err := r.readBytes(int(scriptLen))
		if err != nil {
			return nil, faults.New(faults.MalformedTransaction, "output script")
		}
		out, err := parseOutputScript(script)
		if err != nil {
			return nil, err
		}
		out.Value = int64(value)
		tx.Outputs[i] = out
	}

	if segwit {
		for i := range tx.Inputs {
			itemCount, err := r.readVarInt()
			if err != nil {
				return nil, faults.New(faults.MalformedTransaction, "witness item count")
			}
			items := make([][]byte, itemCount)
			for j := range items {
				itemLen, err := r.readVarInt()
				if err != nil {
					return nil, faults.New(faults.MalformedTransaction, "witness item length")
				}
				item, err := r.readBytes(int(itemLen))
				if err != nil {
					return nil, faults.New(faults.MalformedTransaction, "witness item")
				}
				items[j] = item
			}
			tx.Inputs[i].Witness = items
		}
	}

	tx.LockTime, err = r.readUint32()
	if err != nil {
		return nil, faults.New(faults.MalformedTransaction, "locktime")
	}

	return tx, nil
}

// parseOutputScript pattern-matches a single output script (§4.1).
func parseOutputScript(script []byte) (Output, error) {
	switch {
	case isP2PKH(script):
		return Output{IsAddress: true, Kind: KindP2PKH, Hash: append([]byte(nil), script[3:23]...)}, nil
	case isP2SH(script):
		return Output{IsAddress: true, Kind: KindP2SH, Hash: append([]byte(nil), script[2:22]...)}, nil
	case isWitnessV0(script, 20):
		return Output{IsAddress: true, Kind: KindP2WPKH, Hash: append([]byte(nil), script[2:22]...)}, nil
	case isWitnessV0(script, 32):
		return Output{IsAddress: true, Kind: KindP2WSH, Hash: append([]byte(nil), script[2:34]...)}, nil
	case len(script) >= 1 && script[0] == opReturn:
		payload, err := extractOpReturnPayload(script)
		if err != nil {
			return Output{}, err
		}
		return Output{IsAddress: false, OpReturn: payload}, nil
	default:
		return Output{}, faults.New(faults.UnsupportedOutputFormat, "unrecognized output script")
	}
}

func isP2PKH(s []byte) bool {
	return len(s) == 25 && s[0] == opDup && s[1] == opHash160 && s[2] == 0x14 &&
		s[23] == opEqualVerify && s[24] == opCheckSig
}

func isP2SH(s []byte) bool {
	return len(s) == 23 && s[0] == opHash160 && s[1] == 0x14 && s[22] == opEqual
}

func isWitnessV0(s []byte, pushLen int) bool {
	return len(s) == 2+pushLen && s[0] == op0 && int(s[1]) == pushLen
}

// extractOpReturnPayload handles direct pushes (<= 0x4b) and the
// OP_PUSHDATA1/2/4 prefixed forms used for larger payloads.
func extractOpReturnPayload(script []byte) ([]byte, error) {
	if len(script) < 2 {
		return nil, faults.New(faults.MalformedOpReturnOutput, "missing push opcode")
	}
	op := script[1]
	switch {
	case op <= 0x4b:
		if len(script) != 2+int(op) {
			return nil, faults.New(faults.MalformedOpReturnOutput, "push length mismatch")
		}
		return append([]byte(nil), script[2:]...), nil
	case op == opPushData1:
		if len(script) < 3 {
			return nil, faults.New(faults.MalformedOpReturnOutput, "truncated PUSHDATA1")
		}
		n := int(script[2])
		if len(script) != 3+n {
			return nil, faults.New(faults.MalformedOpReturnOutput, "PUSHDATA1 length mismatch")
		}
		return append([]byte(nil), script[3:]...), nil
	case op == opPushData2:
		if len(script) < 4 {
			return nil, faults.New(faults.MalformedOpReturnOutput, "truncated PUSHDATA2")
		}
		n := int(binary.LittleEndian.Uint16(script[2:4]))
		if len(script) != 4+n {
			return nil, faults.New(faults.MalformedOpReturnOutput, "PUSHDATA2 length mismatch")
		}
		return append([]byte(nil), script[4:]...), nil
	case op == opPushData4:
		if len(script) < 6 {
			return nil, faults.New(faults.MalformedOpReturnOutput, "truncated PUSHDATA4")
		}
		n := int(binary.LittleEndian.Uint32(script[2:6]))
		if len(script) != 6+n {
			return nil, faults.New(faults.MalformedOpReturnOutput, "PUSHDATA4 length mismatch")
		}
		return append([]byte(nil), script[6:]...), nil
	default:
		return nil, faults.New(faults.MalformedOpReturnOutput, "unsupported push opcode")
	}
}

// OriginAddress extracts the "origin address" of an input in the same
// kind/hash scheme as outputs, for refund-target discovery (§4.1, §4.5.2).
// Legacy P2PKH/P2SH inputs are recovered from the final scriptSig push
// (pubkey or redeem script); SegWit P2WPKH/P2WSH inputs are recovered from
// the witness stack.
func (in *Input) OriginAddress() (AddressKind, []byte, error) {
	if len(in.Witness) == 2 {
		// <sig> <pubkey> — P2WPKH.
		return KindP2WPKH, hash160(in.Witness[1]), nil
	}
	if len(in.Witness) >= 1 {
		// [...] <witnessScript> — P2WSH.
		sum := sha256Sum(in.Witness[len(in.Witness)-1])
		return KindP2WSH, sum[:], nil
	}

	pushes, err := scriptPushes(in.Script)
	if err != nil || len(pushes) == 0 {
		return KindUnknown, nil, faults.New(faults.UnsupportedInputFormat, "cannot extract origin address")
	}

	last := pushes[len(pushes)-1]
	if len(pushes) == 1 {
		// <sig> alone doesn't identify an address scheme.
		return KindUnknown, nil, faults.New(faults.UnsupportedInputFormat, "insufficient scriptSig pushes")
	}
	if len(last) == 20 || len(last) == 33 || len(last) == 65 {
		// Most likely a pubkey spending a P2PKH output.
		return KindP2PKH, hash160(last), nil
	}
	// Otherwise treat the final push as a redeem script (P2SH).
	return KindP2SH, hash160(last), nil
}

// scriptPushes walks a scriptSig's data pushes (it never contains anything
// else in standard transactions).
func scriptPushes(script []byte) ([][]byte, error) {
	var pushes [][]byte
	i := 0
	for i < len(script) {
		op := script[i]
		i++
		switch {
		case op >= 1 && op <= 0x4b:
			if i+int(op) > len(script) {
				return nil, faults.New(faults.UnsupportedInputFormat, "truncated push")
			}
			pushes = append(pushes, script[i:i+int(op)])
			i += int(op)
		case op == opPushData1:
			if i+1 > len(script) {
				return nil, faults.New(faults.UnsupportedInputFormat, "truncated PUSHDATA1")
			}
			n := int(script[i])
			i++
			if i+n > len(script) {
				return nil, faults.New(faults.UnsupportedInputFormat, "truncated PUSHDATA1 data")
			}
			pushes = append(pushes, script[i:i+n])
			i += n
		default:
			return nil, faults.New(faults.UnsupportedInputFormat, "non-push opcode in scriptSig")
		}
	}
	return pushes, nil
}

func hash160(data []byte) []byte {
	sum := sha256Sum(data)
	r := ripemd160.New()
	r.Write(sum[:])
	return r.Sum(nil)
}

func sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}
