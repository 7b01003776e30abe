// Package faults defines the closed taxonomy of error kinds the relay core
// can surface, grouped by the phase that raises them (§7).
package faults

// Kind is a closed enumeration of fault kinds. New kinds are never added at
// runtime; callers pattern-match on Kind rather than string-matching errors.
type Kind int

const (
	// Codec
	InvalidHeaderSize Kind = iota + 1
	MalformedHeader
	MalformedTransaction
	MalformedMerkleProof
	UnsupportedInputFormat
	UnsupportedOutputFormat
	MalformedWitnessOutput
	MalformedP2PKHOutput
	MalformedP2SHOutput
	MalformedOpReturnOutput
	EndOfFile
	InvalidScript
	InvalidBtcHash
	InvalidBtcAddress

	// Header validation
	DuplicateBlock
	OutdatedBlock
	PrevBlock
	LowDiff
	DiffTargetHeader

	// Chain store
	AlreadyInitialized
	InvalidChainID
	MissingBlockHeight
	BlockNotFound
	ForkIdNotFound
	ChainCounterOverflow
	BlockHeightOverflow
	ChainsUnderflow

	// Inclusion
	OngoingFork
	BitcoinConfirmations
	ParachainConfirmations
	InvalidMerkleProof
	InvalidTxid

	// Payload
	InvalidPayment
	InsufficientValue
	InvalidOpReturn

	// Flags
	NoData
	Invalid
	UnknownErrorcode

	// Arithmetic
	ArithmeticOverflow
	ArithmeticUnderflow

	// Ambient
	Shutdown
)

var names = map[Kind]string{
	InvalidHeaderSize:      "InvalidHeaderSize",
	MalformedHeader:        "MalformedHeader",
	MalformedTransaction:   "MalformedTransaction",
	MalformedMerkleProof:   "MalformedMerkleProof",
	UnsupportedInputFormat: "UnsupportedInputFormat",
	UnsupportedOutputFormat: "UnsupportedOutputFormat",
	MalformedWitnessOutput: "MalformedWitnessOutput",
	MalformedP2PKHOutput:   "MalformedP2PKHOutput",
	MalformedP2SHOutput:    "MalformedP2SHOutput",
	MalformedOpReturnOutput: "MalformedOpReturnOutput",
	EndOfFile:              "EndOfFile",
	InvalidScript:          "InvalidScript",
	InvalidBtcHash:         "InvalidBtcHash",
	InvalidBtcAddress:      "InvalidBtcAddress",
	DuplicateBlock:         "DuplicateBlock",
	OutdatedBlock:          "OutdatedBlock",
	PrevBlock:              "PrevBlock",
	LowDiff:                "LowDiff",
	DiffTargetHeader:       "DiffTargetHeader",
	AlreadyInitialized:     "AlreadyInitialized",
	InvalidChainID:         "InvalidChainID",
	MissingBlockHeight:     "MissingBlockHeight",
	BlockNotFound:          "BlockNotFound",
	ForkIdNotFound:         "ForkIdNotFound",
	ChainCounterOverflow:   "ChainCounterOverflow",
	BlockHeightOverflow:    "BlockHeightOverflow",
	ChainsUnderflow:        "ChainsUnderflow",
	OngoingFork:            "OngoingFork",
	BitcoinConfirmations:   "BitcoinConfirmations",
	ParachainConfirmations: "ParachainConfirmations",
	InvalidMerkleProof:     "InvalidMerkleProof",
	InvalidTxid:            "InvalidTxid",
	InvalidPayment:         "InvalidPayment",
	InsufficientValue:      "InsufficientValue",
	InvalidOpReturn:        "InvalidOpReturn",
	NoData:                 "NoData",
	Invalid:                "Invalid",
	UnknownErrorcode:       "UnknownErrorcode",
	ArithmeticOverflow:     "ArithmeticOverflow",
	ArithmeticUnderflow:    "ArithmeticUnderflow",
	Shutdown:               "Shutdown",
}

func (k Kind) String() string {
	if name, ok := names[k]; ok {
		return name
	}
	return "Unknown"
}

// Error is the single tagged failure type every public operation returns.
// It mirrors the teacher's *ValidationError/*BlockRejectedError shape: a
// typed struct with an Error() method, not a bag of sentinel values.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// New builds a fault with a formatted message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	fe, ok := err.(*Error)
	return ok && fe.Kind == kind
}
