package ambient

import "github.com/btcrelay-go/relay/internal/faults"

// Mock is an in-memory Collaborator for tests and local daemon runs without
// a real ambient framework. Not safe for concurrent use, matching the
// single-threaded execution model the core itself assumes (§5).
type Mock struct {
	Height   uint32
	Shutdown bool

	failures map[faults.Kind]bool
}

// NewMock builds a Mock at the given starting height.
func NewMock(height uint32) *Mock {
	return &Mock{Height: height, failures: make(map[faults.Kind]bool)}
}

func (m *Mock) BlockNumber() uint32 { return m.Height }
func (m *Mock) IsShutdown() bool    { return m.Shutdown }

func (m *Mock) RecordRelayFailure(kind faults.Kind) {
	if m.failures == nil {
		m.failures = make(map[faults.Kind]bool)
	}
	m.failures[kind] = true
}

func (m *Mock) ClearRelayFailure() {
	for k := range m.failures {
		delete(m.failures, k)
	}
}

func (m *Mock) IsParachainErrorSet(kind faults.Kind) bool {
	return m.failures[kind]
}
