package chainstore

// PersistedState is the full store state in a flat, CBOR-friendly shape —
// a durability layer (internal/store) encodes this wholesale rather than
// the store's internal maps/pointers directly (§6 "no on-disk format
// specified beyond [preserving] the keyed-map semantics").
type PersistedState struct {
	Headers      []StoredHeader
	Chains       []ChainDescriptorSnapshot
	Index        []IndexEntry
	Queue        []uint32
	ChainCounter uint32
	BestHash     [32]byte
	BestHeight   uint32
	StartHeight  uint32
	Initialized  bool
}

// ChainDescriptorSnapshot is ChainDescriptor with its flag sets flattened
// to slices, since CBOR has no native encoding for map[uint32]struct{}.
type ChainDescriptorSnapshot struct {
	ChainID     uint32
	StartHeight uint32
	MaxHeight   uint32
	NoData      []uint32
	Invalid     []uint32
}

// IndexEntry is one (chain id, height) -> hash mapping.
type IndexEntry struct {
	ChainID uint32
	Height  uint32
	Hash    [32]byte
}

// Export captures the full store state for durable persistence.
func (s *Store) Export() PersistedState {
	headers := make([]StoredHeader, 0, len(s.headers))
	for _, h := range s.headers {
		headers = append(headers, *h)
	}

	chains := make([]ChainDescriptorSnapshot, 0, len(s.chains))
	for _, c := range s.chains {
		snap := ChainDescriptorSnapshot{
			ChainID:     c.ChainID,
			StartHeight: c.StartHeight,
			MaxHeight:   c.MaxHeight,
		}
		for h := range c.NoData {
			snap.NoData = append(snap.NoData, h)
		}
		for h := range c.Invalid {
			snap.Invalid = append(snap.Invalid, h)
		}
		chains = append(chains, snap)
	}

	index := make([]IndexEntry, 0, len(s.index))
	for k, v := range s.index {
		index = append(index, IndexEntry{ChainID: k.ChainID, Height: k.Height, Hash: v})
	}

	queue := make([]uint32, len(s.queue))
	copy(queue, s.queue)

	return PersistedState{
		Headers:      headers,
		Chains:       chains,
		Index:        index,
		Queue:        queue,
		ChainCounter: s.chainCounter,
		BestHash:     s.bestHash,
		BestHeight:   s.bestHeight,
		StartHeight:  s.startHeight,
		Initialized:  s.initialized,
	}
}

// Import replaces the store's entire state with a previously Export-ed
// snapshot. Only valid on a freshly constructed, uninitialized Store.
func (s *Store) Import(state PersistedState) error {
	headers := make(map[[32]byte]*StoredHeader, len(state.Headers))
	for i := range state.Headers {
		h := state.Headers[i]
		headers[h.Hash] = &h
	}

	chains := make(map[uint32]*ChainDescriptor, len(state.Chains))
	for _, snap := range state.Chains {
		d := newDescriptor(snap.ChainID, snap.StartHeight, snap.MaxHeight)
		for _, h := range snap.NoData {
			d.NoData[h] = struct{}{}
		}
		for _, h := range snap.Invalid {
			d.Invalid[h] = struct{}{}
		}
		chains[snap.ChainID] = d
	}

	index := make(map[indexKey][32]byte, len(state.Index))
	for _, e := range state.Index {
		index[indexKey{ChainID: e.ChainID, Height: e.Height}] = e.Hash
	}

	queue := make([]uint32, len(state.Queue))
	copy(queue, state.Queue)

	s.headers = headers
	s.chains = chains
	s.index = index
	s.queue = queue
	s.chainCounter = state.ChainCounter
	s.bestHash = state.BestHash
	s.bestHeight = state.BestHeight
	s.startHeight = state.StartHeight
	s.initialized = state.Initialized
	return nil
}
