package chainstore

import "github.com/btcrelay-go/relay/internal/faults"

// FlagBlockError annotates the block at hash with a fault kind (§4.6).
// Only NoData and Invalid are valid; anything else is UnknownErrorcode.
// Emits FlagBlockError on the annotation's first occurrence at that height.
func (s *Store) FlagBlockError(hash [32]byte, kind faults.Kind) error {
	header, ok := s.headers[hash]
	if !ok {
		return faults.New(faults.BlockNotFound, "no stored header for hash")
	}
	chain, err := s.chain(header.ChainID)
	if err != nil {
		return err
	}

	var set map[uint32]struct{}
	switch kind {
	case faults.NoData:
		set = chain.NoData
	case faults.Invalid:
		set = chain.Invalid
	default:
		return faults.New(faults.UnknownErrorcode, "error kind not applicable to blocks")
	}

	if _, already := set[header.Height]; already {
		return nil
	}
	set[header.Height] = struct{}{}
	s.emit(Event{Kind: EventFlagBlockError, BlockHash: hash, ChainID: header.ChainID, Height: header.Height, FlagKind: kind})
	return nil
}

// ClearBlockError removes a fault annotation and, if this leaves the main
// chain flag-free, asks the security collaborator to clear its
// relay-failure state (§4.3.5 step 10, §4.6).
func (s *Store) ClearBlockError(hash [32]byte, kind faults.Kind, ambient Ambient) error {
	header, ok := s.headers[hash]
	if !ok {
		return faults.New(faults.BlockNotFound, "no stored header for hash")
	}
	chain, err := s.chain(header.ChainID)
	if err != nil {
		return err
	}

	var set map[uint32]struct{}
	switch kind {
	case faults.NoData:
		set = chain.NoData
	case faults.Invalid:
		set = chain.Invalid
	default:
		return faults.New(faults.UnknownErrorcode, "error kind not applicable to blocks")
	}

	if _, present := set[header.Height]; !present {
		return nil
	}
	delete(set, header.Height)
	s.emit(Event{Kind: EventClearBlockError, BlockHash: hash, ChainID: header.ChainID, Height: header.Height, FlagKind: kind})

	if header.ChainID == MainChainID && ambient != nil {
		s.ambientClearOnFlagFree(ambient)
	}
	return nil
}

// FlagGate is the check run by the inclusion procedure (§4.5.1 step 5,
// §4.6): any invalid main-chain block aborts with Invalid; a no_data
// block only permits queries strictly beneath the greatest flagged height.
func (s *Store) FlagGate(blockHeight uint32) error {
	main, err := s.chain(MainChainID)
	if err != nil {
		return err
	}

	if len(main.Invalid) > 0 {
		return faults.New(faults.Invalid, "main chain carries an invalid-flagged block")
	}

	if len(main.NoData) == 0 {
		return nil
	}
	var maxNoData uint32
	for h := range main.NoData {
		if h > maxNoData {
			maxNoData = h
		}
	}
	if blockHeight < maxNoData {
		return nil
	}
	return faults.New(faults.NoData, "query height at or beyond the opaque no-data region")
}
