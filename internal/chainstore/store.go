package chainstore

import (
	"go.uber.org/zap"

	"github.com/btcrelay-go/relay/internal/faults"
)

// Store is the single owned value threaded through every chain-store
// operation (§9 — "not as free-floating globals"). It is not safe for
// concurrent use; callers serialize access the way the ambient dispatch
// layer serializes public operations (§5).
type Store struct {
	log *zap.Logger
	cfg Config

	headers map[[32]byte]*StoredHeader
	chains  map[uint32]*ChainDescriptor
	index   map[indexKey][32]byte
	queue   []uint32 // chain ids, position 0 is always MainChainID

	chainCounter uint32
	bestHash     [32]byte
	bestHeight   uint32
	startHeight  uint32
	initialized  bool

	events []Event
}

// New builds an empty, uninitialized Store.
func New(log *zap.Logger, cfg Config) *Store {
	return &Store{
		log:     log,
		cfg:     cfg,
		headers: make(map[[32]byte]*StoredHeader),
		chains:  make(map[uint32]*ChainDescriptor),
		index:   make(map[indexKey][32]byte),
	}
}

// BestHash, BestHeight, StartHeight expose the global scalars read by
// the transaction gate and by external status queries.
func (s *Store) BestHash() [32]byte   { return s.bestHash }
func (s *Store) BestHeight() uint32   { return s.bestHeight }
func (s *Store) Config() Config       { return s.cfg }
func (s *Store) StartHeight() uint32  { return s.startHeight }
func (s *Store) IsInitialized() bool  { return s.initialized }

// IsFullyInitialized reports whether enough blocks have been seen past
// start_height for the relay's own notion of "caught up" (§8 invariant 4).
func (s *Store) IsFullyInitialized() bool {
	return s.initialized && s.bestHeight >= s.startHeight+s.cfg.StableBitcoinConfirmations
}

// DrainEvents returns and clears the events recorded during the last
// public operation. The caller (the relay orchestrator) is responsible
// for publishing them only once the enclosing transaction commits.
func (s *Store) DrainEvents() []Event {
	ev := s.events
	s.events = nil
	return ev
}

func (s *Store) emit(e Event) {
	s.events = append(s.events, e)
}

// HeaderByHash looks up a stored header. Used by the header validator to
// find a candidate's parent.
func (s *Store) HeaderByHash(hash [32]byte) (*StoredHeader, bool) {
	h, ok := s.headers[hash]
	return h, ok
}

// HashAt returns the hash stored on chain id at height, if any.
func (s *Store) HashAt(chainID, height uint32) ([32]byte, bool) {
	h, ok := s.index[indexKey{ChainID: chainID, Height: height}]
	return h, ok
}

// HeaderAtChainHeight is the PrevBlockLookup headerval needs to find a
// retarget anchor: chainID's header at a given height. A fork's anchor
// lives on whichever chain its own history diverged from main on, not
// necessarily main itself (§4.2.1).
func (s *Store) HeaderAtChainHeight(chainID uint32, height int64) (*StoredHeader, bool) {
	if height < 0 {
		return nil, false
	}
	hash, ok := s.HashAt(chainID, uint32(height))
	if !ok {
		return nil, false
	}
	return s.HeaderByHash(hash)
}

// HasOngoingFork reports whether any competing chain is still close enough
// to the main tip that a main-chain swap hasn't (yet) been ruled out —
// within stable_bitcoin_confirmations of catching up (§4.5.1 step 2). Once
// a fork clears that margin it has already triggered swapMainChain and no
// longer exists as a separate queue entry, so this only ever sees forks
// still in the race.
func (s *Store) HasOngoingFork() (bool, error) {
	main, err := s.chain(MainChainID)
	if err != nil {
		return false, err
	}
	for _, id := range s.queue {
		if id == MainChainID {
			continue
		}
		fork, err := s.chain(id)
		if err != nil {
			return false, err
		}
		if fork.MaxHeight+s.cfg.StableBitcoinConfirmations > main.MaxHeight {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) chain(id uint32) (*ChainDescriptor, error) {
	c, ok := s.chains[id]
	if !ok {
		return nil, faults.New(faults.ForkIdNotFound, "chain descriptor not found")
	}
	return c, nil
}

// Initialize accepts the single bootstrap header at a caller-declared
// height (§4.3.1). It may run only once.
func (s *Store) Initialize(header *StoredHeader, height uint32) error {
	if s.initialized {
		return faults.New(faults.AlreadyInitialized, "chain store already initialized")
	}

	header.Height = height
	header.ChainID = MainChainID

	main := newDescriptor(MainChainID, height, height)
	s.chains[MainChainID] = main
	s.queue = []uint32{MainChainID}
	s.index[indexKey{ChainID: MainChainID, Height: height}] = header.Hash
	s.headers[header.Hash] = header

	s.bestHash = header.Hash
	s.bestHeight = height
	s.startHeight = height
	s.initialized = true

	s.emit(Event{Kind: EventInitialized, BlockHash: header.Hash, Height: height})
	return nil
}

// Insert attaches a validated header to the chain owning its parent,
// either as an extension of an existing tip or as a new fork (§4.3.2),
// then runs the reorg check. The whole sequence — extend-or-fork, reorg
// detection, and a possible main-chain swap — is atomic: on any failure
// the store reverts to exactly its pre-call state (§5 Atomicity). ambient
// may be nil (e.g. from tests); when non-nil it is handed to a reorg that
// clears the main chain down to fully flag-free (§4.3.5 step 10).
func (s *Store) Insert(header *StoredHeader, parent *StoredHeader, ambient Ambient) error {
	if _, ok := s.headers[header.Hash]; ok {
		if header.Hash == s.bestHash {
			return faults.New(faults.OutdatedBlock, "resubmission of the current best header")
		}
		return faults.New(faults.DuplicateBlock, "header already stored")
	}

	parentChain, err := s.chain(parent.ChainID)
	if err != nil {
		return err
	}

	newHeight := parent.Height + 1
	if newHeight < parent.Height {
		return faults.New(faults.BlockHeightOverflow, "block height overflow")
	}

	snap := s.snapshot()
	var insertErr error
	if parent.Height == parentChain.MaxHeight {
		insertErr = s.extend(header, parentChain, newHeight, ambient)
	} else {
		insertErr = s.fork(header, parentChain, newHeight, ambient)
	}
	if insertErr != nil {
		s.restore(snap)
		return insertErr
	}
	return nil
}

// snapshot deep-copies every field Insert's call tree can mutate, so a
// failure partway through extend/fork/reorg/swap can be undone in full.
type snapshot struct {
	headers      map[[32]byte]*StoredHeader
	chains       map[uint32]*ChainDescriptor
	index        map[indexKey][32]byte
	queue        []uint32
	chainCounter uint32
	bestHash     [32]byte
	bestHeight   uint32
	eventCount   int
}

func (s *Store) snapshot() snapshot {
	headers := make(map[[32]byte]*StoredHeader, len(s.headers))
	for k, v := range s.headers {
		cp := *v
		headers[k] = &cp
	}
	chains := make(map[uint32]*ChainDescriptor, len(s.chains))
	for k, v := range s.chains {
		cp := *v
		cp.NoData = make(map[uint32]struct{}, len(v.NoData))
		for h := range v.NoData {
			cp.NoData[h] = struct{}{}
		}
		cp.Invalid = make(map[uint32]struct{}, len(v.Invalid))
		for h := range v.Invalid {
			cp.Invalid[h] = struct{}{}
		}
		chains[k] = &cp
	}
	index := make(map[indexKey][32]byte, len(s.index))
	for k, v := range s.index {
		index[k] = v
	}
	queue := make([]uint32, len(s.queue))
	copy(queue, s.queue)

	return snapshot{
		headers:      headers,
		chains:       chains,
		index:        index,
		queue:        queue,
		chainCounter: s.chainCounter,
		bestHash:     s.bestHash,
		bestHeight:   s.bestHeight,
		eventCount:   len(s.events),
	}
}

func (s *Store) restore(snap snapshot) {
	s.headers = snap.headers
	s.chains = snap.chains
	s.index = snap.index
	s.queue = snap.queue
	s.chainCounter = snap.chainCounter
	s.bestHash = snap.bestHash
	s.bestHeight = snap.bestHeight
	s.events = s.events[:snap.eventCount]
}

func (s *Store) extend(header *StoredHeader, chain *ChainDescriptor, height uint32, ambient Ambient) error {
	header.Height = height
	header.ChainID = chain.ChainID

	s.headers[header.Hash] = header
	s.index[indexKey{ChainID: chain.ChainID, Height: height}] = header.Hash
	chain.MaxHeight = height

	if chain.ChainID == MainChainID {
		s.bestHash = header.Hash
		s.bestHeight = height
		s.emit(Event{Kind: EventStoreMainChainHeader, BlockHash: header.Hash, Height: height})
	} else {
		s.emit(Event{Kind: EventStoreForkHeader, BlockHash: header.Hash, ChainID: chain.ChainID, Height: height})
	}

	return s.checkAndDoReorg(chain.ChainID, ambient)
}

func (s *Store) fork(header *StoredHeader, parentChain *ChainDescriptor, height uint32, ambient Ambient) error {
	next := s.chainCounter + 1
	if next < s.chainCounter {
		return faults.New(faults.ChainCounterOverflow, "chain counter overflow")
	}
	s.chainCounter = next

	newChain := newDescriptor(next, height, height)
	s.chains[next] = newChain

	header.Height = height
	header.ChainID = next

	s.headers[header.Hash] = header
	s.index[indexKey{ChainID: next, Height: height}] = header.Hash

	s.insertSorted(next)
	s.emit(Event{Kind: EventStoreForkHeader, BlockHash: header.Hash, ChainID: next, Height: height})

	return s.checkAndDoReorg(next, ambient)
}

// insertSorted bubbles a newly-minted chain id from the tail of the queue
// toward the head until its predecessor's max_height is >= its own
// (§4.3.4). The main chain, at position 0, never moves through this path.
func (s *Store) insertSorted(chainID uint32) {
	s.queue = append(s.queue, chainID)
	pos := len(s.queue) - 1

	for pos > 1 {
		prevID := s.queue[pos-1]
		if s.chains[prevID].MaxHeight >= s.chains[chainID].MaxHeight {
			break
		}
		s.queue[pos-1], s.queue[pos] = s.queue[pos], s.queue[pos-1]
		pos--
	}
}

// checkAndDoReorg walks the priority queue upward from forkID's position,
// swapping it past any weaker predecessor, performing a main-chain swap
// if it overtakes main by the safety margin (§4.3.3). Position 0 is never
// touched by the pairwise swaps — only swapMainChain may change what
// occupies it, and only once the margin is actually cleared.
func (s *Store) checkAndDoReorg(forkID uint32, ambient Ambient) error {
	if forkID == MainChainID {
		return nil
	}

	pos := s.positionOf(forkID)
	if pos < 0 {
		return faults.New(faults.ForkIdNotFound, "fork not present in priority queue")
	}

	fork, err := s.chain(forkID)
	if err != nil {
		return err
	}

	for pos > 0 {
		prevID := s.queue[pos-1]
		prevChain, err := s.chain(prevID)
		if err != nil {
			return err
		}

		if prevChain.MaxHeight >= fork.MaxHeight {
			break
		}

		if prevID == MainChainID {
			if fork.MaxHeight > prevChain.MaxHeight+s.cfg.StableBitcoinConfirmations {
				forkDepth := fork.MaxHeight - fork.StartHeight
				if err := s.swapMainChain(fork, ambient); err != nil {
					return err
				}
				s.emit(Event{
					Kind:      EventChainReorg,
					BlockHash: s.bestHash,
					Height:    s.bestHeight,
					ForkDepth: forkDepth,
				})
				return nil
			}
			s.emit(Event{
				Kind:       EventForkAheadOfMainChain,
				MainHeight: prevChain.MaxHeight,
				ForkHeight: fork.MaxHeight,
				ChainID:    fork.ChainID,
			})
			return nil
		}

		s.queue[pos-1], s.queue[pos] = s.queue[pos], s.queue[pos-1]
		pos--
	}

	return nil
}

func (s *Store) positionOf(chainID uint32) int {
	for i, id := range s.queue {
		if id == chainID {
			return i
		}
	}
	return -1
}

// swapMainChain performs the eleven-step main-chain swap (§4.3.5): the
// fork becomes chain 0 over the contested range, and the old main-chain
// suffix is relabeled into a freshly-minted displaced chain. Step 10 asks
// ambient to clear its relay-failure state if the swap leaves the new
// main chain flag-free; ambient may be nil (e.g. from tests).
func (s *Store) swapMainChain(fork *ChainDescriptor, ambient Ambient) error {
	main, err := s.chain(MainChainID)
	if err != nil {
		return err
	}

	// Step 1: split main's flags at fork.StartHeight.
	noDataSuffix, invalidSuffix := main.splitFlagsAt(fork.StartHeight)

	// Step 2: mint the displaced chain.
	displacedID := s.chainCounter + 1
	if displacedID < s.chainCounter {
		return faults.New(faults.ChainCounterOverflow, "chain counter overflow")
	}
	s.chainCounter = displacedID
	displaced := newDescriptor(displacedID, fork.StartHeight, main.MaxHeight)
	displaced.NoData = noDataSuffix
	displaced.Invalid = invalidSuffix

	// Step 3: extend main in-place to the fork's tip, union in its flags.
	oldMainMaxHeight := main.MaxHeight
	main.MaxHeight = fork.MaxHeight
	unionFlags(main.NoData, fork.NoData)
	unionFlags(main.Invalid, fork.Invalid)

	// Step 4: record the new tip.
	newTipHash, ok := s.index[indexKey{ChainID: fork.ChainID, Height: fork.MaxHeight}]
	if !ok {
		return faults.New(faults.MissingBlockHeight, "fork tip missing from index")
	}
	s.bestHash = newTipHash
	s.bestHeight = fork.MaxHeight

	// Step 5: remove the fork from the queue and the descriptor table.
	forkPos := s.positionOf(fork.ChainID)
	if forkPos >= 0 {
		s.queue = append(s.queue[:forkPos], s.queue[forkPos+1:]...)
	}
	delete(s.chains, fork.ChainID)

	// Step 6: insert the displaced descriptor.
	s.chains[displacedID] = displaced
	s.insertSorted(displacedID)

	// Step 7: move the old main-chain hashes at [fork.StartHeight, oldMainMaxHeight]
	// into the displaced chain's index, and relabel their StoredHeaders.
	for h := fork.StartHeight; h <= oldMainMaxHeight; h++ {
		key := indexKey{ChainID: MainChainID, Height: h}
		hash, ok := s.index[key]
		if !ok {
			continue
		}
		delete(s.index, key)
		s.index[indexKey{ChainID: displacedID, Height: h}] = hash
		if sh, ok := s.headers[hash]; ok {
			sh.ChainID = displacedID
		}
	}

	// Step 8: install the fork's hashes into main's index over its own range.
	for h := fork.StartHeight; h <= fork.MaxHeight; h++ {
		key := indexKey{ChainID: fork.ChainID, Height: h}
		hash, ok := s.index[key]
		if !ok {
			return faults.New(faults.MissingBlockHeight, "fork range missing a stored hash")
		}
		s.index[indexKey{ChainID: MainChainID, Height: h}] = hash
		if sh, ok := s.headers[hash]; ok {
			sh.ChainID = MainChainID
		}
	}

	// Step 9: clear the old fork's per-height index prefix.
	for h := fork.StartHeight; h <= fork.MaxHeight; h++ {
		delete(s.index, indexKey{ChainID: fork.ChainID, Height: h})
	}

	s.log.Info("main chain swap complete",
		zap.Uint32("new_best_height", s.bestHeight),
		zap.Uint32("displaced_chain_id", displacedID),
		zap.Uint32("retired_fork_id", fork.ChainID),
	)

	// Step 10: the swap may have carried the fork's clean range into main
	// while leaving the displaced suffix with every flag that used to sit
	// on main, so re-check whether main is now flag-free.
	if ambient != nil {
		s.ambientClearOnFlagFree(ambient)
	}

	return nil
}

// ambientClearOnFlagFree asks the security collaborator to clear its
// relay-failure state once the main chain carries no outstanding flags
// (§4.3.5 step 10, §4.6).
func (s *Store) ambientClearOnFlagFree(ambient Ambient) {
	main, err := s.chain(MainChainID)
	if err != nil {
		return
	}
	if !main.hasAnyFlags() {
		ambient.ClearRelayFailure()
	}
}
