package node

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/btcrelay-go/relay/internal/ambient"
	"github.com/btcrelay-go/relay/internal/chainstore"
	"github.com/btcrelay-go/relay/internal/metrics"
	"github.com/btcrelay-go/relay/internal/p2p"
	"github.com/btcrelay-go/relay/internal/relay"
	"github.com/btcrelay-go/relay/internal/rpc"
	"github.com/btcrelay-go/relay/internal/store"
)

// saveInterval bounds how stale the on-disk snapshot can get: the loop's
// periodic tick is the only place the daemon saves it.
const saveInterval = 30 * time.Second

// Loop is the daemon's single-threaded event loop: every relay mutation,
// whether triggered by an RPC call or by the P2P transport, is funneled
// through the dispatcher's own mutex (rpc.Dispatcher.WithRelay) so the
// core's single-caller assumption (§5) holds even though headers can
// arrive from either direction at once.
type Loop struct {
	log  *zap.Logger
	disp *rpc.Dispatcher
	bolt *store.BoltStore
	p2pn *p2p.Node

	headerSubmit chan HeaderSubmitEvent
}

// NewLoop wires a Loop over an already-built Dispatcher and P2P node.
func NewLoop(log *zap.Logger, disp *rpc.Dispatcher, bolt *store.BoltStore, p2pn *p2p.Node) *Loop {
	return &Loop{
		log:          log,
		disp:         disp,
		bolt:         bolt,
		p2pn:         p2pn,
		headerSubmit: make(chan HeaderSubmitEvent, 64),
	}
}

// SubmitHeader enqueues a locally-sourced header (e.g. from an operator
// tool outside the RPC façade) for processing on the loop goroutine.
func (l *Loop) SubmitHeader(ev HeaderSubmitEvent) { l.headerSubmit <- ev }

// Run drains every event source until ctx is canceled. The P2P node's
// gossip channel and peer-connect channel feed directly into this loop
// alongside whatever is enqueued via SubmitHeader.
func (l *Loop) Run(ctx context.Context) {
	saveTicker := time.NewTicker(saveInterval)
	defer saveTicker.Stop()

	incomingHeaders := l.p2pn.IncomingHeaders()
	peerConnected := l.p2pn.PeerConnected()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-l.headerSubmit:
			l.handleHeaderSubmit(ev)

		case hdr := <-incomingHeaders:
			l.handleP2PHeader(P2PHeaderEvent{Header: hdr})

		case peerID := <-peerConnected:
			l.handlePeerConnected(PeerSyncEvent{PeerAddr: peerID.String()})

		case <-saveTicker.C:
			l.disp.WithRelay(func(r *relay.Relay, _ ambient.Collaborator) {
				if err := r.SaveTo(l.bolt); err != nil {
					l.log.Error("periodic save failed", zap.Error(err))
				}
			})
		}

		l.drainChainEvents()
	}
}

func (l *Loop) handleHeaderSubmit(ev HeaderSubmitEvent) {
	var stored bool
	l.disp.WithRelay(func(r *relay.Relay, collab ambient.Collaborator) {
		if err := r.StoreBlockHeader(collab, ev.Relayer, ev.RawHeader); err != nil {
			l.log.Debug("header submission rejected", zap.Error(err))
			return
		}
		stored = true
	})
	if stored {
		l.broadcastStored(ev.RawHeader)
	}
}

func (l *Loop) handleP2PHeader(ev P2PHeaderEvent) {
	l.disp.WithRelay(func(r *relay.Relay, collab ambient.Collaborator) {
		if err := r.StoreBlockHeader(collab, ev.Header.Submitter, ev.Header.RawHeader); err != nil {
			l.log.Debug("gossiped header rejected", zap.Error(err))
		}
	})
}

func (l *Loop) handlePeerConnected(ev PeerSyncEvent) {
	l.log.Info("peer connected, sync available on request", zap.String("peer", ev.PeerAddr))
}

func (l *Loop) broadcastStored(rawHeader []byte) {
	msg := &p2p.HeaderMsg{Type: p2p.MsgTypeHeader, RawHeader: rawHeader, Submitter: "local"}
	if err := l.p2pn.BroadcastHeader(msg); err != nil {
		l.log.Warn("header broadcast failed", zap.Error(err))
	}
}

func (l *Loop) drainChainEvents() {
	l.disp.WithRelay(func(r *relay.Relay, _ ambient.Collaborator) {
		for _, ev := range r.Store().DrainEvents() {
			l.recordMetrics(r, ev)
		}
	})
}

func (l *Loop) recordMetrics(r *relay.Relay, ev chainstore.Event) {
	metrics.MainChainHeight.Set(float64(r.Store().BestHeight()))
	switch ev.Kind {
	case chainstore.EventStoreMainChainHeader:
		metrics.HeadersStored.Inc()
	case chainstore.EventStoreForkHeader:
		metrics.HeadersStored.Inc()
		metrics.ForksTracked.Inc()
	case chainstore.EventChainReorg:
		metrics.Reorgs.Inc()
	case chainstore.EventFlagBlockError:
		metrics.FlaggedBlocks.Inc()
	case chainstore.EventClearBlockError:
		metrics.FlaggedBlocks.Dec()
	}
}

// SyncHandler builds the locator-sync responder backing the P2P syncer
// (§3): it walks forward from the first locator hash the store still
// recognizes and returns up to maxSyncBatch main-chain headers past that
// point, setting More when further main-chain headers remain.
func (l *Loop) SyncHandler() p2p.SyncHandler {
	return func(req *p2p.HeaderLocatorReq) *p2p.HeaderLocatorResp {
		var resp *p2p.HeaderLocatorResp
		l.disp.WithRelay(func(r *relay.Relay, _ ambient.Collaborator) {
			resp = buildLocatorResp(r.Store(), req)
		})
		return resp
	}
}

const maxSyncBatch = 100

func buildLocatorResp(cs *chainstore.Store, req *p2p.HeaderLocatorReq) *p2p.HeaderLocatorResp {
	forkHeight := cs.StartHeight()
	for _, locatorHash := range req.Locators {
		stored, ok := cs.HeaderByHash(locatorHash)
		if !ok {
			continue
		}
		if mainHash, ok := cs.HashAt(chainstore.MainChainID, stored.Height); ok && mainHash == locatorHash {
			forkHeight = stored.Height
			break
		}
	}

	headers := make([]p2p.HeaderMsg, 0, maxSyncBatch)
	height := forkHeight + 1
	for len(headers) < maxSyncBatch {
		hash, ok := cs.HashAt(chainstore.MainChainID, height)
		if !ok {
			break
		}
		stored, ok := cs.HeaderByHash(hash)
		if !ok {
			break
		}
		headers = append(headers, p2p.HeaderMsg{
			Type:      p2p.MsgTypeHeader,
			RawHeader: stored.Header.Serialize(),
			Submitter: stored.Submitter,
		})
		height++
	}
	_, more := cs.HashAt(chainstore.MainChainID, height)

	return &p2p.HeaderLocatorResp{Type: p2p.MsgTypeLocatorResp, Headers: headers, More: more}
}
