package p2p

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"go.uber.org/zap"
)

// newTestHost creates a libp2p host on an ephemeral local port for testing.
func newTestHost(t *testing.T) host.Host {
	t.Helper()
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	if err != nil {
		t.Fatalf("create test host: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// connectHosts connects host B to host A.
func connectHosts(t *testing.T, a, b host.Host) {
	t.Helper()
	aInfo := peer.AddrInfo{ID: a.ID(), Addrs: a.Addrs()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Connect(ctx, aInfo); err != nil {
		t.Fatalf("connect hosts: %v", err)
	}
}

func header(submitter string, fill byte) HeaderMsg {
	return HeaderMsg{
		Type:      MsgTypeHeader,
		RawHeader: bytes.Repeat([]byte{fill}, 80),
		Submitter: submitter,
	}
}

func TestSyncProtocol_RoundTrip(t *testing.T) {
	logger := zap.NewNop()

	hostA := newTestHost(t)
	hostB := newTestHost(t)

	cannedHeaders := []HeaderMsg{
		header("relayer-1", 0x01),
		header("relayer-2", 0x02),
	}

	// Host A serves headers — handler returns canned headers regardless of locators
	NewSyncer(hostA, func(req *HeaderLocatorReq) *HeaderLocatorResp {
		return &HeaderLocatorResp{
			Type:    MsgTypeLocatorResp,
			Headers: cannedHeaders,
		}
	}, logger)

	// Host B creates a syncer to request from A
	syncerB := NewSyncer(hostB, func(req *HeaderLocatorReq) *HeaderLocatorResp {
		return nil
	}, logger)

	connectHosts(t, hostA, hostB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := syncerB.RequestLocator(ctx, hostA.ID(), nil, 100)
	if err != nil {
		t.Fatalf("RequestLocator: %v", err)
	}

	if len(resp.Headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(resp.Headers))
	}

	if resp.Headers[0].Submitter != "relayer-1" {
		t.Errorf("header[0] submitter = %q, want relayer-1", resp.Headers[0].Submitter)
	}
	if resp.Headers[1].Submitter != "relayer-2" {
		t.Errorf("header[1] submitter = %q, want relayer-2", resp.Headers[1].Submitter)
	}
}

func TestSyncProtocol_EmptyChain(t *testing.T) {
	logger := zap.NewNop()

	hostA := newTestHost(t)
	hostB := newTestHost(t)

	// Host A has an empty chain — returns empty response
	NewSyncer(hostA, func(req *HeaderLocatorReq) *HeaderLocatorResp {
		return &HeaderLocatorResp{
			Type:    MsgTypeLocatorResp,
			Headers: nil,
		}
	}, logger)

	syncerB := NewSyncer(hostB, func(req *HeaderLocatorReq) *HeaderLocatorResp {
		return nil
	}, logger)

	connectHosts(t, hostA, hostB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := syncerB.RequestLocator(ctx, hostA.ID(), nil, 100)
	if err != nil {
		t.Fatalf("RequestLocator: %v", err)
	}

	if len(resp.Headers) != 0 {
		t.Errorf("expected 0 headers, got %d", len(resp.Headers))
	}
}

func TestSyncProtocol_BatchSizeLimit(t *testing.T) {
	logger := zap.NewNop()

	hostA := newTestHost(t)
	hostB := newTestHost(t)

	// Handler checks that MaxCount was clamped to maxSyncBatchSize
	var receivedMaxCount int
	NewSyncer(hostA, func(req *HeaderLocatorReq) *HeaderLocatorResp {
		receivedMaxCount = req.MaxCount
		return &HeaderLocatorResp{Type: MsgTypeLocatorResp}
	}, logger)

	syncerB := NewSyncer(hostB, func(req *HeaderLocatorReq) *HeaderLocatorResp {
		return nil
	}, logger)

	connectHosts(t, hostA, hostB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Request more than maxSyncBatchSize
	_, err := syncerB.RequestLocator(ctx, hostA.ID(), nil, 500)
	if err != nil {
		t.Fatalf("RequestLocator: %v", err)
	}

	if receivedMaxCount != maxSyncBatchSize {
		t.Errorf("MaxCount = %d, want %d (clamped)", receivedMaxCount, maxSyncBatchSize)
	}
}

func TestSyncProtocol_LocatorForkPoint(t *testing.T) {
	logger := zap.NewNop()

	hostA := newTestHost(t)
	hostB := newTestHost(t)

	// Server has chain A→B→C→D.
	hashA := [32]byte{0x01}
	hashB := [32]byte{0x02}
	hashC := [32]byte{0x03}
	hashD := [32]byte{0x04}

	headerA := header("A", 0xA1)
	headerB := header("B", 0xB2)
	headerC := header("C", 0xC3)
	headerD := header("D", 0xD4)

	chain := map[[32]byte]HeaderMsg{
		hashA: headerA,
		hashB: headerB,
		hashC: headerC,
		hashD: headerD,
	}
	mainChainOrder := [][32]byte{hashA, hashB, hashC, hashD} // oldest-first

	// Host A: find fork point from locators, return headers after it
	NewSyncer(hostA, func(req *HeaderLocatorReq) *HeaderLocatorResp {
		forkIdx := -1
		for _, loc := range req.Locators {
			for i, h := range mainChainOrder {
				if h == loc {
					forkIdx = i
					break
				}
			}
			if forkIdx >= 0 {
				break
			}
		}

		startIdx := 0
		if forkIdx >= 0 {
			startIdx = forkIdx + 1 // after the fork point
		}

		var headers []HeaderMsg
		for i := startIdx; i < len(mainChainOrder); i++ {
			headers = append(headers, chain[mainChainOrder[i]])
		}

		return &HeaderLocatorResp{
			Type:    MsgTypeLocatorResp,
			Headers: headers,
		}
	}, logger)

	syncerB := NewSyncer(hostB, func(req *HeaderLocatorReq) *HeaderLocatorResp {
		return nil
	}, logger)

	connectHosts(t, hostA, hostB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Client sends locator [B] — should get [C, D] back
	resp, err := syncerB.RequestLocator(ctx, hostA.ID(), [][32]byte{hashB}, 100)
	if err != nil {
		t.Fatalf("RequestLocator: %v", err)
	}

	if len(resp.Headers) != 2 {
		t.Fatalf("expected 2 headers (C, D), got %d", len(resp.Headers))
	}

	if resp.Headers[0].Submitter != "C" {
		t.Errorf("header[0] submitter = %q, want C", resp.Headers[0].Submitter)
	}
	if resp.Headers[1].Submitter != "D" {
		t.Errorf("header[1] submitter = %q, want D", resp.Headers[1].Submitter)
	}
}
