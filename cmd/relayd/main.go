// Command relayd runs the Bitcoin SPV header-relay daemon: it loads a
// genesis configuration, restores any durable chain-store snapshot,
// joins the header-gossip P2P network, and serves the JSON-RPC façade
// and Prometheus metrics endpoint used by the daemon's operators.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/btcrelay-go/relay/internal/ambient"
	"github.com/btcrelay-go/relay/internal/config"
	"github.com/btcrelay-go/relay/internal/metrics"
	"github.com/btcrelay-go/relay/internal/node"
	"github.com/btcrelay-go/relay/internal/p2p"
	"github.com/btcrelay-go/relay/internal/relay"
	"github.com/btcrelay-go/relay/internal/rpc"
	"github.com/btcrelay-go/relay/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to the daemon's YAML config file (defaults to built-in safe defaults)")
	devLogging := flag.Bool("dev", false, "use zap's development logger (console encoding, debug level)")
	flag.Parse()

	log, err := newLogger(*devLogging)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log, *configPath); err != nil {
		log.Fatal("relayd exited", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(log *zap.Logger, configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if err := os.MkdirAll(cfg.Network.DataDir, 0o750); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r := relay.New(log, cfg.Relay.ToChainstoreConfig())
	collab := ambient.NewMock(cfg.Relay.GenesisHeight)

	boltPath := filepath.Join(cfg.Network.DataDir, "chainstore.db")
	bolt, err := store.NewBoltStore(boltPath, log)
	if err != nil {
		return err
	}
	defer bolt.Close()

	if err := r.LoadFrom(bolt); err != nil {
		return err
	}
	if !r.Store().IsInitialized() && cfg.Relay.GenesisHeaderHex != "" {
		raw, err := hex.DecodeString(cfg.Relay.GenesisHeaderHex)
		if err != nil {
			return err
		}
		if err := r.Initialize(collab, "genesis", raw, cfg.Relay.GenesisHeight); err != nil {
			return err
		}
	}

	disp := rpc.NewDispatcher(r, collab)

	p2pn, err := p2p.NewNode(ctx, cfg.Network.P2PListenPort, cfg.Network.DataDir, log)
	if err != nil {
		return err
	}
	defer p2pn.Close()

	loop := node.NewLoop(log, disp, bolt, p2pn)
	p2pn.InitSyncer(loop.SyncHandler())

	dhtPath := filepath.Join(cfg.Network.DataDir, "dht")
	if err := p2pn.StartDiscovery(ctx, cfg.Network.EnableMDNS, cfg.Network.Bootnodes, dhtPath); err != nil {
		return err
	}

	rpcServer := rpc.NewServer(disp, log)
	if err := rpcServer.Start(cfg.Network.RPCListenAddr); err != nil {
		return err
	}
	defer rpcServer.Stop()

	metricsSrv := &http.Server{Addr: cfg.Network.MetricsListenAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	defer metricsSrv.Close()

	log.Info("relayd started",
		zap.String("rpc_addr", cfg.Network.RPCListenAddr),
		zap.String("metrics_addr", cfg.Network.MetricsListenAddr),
		zap.Int("p2p_port", cfg.Network.P2PListenPort),
	)

	loop.Run(ctx)

	log.Info("relayd shutting down")
	return nil
}
