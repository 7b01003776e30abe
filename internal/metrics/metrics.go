package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MainChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcrelay",
		Name:      "main_chain_height",
		Help:      "Current height of the relay's main chain.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcrelay",
		Name:      "peers_connected",
		Help:      "Number of connected P2P peers.",
	})

	RPCSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcrelay",
		Name:      "rpc_sessions",
		Help:      "Number of open RPC connections.",
	})

	ForksTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcrelay",
		Name:      "forks_tracked",
		Help:      "Number of competing (non-main) chains currently tracked.",
	})

	FlaggedBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcrelay",
		Name:      "flagged_blocks",
		Help:      "Number of blocks currently carrying a fault flag (NoData or Invalid).",
	})

	HeadersStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcrelay",
		Name:      "headers_stored_total",
		Help:      "Total headers successfully stored across all chains.",
	})

	Reorgs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcrelay",
		Name:      "reorgs_total",
		Help:      "Total main-chain swaps performed.",
	})

	OperationResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btcrelay",
		Name:      "operation_results_total",
		Help:      "Public operation outcomes by operation and fault kind (\"ok\" on success).",
	}, []string{"operation", "result"})

	UptimeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcrelay",
		Name:      "uptime_seconds",
		Help:      "Node uptime in seconds.",
	})
)

func init() {
	prometheus.MustRegister(
		MainChainHeight,
		PeersConnected,
		RPCSessions,
		ForksTracked,
		FlaggedBlocks,
		HeadersStored,
		Reorgs,
		OperationResults,
		UptimeSeconds,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
