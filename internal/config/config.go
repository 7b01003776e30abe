// Package config loads the relay daemon's genesis parameters and network
// settings from a YAML file (§4.1's "configuration toggles, settable at
// genesis", plus the ambient network/process settings the core itself
// never needs to know about).
package config

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v2"

	"github.com/btcrelay-go/relay/internal/chainstore"
)

// Config is the daemon's full process configuration.
type Config struct {
	Relay   RelayConfig   `yaml:"relay"`
	Network NetworkConfig `yaml:"network"`
}

// RelayConfig carries the genesis parameters the core itself validates
// against (§4.1, §4.3.1): the confirmation margins and the three disable
// toggles, which MUST default to false in production.
type RelayConfig struct {
	StableBitcoinConfirmations   uint32 `yaml:"stable_bitcoin_confirmations"`
	StableParachainConfirmations uint32 `yaml:"stable_parachain_confirmations"`
	DisableDifficultyCheck       bool   `yaml:"disable_difficulty_check"`
	DisableInclusionCheck        bool   `yaml:"disable_inclusion_check"`
	DisableOpReturnCheck         bool   `yaml:"disable_op_return_check"`

	// GenesisHeaderHex is the raw 80-byte genesis header for chain 0,
	// hex-encoded, and GenesisHeight is the Bitcoin height it represents.
	GenesisHeaderHex string `yaml:"genesis_header"`
	GenesisHeight    uint32 `yaml:"genesis_height"`
}

// ToChainstoreConfig projects the genesis toggles into chainstore.Config.
func (r RelayConfig) ToChainstoreConfig() chainstore.Config {
	return chainstore.Config{
		StableBitcoinConfirmations:   r.StableBitcoinConfirmations,
		StableParachainConfirmations: r.StableParachainConfirmations,
		DisableDifficultyCheck:       r.DisableDifficultyCheck,
		DisableInclusionCheck:        r.DisableInclusionCheck,
		DisableOpReturnCheck:         r.DisableOpReturnCheck,
	}
}

// NetworkConfig carries process-level settings the core never sees.
type NetworkConfig struct {
	DataDir           string   `yaml:"data_dir"`
	P2PListenPort     int      `yaml:"p2p_listen_port"`
	RPCListenAddr     string   `yaml:"rpc_listen_addr"`
	MetricsListenAddr string   `yaml:"metrics_listen_addr"`
	EnableMDNS        bool     `yaml:"enable_mdns"`
	Bootnodes         []string `yaml:"bootnodes"`
}

// Default returns a Config with safe defaults: all three disable toggles
// false, a six-block Bitcoin confirmation margin, and loopback-only RPC
// and metrics listen addresses. The P2P host always listens on all
// interfaces at P2PListenPort; no bootnodes are configured by default.
func Default() Config {
	return Config{
		Relay: RelayConfig{
			StableBitcoinConfirmations:   6,
			StableParachainConfirmations: 0,
		},
		Network: NetworkConfig{
			DataDir:           "./data",
			P2PListenPort:     30333,
			RPCListenAddr:     "127.0.0.1:9944",
			MetricsListenAddr: "127.0.0.1:9945",
			EnableMDNS:        true,
		},
	}
}

// Load reads and parses a YAML config file at path, starting from Default()
// so an omitted field keeps its safe default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
