package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDisablesAreFalse(t *testing.T) {
	cfg := Default()
	if cfg.Relay.DisableDifficultyCheck || cfg.Relay.DisableInclusionCheck || cfg.Relay.DisableOpReturnCheck {
		t.Fatal("production defaults must keep every disable toggle false")
	}
	if cfg.Relay.StableBitcoinConfirmations == 0 {
		t.Fatal("expected a non-zero default confirmation margin")
	}
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := `
relay:
  stable_bitcoin_confirmations: 3
  genesis_header: "deadbeef"
  genesis_height: 500000
network:
  p2p_listen_port: 40000
  bootnodes:
    - "/ip4/1.2.3.4/tcp/30333/p2p/QmPeer"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Relay.StableBitcoinConfirmations != 3 {
		t.Errorf("StableBitcoinConfirmations = %d, want 3", cfg.Relay.StableBitcoinConfirmations)
	}
	if cfg.Relay.GenesisHeaderHex != "deadbeef" {
		t.Errorf("GenesisHeaderHex = %q, want deadbeef", cfg.Relay.GenesisHeaderHex)
	}
	if cfg.Network.P2PListenPort != 40000 {
		t.Errorf("P2PListenPort = %d, want 40000", cfg.Network.P2PListenPort)
	}
	if len(cfg.Network.Bootnodes) != 1 {
		t.Fatalf("expected 1 bootnode, got %d", len(cfg.Network.Bootnodes))
	}
	// Fields omitted from the YAML keep their Default() value.
	if cfg.Network.RPCListenAddr != "127.0.0.1:9944" {
		t.Errorf("RPCListenAddr = %q, want default preserved", cfg.Network.RPCListenAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}
