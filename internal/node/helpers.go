package node

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// loadOperatorKey reads a hex-encoded 32-byte private key from a file.
func loadOperatorKey(path string) (*crypto.PrivateKey, error) {
	path = expandHome(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	hexStr := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	keyBytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}

	return crypto.PrivateKeyFromBytes(keyBytes)
}

// loadGenesis returns the genesis file named in cfg, or the built-in
// genesis for the configured network.
func loadGenesis(cfg *config.Config) (*config.Genesis, error) {
	if cfg.Genesis == "" {
		return config.GenesisFor(cfg.Network), nil
	}
	g, err := config.LoadGenesis(expandHome(cfg.Genesis))
	if err != nil {
		return nil, fmt.Errorf("load genesis %s: %w", cfg.Genesis, err)
	}
	return g, nil
}
