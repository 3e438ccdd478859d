package config

import (
	"fmt"
	"net"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.P2P.MaxPeers < 0 {
		return fmt.Errorf("p2p.maxpeers must not be negative")
	}
	for i, s := range cfg.P2P.Seeds {
		if _, err := ma.NewMultiaddr(s); err != nil {
			return fmt.Errorf("p2p.seeds[%d] %q is not a multiaddr: %w", i, s, err)
		}
	}

	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.RPC.Enabled && cfg.RPC.Addr == "" {
		return fmt.Errorf("rpc.addr is required when rpc is enabled")
	}
	for i, ip := range cfg.RPC.AllowedIPs {
		if ip == "*" {
			continue
		}
		if net.ParseIP(ip) == nil {
			if _, _, err := net.ParseCIDR(ip); err != nil {
				return fmt.Errorf("rpc.allowed[%d] %q is not an IP or CIDR", i, ip)
			}
		}
	}

	if cfg.Operator.HeartbeatInterval < 0 {
		return fmt.Errorf("operator.heartbeat_interval must not be negative")
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	return nil
}
