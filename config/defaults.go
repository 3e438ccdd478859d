package config

// Per-network listen ports.
var networkPorts = map[NetworkType]struct{ p2p, rpc int }{
	Mainnet: {p2p: 30333, rpc: 8565},
	Testnet: {p2p: 30334, rpc: 8665},
}

// Default returns the default node configuration for network. Unknown
// networks get the mainnet ports.
func Default(network NetworkType) *Config {
	ports, ok := networkPorts[network]
	if !ok {
		network, ports = Mainnet, networkPorts[Mainnet]
	}
	return &Config{
		Network: network,
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       ports.p2p,
			MaxPeers:   50,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       ports.rpc,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Operator: OperatorConfig{
			Heartbeat:         true,
			HeartbeatInterval: 60,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultMainnet is Default(Mainnet).
func DefaultMainnet() *Config { return Default(Mainnet) }

// DefaultTestnet is Default(Testnet).
func DefaultTestnet() *Config { return Default(Testnet) }
