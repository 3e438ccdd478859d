package config

import (
	"fmt"
	"strconv"
	"strings"
)

// setting is one node option. The same entry drives the config file key,
// the command-line flag, the usage text and the generated default file.
type setting struct {
	key   string // config file key
	flag  string // command-line name, empty for file-only settings
	group string
	usage string
	// hidden settings are written commented out in the default file.
	hidden bool
	value
}

// value reads and writes one Config field as text.
type value struct {
	set    func(c *Config, s string) error
	get    func(c *Config) string
	isBool bool
}

func text(field func(*Config) *string) value {
	return value{
		set: func(c *Config, s string) error { *field(c) = s; return nil },
		get: func(c *Config) string { return *field(c) },
	}
}

func number(field func(*Config) *int) value {
	return value{
		set: func(c *Config, s string) error {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("%q is not a number", s)
			}
			*field(c) = n
			return nil
		},
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
	}
}

func boolean(field func(*Config) *bool) value {
	return value{
		set: func(c *Config, s string) error {
			b, err := parseBool(s)
			if err != nil {
				return err
			}
			*field(c) = b
			return nil
		},
		get:    func(c *Config) string { return strconv.FormatBool(*field(c)) },
		isBool: true,
	}
}

func list(field func(*Config) *[]string) value {
	return value{
		set: func(c *Config, s string) error { *field(c) = parseStringList(s); return nil },
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
	}
}

// Setting groups, in the order they are printed.
const (
	groupCore     = "Core"
	groupP2P      = "P2P"
	groupRPC      = "RPC"
	groupOperator = "Operator"
	groupLog      = "Logging"
)

var settings = []setting{
	{key: "network", group: groupCore, usage: "Network: mainnet or testnet",
		value: text(func(c *Config) *string { return (*string)(&c.Network) })},
	{key: "datadir", group: groupCore, usage: "Data directory", hidden: true,
		value: text(func(c *Config) *string { return &c.DataDir })},
	{key: "genesis", flag: "genesis", group: groupCore, usage: "Genesis JSON file (default: built-in for the network)", hidden: true,
		value: text(func(c *Config) *string { return &c.Genesis })},

	{key: "p2p.enabled", flag: "p2p", group: groupP2P, usage: "Enable P2P event gossip",
		value: boolean(func(c *Config) *bool { return &c.P2P.Enabled })},
	{key: "p2p.listen", group: groupP2P, usage: "P2P listen address",
		value: text(func(c *Config) *string { return &c.P2P.ListenAddr })},
	{key: "p2p.port", flag: "p2p-port", group: groupP2P, usage: "P2P listen port",
		value: number(func(c *Config) *int { return &c.P2P.Port })},
	{key: "p2p.seeds", flag: "seeds", group: groupP2P, usage: "Seed nodes as comma-separated libp2p multiaddrs", hidden: true,
		value: list(func(c *Config) *[]string { return &c.P2P.Seeds })},
	{key: "p2p.maxpeers", flag: "maxpeers", group: groupP2P, usage: "Maximum number of peers",
		value: number(func(c *Config) *int { return &c.P2P.MaxPeers })},
	{key: "p2p.nodiscover", flag: "nodiscover", group: groupP2P, usage: "Disable mDNS and DHT peer discovery", hidden: true,
		value: boolean(func(c *Config) *bool { return &c.P2P.NoDiscover })},
	{key: "p2p.dhtserver", flag: "dht-server", group: groupP2P, usage: "Run the DHT in server mode (for seed nodes)", hidden: true,
		value: boolean(func(c *Config) *bool { return &c.P2P.DHTServer })},

	{key: "rpc.enabled", flag: "rpc", group: groupRPC, usage: "Enable the JSON-RPC server",
		value: boolean(func(c *Config) *bool { return &c.RPC.Enabled })},
	{key: "rpc.addr", flag: "rpc-addr", group: groupRPC, usage: "RPC listen address",
		value: text(func(c *Config) *string { return &c.RPC.Addr })},
	{key: "rpc.port", flag: "rpc-port", group: groupRPC, usage: "RPC listen port",
		value: number(func(c *Config) *int { return &c.RPC.Port })},
	{key: "rpc.allowed", flag: "rpc-allowed", group: groupRPC, usage: "IPs or CIDRs allowed to call RPC (comma-separated, * for all)",
		value: list(func(c *Config) *[]string { return &c.RPC.AllowedIPs })},
	{key: "rpc.cors", flag: "rpc-cors", group: groupRPC, usage: "Allowed CORS origins (comma-separated)", hidden: true,
		value: list(func(c *Config) *[]string { return &c.RPC.CORSOrigins })},

	{key: "operator.key", flag: "operator-key", group: groupOperator, usage: "Hex-encoded operator key file (unset: observer mode)", hidden: true,
		value: text(func(c *Config) *string { return &c.Operator.Key })},
	{key: "operator.heartbeat", flag: "heartbeat", group: groupOperator, usage: "Broadcast signed operator heartbeats",
		value: boolean(func(c *Config) *bool { return &c.Operator.Heartbeat })},
	{key: "operator.heartbeat_interval", group: groupOperator, usage: "Heartbeat period in seconds",
		value: number(func(c *Config) *int { return &c.Operator.HeartbeatInterval })},

	{key: "log.level", flag: "log-level", group: groupLog, usage: "Log level: debug, info, warn, error",
		value: text(func(c *Config) *string { return &c.Log.Level })},
	{key: "log.file", flag: "log-file", group: groupLog, usage: "Also write JSON logs to this file", hidden: true,
		value: text(func(c *Config) *string { return &c.Log.File })},
	{key: "log.json", flag: "log-json", group: groupLog, usage: "Write JSON instead of colored console logs",
		value: boolean(func(c *Config) *bool { return &c.Log.JSON })},
}

// settingAliases are older file keys still accepted.
var settingAliases = map[string]string{
	"p2p": "p2p.enabled",
	"rpc": "rpc.enabled",
}

func lookupSetting(key string) (*setting, bool) {
	if canonical, ok := settingAliases[key]; ok {
		key = canonical
	}
	for i := range settings {
		if settings[i].key == key {
			return &settings[i], true
		}
	}
	return nil, false
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}

func parseStringList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
