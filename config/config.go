// Package config holds the two kinds of configuration a node runs with.
// Genesis carries the protocol rules every node on a network must agree
// on. Config carries per-node settings read from leapd.conf and flags.
package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// NetworkType names a network with its own genesis and default ports.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config is the per-node runtime configuration. Every field is bound to a
// key in the settings table.
type Config struct {
	Network NetworkType
	DataDir string
	// Genesis is a JSON file that replaces the built-in genesis of Network.
	Genesis string

	P2P      P2PConfig
	RPC      RPCConfig
	Operator OperatorConfig
	Log      LogConfig
}

type P2PConfig struct {
	Enabled    bool
	ListenAddr string
	Port       int
	Seeds      []string // multiaddrs ending in /p2p/<id>
	MaxPeers   int
	NoDiscover bool
	DHTServer  bool // seeds serve DHT queries
}

type RPCConfig struct {
	Enabled     bool
	Addr        string
	Port        int
	AllowedIPs  []string // IPs or CIDRs; "*" or empty allows all
	CORSOrigins []string // "*" allows any origin
}

type OperatorConfig struct {
	// Key is a file holding the hex operator private key. Without one the
	// node only observes.
	Key               string
	Heartbeat         bool
	HeartbeatInterval int // seconds
}

type LogConfig struct {
	Level string
	File  string // empty logs to <datadir>/logs/leapd.log
	JSON  bool
}

// DefaultDataDir is ~/.leap on Linux and the per-user application data
// directory on macOS and Windows.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".leap"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Leap")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Leap")
		}
		return filepath.Join(home, "AppData", "Roaming", "Leap")
	}
	return filepath.Join(home, ".leap")
}

// Layout under DataDir:
//
//	leapd.conf
//	logs/
//	<network>/db/
//	<network>/keys/

func (c *Config) ChainDataDir() string { return filepath.Join(c.DataDir, string(c.Network)) }
func (c *Config) DBDir() string { return filepath.Join(c.ChainDataDir(), "db") }
func (c *Config) KeysDir() string { return filepath.Join(c.ChainDataDir(), "keys") }
func (c *Config) LogsDir() string { return filepath.Join(c.DataDir, "logs") }
func (c *Config) ConfigFile() string { return filepath.Join(c.DataDir, "leapd.conf") }

// RPCEndpoint is the URL clients reach the local RPC server at.
func (c *Config) RPCEndpoint() string {
	return "http://" + net.JoinHostPort(c.RPC.Addr, strconv.Itoa(c.RPC.Port))
}
