package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leapd.conf")
	content := `# comment
network = testnet
p2p.port = 4001
p2p.seeds = /ip4/127.0.0.1/tcp/4002, /ip4/127.0.0.1/tcp/4003
rpc.addr = "0.0.0.0"
log.json = yes
unknown.key = ignored
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if values["rpc.addr"] != "0.0.0.0" {
		t.Errorf("quotes not stripped: %q", values["rpc.addr"])
	}

	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Network != Testnet || cfg.P2P.Port != 4001 || len(cfg.P2P.Seeds) != 2 || !cfg.Log.JSON {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "none.conf"))
	if err != nil || len(values) != 0 {
		t.Errorf("LoadFile(missing) = %v, %v", values, err)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	os.WriteFile(path, []byte("novalue\n"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for line without '='")
	}
}

func TestApplyFileConfig_BadNumber(t *testing.T) {
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, map[string]string{"rpc.port": "many"}); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{"--testnet", "--rpc=false", "--seeds", "/ip4/1.2.3.4/tcp/1", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if f.Network != "testnet" {
		t.Errorf("Network = %q, want testnet", f.Network)
	}

	cfg := DefaultTestnet()
	ApplyFlags(cfg, f)
	if cfg.RPC.Enabled {
		t.Error("--rpc=false not applied")
	}
	if cfg.P2P.Enabled != true {
		t.Error("unset --p2p changed the default")
	}
	if cfg.Log.Level != "debug" || len(cfg.P2P.Seeds) != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestOperatorSettings(t *testing.T) {
	cfg := DefaultMainnet()
	if !cfg.Operator.Heartbeat || cfg.Operator.HeartbeatInterval != 60 {
		t.Errorf("operator defaults = %+v", cfg.Operator)
	}

	err := ApplyFileConfig(cfg, map[string]string{
		"operator.key":                "/srv/leap/op.key",
		"operator.heartbeat_interval": "15",
	})
	if err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	f, err := ParseFlags([]string{"--heartbeat=false"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	ApplyFlags(cfg, f)

	if cfg.Operator.Key != "/srv/leap/op.key" || cfg.Operator.HeartbeatInterval != 15 || cfg.Operator.Heartbeat {
		t.Errorf("operator = %+v", cfg.Operator)
	}

	cfg.Operator.HeartbeatInterval = -1
	if err := Validate(cfg); err == nil {
		t.Error("negative heartbeat interval accepted")
	}
}

func TestParseFlags_Errors(t *testing.T) {
	if _, err := ParseFlags([]string{"--nope"}); err == nil {
		t.Error("unknown flag accepted")
	}
	if _, err := ParseFlags([]string{"stray", "--rpc"}); err == nil {
		t.Error("flag after positional argument accepted")
	}
	if _, err := ParseFlags([]string{"-h"}); err != nil && !errors.Is(err, flag.ErrHelp) {
		t.Errorf("-h err = %v", err)
	}
	if _, err := ParseFlags([]string{"--rpc-port", "many"}); err == nil {
		t.Error("non-numeric --rpc-port accepted")
	}
	if _, err := ParseFlags([]string{"--rpc=maybe"}); err == nil {
		t.Error("non-boolean --rpc accepted")
	}
}

func TestApplyFlags_LastWins(t *testing.T) {
	f, err := ParseFlags([]string{"--rpc-port", "9001", "--rpc-port", "9002", "--rpc", "--p2p=false"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	cfg := DefaultMainnet()
	ApplyFlags(cfg, f)
	if cfg.RPC.Port != 9002 || !cfg.RPC.Enabled || cfg.P2P.Enabled {
		t.Errorf("rpc = %+v, p2p enabled = %v", cfg.RPC, cfg.P2P.Enabled)
	}
}

func TestPrintUsage_ListsFlags(t *testing.T) {
	var b strings.Builder
	PrintUsage(&b)
	out := b.String()
	for _, s := range settings {
		if s.flag != "" && !strings.Contains(out, "--"+s.flag) {
			t.Errorf("usage does not mention --%s", s.flag)
		}
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leapd.conf")
	if err := WriteDefaultConfig(path, Testnet); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, ok := values["operator.key"]; ok {
		t.Error("operator.key should be written commented out")
	}

	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	want := DefaultTestnet()
	if cfg.Network != Testnet || cfg.P2P.Port != want.P2P.Port || cfg.RPC.Port != want.RPC.Port {
		t.Errorf("round trip network=%s p2p=%d rpc=%d", cfg.Network, cfg.P2P.Port, cfg.RPC.Port)
	}
	if len(cfg.RPC.AllowedIPs) != 1 || cfg.RPC.AllowedIPs[0] != "127.0.0.1" {
		t.Errorf("rpc.allowed = %v", cfg.RPC.AllowedIPs)
	}
}

func TestApplyFileConfig_Aliases(t *testing.T) {
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, map[string]string{"rpc": "off", "p2p": "no"}); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.RPC.Enabled || cfg.P2P.Enabled {
		t.Error("alias keys not applied")
	}
	if err := ApplyFileConfig(cfg, map[string]string{"log.json": "sometimes"}); err == nil {
		t.Error("bad boolean accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad network", func(c *Config) { c.Network = "devnet" }, false},
		{"bad port", func(c *Config) { c.P2P.Port = 70000 }, false},
		{"bad seed", func(c *Config) { c.P2P.Seeds = []string{"1.2.3.4:30333"} }, false},
		{"good seed", func(c *Config) { c.P2P.Seeds = []string{"/dns4/seed.example.org/tcp/30333"} }, true},
		{"cidr allowed", func(c *Config) { c.RPC.AllowedIPs = []string{"10.0.0.0/8", "*"} }, true},
		{"bad allowed", func(c *Config) { c.RPC.AllowedIPs = []string{"localhost"} }, false},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"rpc without addr", func(c *Config) { c.RPC.Addr = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, _, err := Load([]string{"--datadir", dir, "--testnet", "--rpc-port", "9000"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != Testnet || cfg.RPC.Port != 9000 || cfg.P2P.Port != 30334 {
		t.Errorf("cfg = %+v", cfg)
	}
	for _, d := range []string{cfg.DBDir(), cfg.KeysDir(), cfg.LogsDir()} {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("dir %s not created: %v", d, err)
		}
	}
	data, err := os.ReadFile(cfg.ConfigFile())
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !strings.Contains(string(data), "network = testnet") {
		t.Error("default config has wrong network")
	}
	if cfg.RPCEndpoint() != "http://127.0.0.1:9000" {
		t.Errorf("RPCEndpoint = %s", cfg.RPCEndpoint())
	}

	// The written file round-trips through the loader.
	again, _, err := Load([]string{"--datadir", dir, "--testnet"})
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again.RPC.Port != 8665 {
		t.Errorf("rpc port = %d, want file default 8665", again.RPC.Port)
	}
}
