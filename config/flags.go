package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Version is the daemon version string.
const Version = "0.1.0"

// Flags holds the parsed command line. Options that map onto Config are
// kept as overrides and applied after the config file.
type Flags struct {
	Help    bool
	Version bool

	// Needed before the config file can be found.
	Network string
	DataDir string
	Config  string

	Args []string

	overrides []override
}

type override struct {
	s     *setting
	value string
}

// flagValue records an explicitly passed setting flag.
type flagValue struct {
	f *Flags
	s *setting
}

func (v flagValue) String() string   { return "" }
func (v flagValue) IsBoolFlag() bool { return v.s != nil && v.s.isBool }

func (v flagValue) Set(s string) error {
	// Check now so a bad value is reported as a flag error.
	if err := v.s.set(new(Config), s); err != nil {
		return err
	}
	v.f.overrides = append(v.f.overrides, override{s: v.s, value: s})
	return nil
}

// ParseFlags parses daemon flags from args, without the program name.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("leapd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	for _, name := range []string{"help", "h"} {
		fs.BoolVar(&f.Help, name, false, "")
	}
	for _, name := range []string{"version", "v"} {
		fs.BoolVar(&f.Version, name, false, "")
	}
	fs.StringVar(&f.Network, "network", "", "")
	fs.BoolFunc("testnet", "", func(string) error {
		f.Network = string(Testnet)
		return nil
	})
	fs.StringVar(&f.DataDir, "datadir", "", "")
	for _, name := range []string{"config", "c"} {
		fs.StringVar(&f.Config, name, "", "")
	}
	for i := range settings {
		if s := &settings[i]; s.flag != "" {
			fs.Var(flagValue{f: f, s: s}, s.flag, s.usage)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.Args = fs.Args()

	// The parser stops at the first positional argument and would drop
	// any flag after it.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q follows a positional argument", arg)
		}
	}
	return f, nil
}

// ApplyFlags applies the command line on top of cfg, in the order given.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	for _, o := range f.overrides {
		// Values were checked in Set.
		_ = o.s.set(cfg, o.value)
	}
}

// PrintUsage writes the daemon help text to w.
func PrintUsage(w io.Writer) {
	def := DefaultMainnet()
	fmt.Fprint(w, `Leap bridge node - sidechain block-tree consensus and reward claims

Usage:
  leapd [options]

  --help, -h       Show this help message
  --version, -v    Show version information
  --network        Network: mainnet (default) or testnet
  --testnet        Shorthand for --network=testnet
  --datadir        Data directory (default: `+DefaultDataDir()+`)
  --config, -c     Config file (default: <datadir>/leapd.conf)
`)
	group := ""
	for _, s := range settings {
		if s.flag == "" {
			continue
		}
		if s.group != group {
			group = s.group
			fmt.Fprintf(w, "\n%s:\n", group)
		}
		line := fmt.Sprintf("  --%-15s %s", s.flag, s.usage)
		if d := s.get(def); d != "" && !s.hidden {
			line += " (default: " + d + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprint(w, `
Examples:
  leapd --testnet
  leapd --datadir=/srv/leap --genesis=/srv/leap/genesis.json
`)
}

// Load builds the node configuration. Later sources win: network
// defaults, then the config file, then flags. The data directories and a
// default config file are created on first run. The returned Config is
// nil when --help or --version was given.
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}
	if flags.Help || flags.Version {
		return nil, flags, nil
	}

	network := Mainnet
	if strings.EqualFold(flags.Network, string(Testnet)) {
		network = Testnet
	}
	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, err
	}

	path := flags.Config
	if path == "" {
		path = cfg.ConfigFile()
	}
	values, err := LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return nil, nil, err
	}
	ApplyFlags(cfg, flags)

	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, flags, nil
}

// EnsureDataDirs creates the data directories and, if absent, a default
// config file.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.ChainDataDir(), cfg.DBDir(), cfg.KeysDir(), cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	path := cfg.ConfigFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefaultConfig(path, cfg.Network); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}
