package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LoadFile reads a key = value file. Blank lines and lines starting with
// # are skipped, and values may be quoted. A missing file reads as empty.
func LoadFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected key = value", path, n)
		}
		values[strings.TrimSpace(k)] = unquote(strings.TrimSpace(v))
	}
	return values, sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// ApplyFileConfig sets every known key in values on cfg. Unknown keys are
// skipped so a newer file still loads.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for k, v := range values {
		s, ok := lookupSetting(k)
		if !ok {
			continue
		}
		if err := s.set(cfg, v); err != nil {
			return fmt.Errorf("config key %q: %w", k, err)
		}
	}
	return nil
}

const defaultFileHeader = `# Leap bridge node configuration
#
# Node settings only. Protocol rules (epoch length, block reward, stake
# period) come from genesis and cannot change at runtime.
`

// WriteDefaultConfig writes the defaults for network to path, one
// commented entry per setting.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	var b strings.Builder
	b.WriteString(defaultFileHeader)

	group := ""
	for _, s := range settings {
		if s.group != group {
			group = s.group
			fmt.Fprintf(&b, "\n# ---- %s ----\n", group)
		}
		fmt.Fprintf(&b, "\n# %s\n", s.usage)
		if s.hidden {
			b.WriteString("# ")
		}
		fmt.Fprintf(&b, "%s = %s\n", s.key, s.get(def))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
