package types

import (
	"encoding/hex"
	"fmt"
)

func encode0x(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// decodeFixed decodes s, with or without a 0x prefix, into dst. The input
// must hold exactly len(dst) bytes.
func decodeFixed(dst []byte, s, what string) error {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if want := 2 * len(dst); len(s) != want {
		return fmt.Errorf("%s must be %d hex characters, got %d", what, want, len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	return nil
}
