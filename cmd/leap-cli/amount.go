package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// formatAmount renders base units with every decimal place shown.
func formatAmount(units uint64) string {
	return fmt.Sprintf("%d.%0*d", units/config.Token, config.Decimals, units%config.Token)
}

// parseAmount reads a decimal token amount into base units. Amounts below
// one base unit or beyond uint64 are rejected.
func parseAmount(s string) (uint64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > config.Decimals {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, config.Decimals)
	}
	units, err := strconv.ParseUint(whole+frac+strings.Repeat("0", config.Decimals-len(frac)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return units, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// parseHashList splits a comma-separated list of block ids.
func parseHashList(s string) ([]types.Hash, error) {
	var out []types.Hash
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := types.HexToHash(part)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		out = append(out, h)
	}
	return out, nil
}
