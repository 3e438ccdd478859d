package keys

import (
	"fmt"

	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/tyler-smith/go-bip32"
)

// Operator keys live under m/44'/CoinType'/account'/0/index.
const (
	Purpose  = bip32.FirstHardenedChild + 44
	CoinType = bip32.FirstHardenedChild + 1337
)

// OperatorPath returns the derivation path of an operator key.
func OperatorPath(account, index uint32) []uint32 {
	return []uint32{Purpose, CoinType, bip32.FirstHardenedChild + account, 0, index}
}

// Derive walks path from the master key of seed and returns the signing
// key at its end.
func Derive(seed []byte, path ...uint32) (*crypto.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed is %d bytes, want %d", len(seed), SeedSize)
	}
	k, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, idx := range path {
		if k, err = k.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("child %d: %w", idx, err)
		}
	}
	raw := k.Key
	// bip32 pads private keys to 33 bytes.
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// FromMnemonic derives the operator key for account/index from a phrase.
func FromMnemonic(phrase, passphrase string, account, index uint32) (*crypto.PrivateKey, error) {
	seed, err := Seed(phrase, passphrase)
	if err != nil {
		return nil, err
	}
	defer zero(seed)
	return Derive(seed, OperatorPath(account, index)...)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
