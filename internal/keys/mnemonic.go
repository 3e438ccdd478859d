// Package keys manages operator signing keys: BIP-39 recovery phrases,
// BIP-32 derivation and password-protected key files.
package keys

import (
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

const (
	// EntropyBits yields a 24-word phrase.
	EntropyBits = 256
	// SeedSize is the BIP-39 seed length in bytes.
	SeedSize = 64
)

// ErrInvalidMnemonic is returned for a phrase that fails the BIP-39
// word list or checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// NewMnemonic returns a fresh 24-word recovery phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(EntropyBits)
	if err != nil {
		return "", fmt.Errorf("entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("mnemonic: %w", err)
	}
	return phrase, nil
}

// Seed validates phrase and stretches it into a 64-byte seed.
func Seed(phrase, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return seed, nil
}
