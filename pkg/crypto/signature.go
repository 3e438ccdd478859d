package crypto

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// SignatureSize is the length of a recoverable signature: one recovery
// byte followed by the 32-byte r and s scalars.
const SignatureSize = 65

// ErrBadSignature is returned when a signature cannot be parsed or no
// public key can be recovered from it.
var ErrBadSignature = errors.New("invalid signature")

// Recoverer recovers the address that produced a signature over a digest.
type Recoverer interface {
	Recover(digest types.Hash, sig []byte) (types.Address, error)
}

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// SignCompact produces a 65-byte recoverable signature over digest.
func (pk *PrivateKey) SignCompact(digest types.Hash) []byte {
	return ecdsa.SignCompact(pk.key, digest[:], true)
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Address returns the address controlled by this key.
func (pk *PrivateKey) Address() types.Address {
	return AddressFromPubKey(pk.PublicKey())
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// CompactRecoverer recovers signers from compact secp256k1 signatures.
type CompactRecoverer struct{}

// Recover implements Recoverer.
func (CompactRecoverer) Recover(digest types.Hash, sig []byte) (types.Address, error) {
	return RecoverAddress(digest, sig)
}

// Headers SignCompact emits for a compressed key: 27 + 4 + recovery id.
const (
	minCompressedHeader = 31
	maxCompressedHeader = 34
)

// RecoverAddress returns the address of the key that signed digest. Only
// the canonical encoding is accepted: a compressed-key header and a low S.
// Every signature therefore has one byte form per signer and digest.
func RecoverAddress(digest types.Hash, sig []byte) (types.Address, error) {
	if len(sig) != SignatureSize {
		return types.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	if sig[0] < minCompressedHeader || sig[0] > maxCompressedHeader {
		return types.Address{}, fmt.Errorf("%w: header %d", ErrBadSignature, sig[0])
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(sig[33:]); overflow || s.IsOverHalfOrder() {
		return types.Address{}, fmt.Errorf("%w: non-canonical s", ErrBadSignature)
	}
	pub, _, err := ecdsa.RecoverCompact(sig, digest[:])
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return AddressFromPubKey(pub.SerializeCompressed()), nil
}
