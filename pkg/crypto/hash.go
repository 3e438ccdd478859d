// Package crypto provides the hashing, signing and proof primitives used by
// the bridge. Hash functions are pluggable through Hasher so a deployment can
// match the content-addressing scheme of its parent ledger.
package crypto

import (
	"fmt"
	"hash"

	"github.com/ltlmaps/leap-contracts/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Hasher is a 256-bit content hash over a sequence of byte strings.
type Hasher interface {
	// Sum hashes the concatenation of parts.
	Sum(parts ...[]byte) types.Hash
	// Name identifies the function in configuration.
	Name() string
}

// Supported hash function names.
const (
	HashBlake3    = "blake3"
	HashKeccak256 = "keccak256"
)

// Blake3 is the default Hasher.
type Blake3 struct{}

// Sum implements Hasher.
func (Blake3) Sum(parts ...[]byte) types.Hash {
	h := blake3.New()
	return sumInto(h, parts)
}

// Name implements Hasher.
func (Blake3) Name() string { return HashBlake3 }

// Keccak256 is the legacy Keccak used by EVM-style parent ledgers.
type Keccak256 struct{}

// Sum implements Hasher.
func (Keccak256) Sum(parts ...[]byte) types.Hash {
	return sumInto(sha3.NewLegacyKeccak256(), parts)
}

// Name implements Hasher.
func (Keccak256) Name() string { return HashKeccak256 }

func sumInto(h hash.Hash, parts [][]byte) types.Hash {
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HasherByName returns the Hasher registered under name. An empty name
// selects blake3.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", HashBlake3:
		return Blake3{}, nil
	case HashKeccak256:
		return Keccak256{}, nil
	default:
		return nil, fmt.Errorf("unknown hash function %q", name)
	}
}

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
