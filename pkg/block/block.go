// Package block defines the sealed block that operators submit and the
// hashing rules that derive block ids, seal digests and coinbase
// commitments from it.
package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Seal is the submission form of a block: the parent link, the merkle
// root of the block body and the operator's signature over both plus the
// height.
type Seal struct {
	Prev      types.Hash
	Height    uint64
	Root      types.Hash
	Signature []byte
}

type sealJSON struct {
	Prev      types.Hash `json:"prev"`
	Height    uint64     `json:"height"`
	Root      types.Hash `json:"root"`
	Signature string     `json:"signature"`
}

// MarshalJSON encodes the seal with a hex signature.
func (s *Seal) MarshalJSON() ([]byte, error) {
	return json.Marshal(sealJSON{
		Prev:      s.Prev,
		Height:    s.Height,
		Root:      s.Root,
		Signature: hex.EncodeToString(s.Signature),
	})
}

// UnmarshalJSON decodes a seal with a hex signature.
func (s *Seal) UnmarshalJSON(data []byte) error {
	var j sealJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return err
	}
	s.Prev, s.Height, s.Root, s.Signature = j.Prev, j.Height, j.Root, sig
	return nil
}

// SigningHash returns the digest the operator signs.
func (s *Seal) SigningHash(h crypto.Hasher) types.Hash {
	return SealHash(h, s.Prev, s.Height, s.Root)
}

// ID returns the block id.
func (s *Seal) ID(h crypto.Hasher) types.Hash {
	return BlockID(h, s.Prev, s.Height, s.Root, s.Signature)
}

// SealHash is H(prev || height || root) with height as 8 big-endian bytes.
func SealHash(h crypto.Hasher, prev types.Hash, height uint64, root types.Hash) types.Hash {
	return h.Sum(prev[:], be64(height), root[:])
}

// BlockID is H(prev || height || root || signature). Two seals that differ
// only in signature bytes produce different ids.
func BlockID(h crypto.Hasher, prev types.Hash, height uint64, root types.Hash, sig []byte) types.Hash {
	return h.Sum(prev[:], be64(height), root[:], sig)
}

// CoinbaseHash commits to the blocks an operator claims alongside the
// block at height: H(height || ids... || operator).
func CoinbaseHash(h crypto.Hasher, height uint64, ids []types.Hash, operator types.Address) types.Hash {
	parts := make([][]byte, 0, len(ids)+2)
	parts = append(parts, be64(height))
	for i := range ids {
		parts = append(parts, ids[i][:])
	}
	parts = append(parts, operator[:])
	return h.Sum(parts...)
}

// Sign seals a block on top of prev.
func Sign(h crypto.Hasher, key *crypto.PrivateKey, prev types.Hash, height uint64, root types.Hash) *Seal {
	s := &Seal{Prev: prev, Height: height, Root: root}
	s.Signature = key.SignCompact(s.SigningHash(h))
	return s
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
