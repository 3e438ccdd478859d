package crypto

import (
	"bytes"

	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// HashPair hashes two nodes in sorted order, so a proof needs no
// left/right markers.
func HashPair(h Hasher, a, b types.Hash) types.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return h.Sum(a[:], b[:])
}

// MerkleRoot computes the root over leaves. An odd node at any level is
// paired with itself. Zero leaves yield the zero hash and a single leaf is
// its own root.
func MerkleRoot(h Hasher, leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.Hash{}
	}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		level = nextLevel(h, level)
	}
	return level[0]
}

// MerkleProof returns the sibling path from leaves[index] to the root.
// It returns nil if index is out of range.
func MerkleProof(h Hasher, leaves []types.Hash, index int) []types.Hash {
	if index < 0 || index >= len(leaves) {
		return nil
	}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)
	var proof []types.Hash
	for len(level) > 1 {
		sib := index ^ 1
		if sib >= len(level) {
			sib = index
		}
		proof = append(proof, level[sib])
		level = nextLevel(h, level)
		index /= 2
	}
	return proof
}

// FoldProof folds leaf with each proof element and returns the resulting
// root. Callers compare it against the expected root.
func FoldProof(h Hasher, leaf types.Hash, proof []types.Hash) types.Hash {
	acc := leaf
	for _, p := range proof {
		acc = HashPair(h, acc, p)
	}
	return acc
}

func nextLevel(h Hasher, level []types.Hash) []types.Hash {
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	next := make([]types.Hash, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next[i/2] = HashPair(h, level[i], level[i+1])
	}
	return next
}
