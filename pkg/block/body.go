package block

import (
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Body is the off-chain content an operator commits to with a block root.
// Its first leaf is always the coinbase commitment, so the coinbase proof
// is the merkle path of leaf 0.
type Body struct {
	Height   uint64        `json:"height"`
	Operator types.Address `json:"operator"`
	Coinbase []types.Hash  `json:"coinbase"`
	Txs      []types.Hash  `json:"txs"`
}

// Leaves returns the coinbase commitment followed by the transaction hashes.
func (b *Body) Leaves(h crypto.Hasher) []types.Hash {
	out := make([]types.Hash, 0, len(b.Txs)+1)
	out = append(out, CoinbaseHash(h, b.Height, b.Coinbase, b.Operator))
	return append(out, b.Txs...)
}

// Root returns the merkle root committed in the block seal.
func (b *Body) Root(h crypto.Hasher) types.Hash {
	return crypto.MerkleRoot(h, b.Leaves(h))
}

// CoinbaseProof returns the merkle path from the coinbase leaf to Root.
func (b *Body) CoinbaseProof(h crypto.Hasher) []types.Hash {
	return crypto.MerkleProof(h, b.Leaves(h), 0)
}
