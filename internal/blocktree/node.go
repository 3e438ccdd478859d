// Package blocktree stores the tree of candidate blocks. Nodes are kept in
// a storage.DB keyed by block id; parent and child links are ids, and
// removing a block is removing its key.
package blocktree

import (
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Node is a block as the tree sees it.
type Node struct {
	ID       types.Hash    `json:"id"`
	Parent   types.Hash    `json:"parent"`
	Height   uint64        `json:"height"`
	Operator types.Address `json:"operator"`
	Root     types.Hash    `json:"root"`
	// ParentIndex is this node's position in the parent's Children.
	ParentIndex int `json:"parent_index"`
	// Children are unordered except that after pruning index 0 is the
	// canonical child.
	Children []types.Hash `json:"children"`
}

// IsRoot reports whether the node is the tree root.
func (n *Node) IsRoot() bool {
	return n.Parent.IsZero()
}

func (n *Node) childIndex(id types.Hash) int {
	for i, c := range n.Children {
		if c == id {
			return i
		}
	}
	return -1
}
