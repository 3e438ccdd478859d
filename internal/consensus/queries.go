package consensus

import (
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/blocktree"
	"github.com/ltlmaps/leap-contracts/internal/operator"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Info summarizes committed engine state.
type Info struct {
	TipID           types.Hash `json:"tip_id"`
	TipHeight       uint64     `json:"tip_height"`
	LastParentBlock uint64     `json:"last_parent_block"`
	Operators       uint64     `json:"operators"`
	Params          Params     `json:"params"`
	Hash            string     `json:"hash"`
	Address         string     `json:"address"`
}

// Info returns a summary of the current state.
func (e *Engine) Info() (*Info, error) {
	var out *Info
	err := e.view(func(tx *txn) error {
		tip, err := tx.tip()
		if err != nil {
			return err
		}
		last, err := tx.lastParentBlock()
		if err != nil {
			return err
		}
		count, err := tx.ops.Count()
		if err != nil {
			return err
		}
		out = &Info{
			TipID:           tip.ID,
			TipHeight:       tip.Height,
			LastParentBlock: last,
			Operators:       count,
			Params:          e.params,
			Hash:            e.hasher.Name(),
			Address:         e.self.String(),
		}
		return nil
	})
	return out, err
}

// GetHighest returns the current tip block.
func (e *Engine) GetHighest() (*blocktree.Node, error) {
	var out *blocktree.Node
	err := e.view(func(tx *txn) error {
		n, err := tx.tip()
		out = n
		return err
	})
	return out, err
}

// GetBranchCount returns the number of children of id.
func (e *Engine) GetBranchCount(id types.Hash) (int, error) {
	var out int
	err := e.view(func(tx *txn) error {
		n, err := tx.tree.BranchCount(id)
		out = n
		return err
	})
	return out, err
}

// GetBranchAtIndex returns the child of id at index.
func (e *Engine) GetBranchAtIndex(id types.Hash, index int) (types.Hash, error) {
	var out types.Hash
	err := e.view(func(tx *txn) error {
		h, err := tx.tree.BranchAt(id, index)
		out = h
		return err
	})
	return out, err
}

// GetBlockByID returns the stored block with the given id.
func (e *Engine) GetBlockByID(id types.Hash) (*blocktree.Node, error) {
	var out *blocktree.Node
	err := e.view(func(tx *txn) error {
		n, err := tx.tree.Get(id)
		out = n
		return err
	})
	return out, err
}

// GetBlock returns the block at height on the path from the root to the
// current tip.
func (e *Engine) GetBlock(height uint64) (*blocktree.Node, error) {
	var out *blocktree.Node
	err := e.view(func(tx *txn) error {
		tip, err := tx.tip()
		if err != nil {
			return err
		}
		if height > tip.Height {
			return fmt.Errorf("%w: height %d above tip %d", ErrBlockNotFound, height, tip.Height)
		}
		n, _, err := tx.tree.WalkBack(tip, types.Hash{}, height)
		if err != nil {
			return err
		}
		if n.Height != height {
			return fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
		}
		out = n
		return nil
	})
	return out, err
}

// Operator returns the registry record for addr.
func (e *Engine) Operator(addr types.Address) (*operator.Record, error) {
	var out *operator.Record
	err := e.view(func(tx *txn) error {
		r, err := tx.ops.Get(addr)
		out = r
		return err
	})
	return out, err
}

// Operators returns every registry record in address order.
func (e *Engine) Operators() ([]*operator.Record, error) {
	var out []*operator.Record
	err := e.view(func(tx *txn) error {
		all, err := tx.ops.All()
		out = all
		return err
	})
	return out, err
}

// IsStaked reports whether addr currently holds stake.
func (e *Engine) IsStaked(addr types.Address) (bool, error) {
	var out bool
	err := e.view(func(tx *txn) error {
		r, err := tx.ops.Lookup(addr)
		out = r != nil && r.Staked()
		return err
	})
	return out, err
}

// Stake returns addr's stake, zero if not registered.
func (e *Engine) Stake(addr types.Address) (uint64, error) {
	var out uint64
	err := e.view(func(tx *txn) error {
		r, err := tx.ops.Lookup(addr)
		if r != nil {
			out = r.Stake
		}
		return err
	})
	return out, err
}

// Archived returns the ids archived at height.
func (e *Engine) Archived(height uint64) ([]types.Hash, error) {
	var out []types.Hash
	err := e.view(func(tx *txn) error {
		ids, err := tx.tree.Archived(height)
		out = ids
		return err
	})
	return out, err
}
