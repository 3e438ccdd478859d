package consensus

import (
	"errors"
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/blocktree"
	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/ltlmaps/leap-contracts/internal/log"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// SubmitResult describes an accepted block.
type SubmitResult struct {
	Node *blocktree.Node `json:"node"`
	// Advanced is set when the block became the new tip.
	Advanced bool `json:"advanced"`
	// Pruned counts blocks removed by the window prune.
	Pruned int `json:"pruned"`
	// Archived and Deleted count orphan candidates handled by
	// SubmitBlockAndPrune.
	Archived int `json:"archived"`
	Deleted  int `json:"deleted"`
}

// SubmitBlock validates a sealed block and inserts it into the tree. If it
// extends past the tip, it becomes the tip and the window is pruned.
func (e *Engine) SubmitBlock(prev, root types.Hash, sig []byte) (*SubmitResult, error) {
	var res *SubmitResult
	err := e.update(func(tx *txn) error {
		r, err := e.submit(tx, prev, root, sig)
		res = r
		return err
	})
	if err != nil {
		log.Bridge.Debug().Err(err).Str("prev", prev.String()).Msg("Block rejected")
		return nil, err
	}
	e.tracker.RecordBlock(res.Node.Operator, res.Node.Height)
	return res, nil
}

// SubmitBlockAndPrune submits a block and then cleans up orphan
// candidates: a candidate deeper than three epochs below the new tip is
// archived; a shallower candidate whose parent is gone is deleted with its
// subtree. Unknown or ineligible candidates are skipped.
func (e *Engine) SubmitBlockAndPrune(prev, root types.Hash, sig []byte, orphans []types.Hash) (*SubmitResult, error) {
	var res *SubmitResult
	err := e.update(func(tx *txn) error {
		r, err := e.submit(tx, prev, root, sig)
		if err != nil {
			return err
		}
		res = r
		return e.cleanup(tx, r, orphans)
	})
	if err != nil {
		log.Bridge.Debug().Err(err).Str("prev", prev.String()).Msg("Block rejected")
		return nil, err
	}
	e.tracker.RecordBlock(res.Node.Operator, res.Node.Height)
	return res, nil
}

func (e *Engine) submit(tx *txn, prev, root types.Hash, sig []byte) (*SubmitResult, error) {
	parentNode, err := tx.tree.Get(prev)
	if errors.Is(err, blocktree.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDanglingParent, prev)
	}
	if err != nil {
		return nil, err
	}
	height, err := add64(parentNode.Height, 1)
	if err != nil {
		return nil, err
	}

	seal := &block.Seal{Prev: prev, Height: height, Root: root, Signature: sig}
	if err := seal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSeal, err)
	}
	signer, err := e.recoverer.Recover(seal.SigningHash(e.hasher), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSeal, err)
	}
	rec, err := tx.ops.Lookup(signer)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Staked() {
		return nil, fmt.Errorf("%w: %s", ErrNotOperator, signer)
	}

	tip, err := tx.tip()
	if err != nil {
		return nil, err
	}
	var minHeight uint64
	if tip.Height >= e.params.EpochLength {
		minHeight = tip.Height - e.params.EpochLength
	}
	maxHeight, err := add64(tip.Height, 1)
	if err != nil {
		return nil, err
	}
	if height < minHeight || height > maxHeight {
		return nil, fmt.Errorf("%w: height %d not in [%d, %d]", ErrWindowViolation, height, minHeight, maxHeight)
	}

	id := seal.ID(e.hasher)
	if ok, err := tx.tree.Has(id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBlock, id)
	}

	advances := height > tip.Height
	var parentNumber uint64
	if advances {
		last, err := tx.lastParentBlock()
		if err != nil {
			return nil, err
		}
		due, err := add64(last, e.params.ParentBlockInterval)
		if err != nil {
			return nil, err
		}
		parentNumber = e.parent.BlockNumber()
		if parentNumber < due {
			return nil, fmt.Errorf("%w: parent block %d, next advance at %d", ErrRateLimit, parentNumber, due)
		}
	}

	node, err := tx.tree.Insert(prev, id, height, signer, root)
	if err != nil {
		return nil, err
	}
	res := &SubmitResult{Node: node, Advanced: advances}
	if !advances {
		log.Tree.Debug().
			Uint64("height", height).
			Str("id", id.String()).
			Str("operator", signer.String()).
			Msg("Candidate block added")
		return res, nil
	}

	if err := tx.setTip(id); err != nil {
		return nil, err
	}
	if height > e.params.EpochLength {
		anc, keep, err := tx.tree.WalkBack(parentNode, id, height-e.params.EpochLength)
		if err != nil {
			return nil, fmt.Errorf("window walk: %w", err)
		}
		res.Pruned, err = tx.tree.Prune(anc.ID, keep)
		if err != nil {
			return nil, fmt.Errorf("window prune: %w", err)
		}
	}
	if err := tx.setLastParentBlock(parentNumber); err != nil {
		return nil, err
	}
	tx.emit(events.Event{Kind: events.TipAdvanced, Height: height, Hash: root})

	log.Bridge.Info().
		Uint64("height", height).
		Str("id", id.String()).
		Str("operator", signer.String()).
		Int("pruned", res.Pruned).
		Msg("Tip advanced")
	return res, nil
}

func (e *Engine) cleanup(tx *txn, res *SubmitResult, orphans []types.Hash) error {
	tip, err := tx.tip()
	if err != nil {
		return err
	}
	depth := e.params.archiveDepth()
	for _, id := range orphans {
		n, err := tx.tree.Get(id)
		if errors.Is(err, blocktree.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		if tip.Height > n.Height && tip.Height-n.Height > depth {
			if _, err := tx.tree.Archive(id); err != nil {
				return fmt.Errorf("archive %s: %w", id, err)
			}
			res.Archived++
			tx.emit(events.Event{Kind: events.BlockArchived, Height: n.Height, Hash: id})
			continue
		}

		if n.IsRoot() {
			continue
		}
		hasParent, err := tx.tree.Has(n.Parent)
		if err != nil {
			return err
		}
		if hasParent {
			continue
		}
		onTipPath, err := tx.tree.IsAncestor(id, tip.ID)
		if err != nil {
			return err
		}
		if onTipPath {
			continue
		}
		removed, err := tx.tree.DeleteSubtree(id)
		if err != nil {
			return fmt.Errorf("delete orphan %s: %w", id, err)
		}
		res.Deleted += removed
	}
	if res.Archived > 0 || res.Deleted > 0 {
		log.Tree.Info().
			Int("archived", res.Archived).
			Int("deleted", res.Deleted).
			Uint64("tip", tip.Height).
			Msg("Orphans cleaned")
	}
	return nil
}
