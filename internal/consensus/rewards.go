package consensus

import (
	"errors"
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/blocktree"
	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/ltlmaps/leap-contracts/internal/log"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Claim is a reward claim for one epoch. BlockID is one of the claimant's
// blocks in the epoch; its body's coinbase leaf commits to Coinbase, the
// other blocks the claimant mined in the same epoch. Proof is the merkle
// path from the coinbase leaf to the block root and Signature is the
// block's seal signature.
type Claim struct {
	BlockID   types.Hash   `json:"block_id"`
	Coinbase  []types.Hash `json:"coinbase"`
	Proof     []types.Hash `json:"proof"`
	Signature []byte       `json:"signature"`
}

// ClaimResult describes a paid claim.
type ClaimResult struct {
	Epoch  uint64 `json:"epoch"`
	Blocks int    `json:"blocks"`
	Amount uint64 `json:"amount"`
}

// ClaimReward pays op for the blocks proven by c and marks the epoch
// claimed.
func (e *Engine) ClaimReward(op types.Address, c *Claim) (*ClaimResult, error) {
	var res *ClaimResult
	err := e.update(func(tx *txn) error {
		r, err := e.claim(tx, op, c)
		res = r
		return err
	})
	if err != nil {
		log.Rewards.Debug().Err(err).Str("operator", op.String()).Msg("Claim rejected")
		return nil, err
	}
	log.Rewards.Info().
		Str("operator", op.String()).
		Uint64("epoch", res.Epoch).
		Int("blocks", res.Blocks).
		Uint64("amount", res.Amount).
		Msg("Reward paid")
	return res, nil
}

func (e *Engine) claim(tx *txn, op types.Address, c *Claim) (*ClaimResult, error) {
	epochLen := e.params.EpochLength

	node, err := tx.tree.Get(c.BlockID)
	if errors.Is(err, blocktree.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, c.BlockID)
	}
	if err != nil {
		return nil, err
	}
	epoch := e.params.epochStart(node.Height)

	tip, err := tx.tip()
	if err != nil {
		return nil, err
	}
	if tip.Height < epochLen {
		return nil, fmt.Errorf("%w: tip %d below first epoch", ErrClaimWindow, tip.Height)
	}
	var lower uint64
	if tip.Height > e.params.archiveDepth() {
		lower = tip.Height - e.params.archiveDepth()
	}
	upper := e.params.epochStart(tip.Height - epochLen)
	if epoch < lower || epoch >= upper {
		return nil, fmt.Errorf("%w: epoch %d not in [%d, %d)", ErrClaimWindow, epoch, lower, upper)
	}

	rec, err := tx.ops.Lookup(op)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Staked() {
		return nil, fmt.Errorf("%w: %s", ErrNotOperator, op)
	}
	if rec.ClaimedUntil > epoch {
		return nil, fmt.Errorf("%w: claimed until %d, epoch %d", ErrEpochAlreadyClaimed, rec.ClaimedUntil, epoch)
	}

	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return nil, fmt.Errorf("total supply: %w", err)
	}
	allowance, err := e.params.allowance(rec.Stake, supply)
	if err != nil {
		return nil, err
	}
	if uint64(len(c.Coinbase)) >= allowance {
		return nil, fmt.Errorf("%w: %d references, allowance %d", ErrTooManyCoinbase, len(c.Coinbase), allowance)
	}

	if node.Operator != op {
		return nil, fmt.Errorf("%w: %s", ErrForeignBlock, c.BlockID)
	}
	seen := make(map[types.Hash]struct{}, len(c.Coinbase)+1)
	seen[c.BlockID] = struct{}{}
	for _, id := range c.Coinbase {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCoinbase, id)
		}
		seen[id] = struct{}{}
		n, err := tx.tree.Get(id)
		if errors.Is(err, blocktree.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
		}
		if err != nil {
			return nil, err
		}
		if n.Operator != op || n.Height < epoch || n.Height-epoch >= epochLen {
			return nil, fmt.Errorf("%w: %s", ErrForeignBlock, id)
		}
	}

	leaf := block.CoinbaseHash(e.hasher, node.Height, c.Coinbase, op)
	root := crypto.FoldProof(e.hasher, leaf, c.Proof)
	if block.BlockID(e.hasher, node.Parent, node.Height, root, c.Signature) != c.BlockID {
		return nil, fmt.Errorf("%w: coinbase proof does not reproduce block %s", ErrProofMismatch, c.BlockID)
	}

	amount, err := mul64(uint64(len(c.Coinbase))+1, e.params.BlockReward)
	if err != nil {
		return nil, err
	}
	rec.ClaimedUntil = epoch + epochLen
	if err := tx.ops.Put(rec); err != nil {
		return nil, err
	}
	if amount > 0 {
		if err := e.ledger.Transfer(e.self, op, amount); err != nil {
			return nil, fmt.Errorf("reward transfer: %w", err)
		}
	}
	tx.emit(events.Event{Kind: events.RewardClaimed, Height: epoch, Operator: op, Amount: amount})
	return &ClaimResult{Epoch: epoch, Blocks: len(c.Coinbase) + 1, Amount: amount}, nil
}
