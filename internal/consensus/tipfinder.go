package consensus

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ltlmaps/leap-contracts/internal/blocktree"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// TipResult is the fork-choice answer: the best block and how many
// stake-backed blocks lead to it from the consensus horizon.
type TipResult struct {
	ID    types.Hash `json:"id"`
	Score uint64     `json:"score"`
}

// GetTip runs stake-weighted fork choice over the consensus window. Only
// blocks by listed operators score, and each operator scores at most its
// allowance along any one path. Ties go to the branch with the lower child
// index. Results are cached per committed state.
func (e *Engine) GetTip(operators []types.Address) (*TipResult, error) {
	var res *TipResult
	err := e.view(func(tx *txn) error {
		key := tipCacheKey(e.version, operators)
		if cached, ok := e.tipCache.Get(key); ok {
			res = cached
			return nil
		}
		r, err := e.findTip(tx, operators)
		if err != nil {
			return err
		}
		e.tipCache.Add(key, r)
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	cp := *res
	return &cp, nil
}

func tipCacheKey(version uint64, operators []types.Address) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(version, 10))
	for _, op := range operators {
		b.WriteByte('/')
		b.WriteString(op.Hex())
	}
	return b.String()
}

// tipFrame is one pending node of the depth-first walk together with the
// state of the path that reaches it.
type tipFrame struct {
	id     types.Hash
	counts []uint64
	best   types.Hash
	score  uint64
}

func (e *Engine) findTip(tx *txn, operators []types.Address) (*TipResult, error) {
	tip, err := tx.tip()
	if err != nil {
		return nil, err
	}
	var horizon uint64
	if tip.Height > e.params.EpochLength {
		horizon = tip.Height - e.params.EpochLength
	}
	start, _, err := tx.tree.WalkBack(tip, types.Hash{}, horizon)
	if err != nil {
		return nil, err
	}

	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	slot := make(map[types.Address]int, len(operators))
	allowances := make([]uint64, 0, len(operators))
	for _, op := range operators {
		if _, dup := slot[op]; dup {
			continue
		}
		var allowance uint64
		rec, err := tx.ops.Lookup(op)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Staked() {
			allowance, err = e.params.allowance(rec.Stake, supply)
			if err != nil {
				return nil, err
			}
		}
		slot[op] = len(allowances)
		allowances = append(allowances, allowance)
	}

	best := &TipResult{ID: start.ID}
	found := false
	stack := []tipFrame{{id: start.ID, counts: make([]uint64, len(allowances)), best: start.ID}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := tx.tree.Get(f.id)
		if errors.Is(err, blocktree.ErrNotFound) {
			// A missing child ends its path where the parent did.
			if !found || f.score > best.Score {
				best = &TipResult{ID: f.best, Score: f.score}
				found = true
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if i, ok := slot[n.Operator]; ok && f.counts[i] < allowances[i] {
			f.counts[i]++
			f.score++
			f.best = n.ID
		}

		if len(n.Children) == 0 {
			if !found || f.score > best.Score {
				best = &TipResult{ID: f.best, Score: f.score}
				found = true
			}
			continue
		}
		// Push in reverse so child 0 is explored first.
		for i := len(n.Children) - 1; i >= 0; i-- {
			counts := f.counts
			if len(n.Children) > 1 {
				counts = append([]uint64(nil), f.counts...)
			}
			stack = append(stack, tipFrame{id: n.Children[i], counts: counts, best: f.best, score: f.score})
		}
	}
	return best, nil
}
