package consensus

import (
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/ltlmaps/leap-contracts/internal/log"
	"github.com/ltlmaps/leap-contracts/internal/operator"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Join stakes amount tokens for op, registering op if it is new. The
// tokens are pulled from op's balance through the allowance op granted the
// bridge. Topping up an existing stake is allowed within the same bounds.
func (e *Engine) Join(op types.Address, amount uint64) (*operator.Record, error) {
	var out *operator.Record
	err := e.update(func(tx *txn) error {
		supply, err := e.ledger.TotalSupply()
		if err != nil {
			return fmt.Errorf("total supply: %w", err)
		}
		minStake, maxStake, err := e.params.stakeBounds(supply)
		if err != nil {
			return err
		}

		rec, err := tx.ops.Lookup(op)
		if err != nil {
			return err
		}
		isNew := rec == nil
		if isNew {
			rec = &operator.Record{Address: op}
		}
		if rec.Leaving {
			return fmt.Errorf("%w: %s", ErrLeaveRequested, op)
		}

		if amount == 0 || amount < minStake {
			return fmt.Errorf("%w: %d < %d", ErrStakeTooLow, amount, minStake)
		}
		stake, err := add64(rec.Stake, amount)
		if err != nil {
			return err
		}
		if stake > maxStake {
			return fmt.Errorf("%w: %d > %d", ErrStakeTooHigh, stake, maxStake)
		}

		allowed, err := e.ledger.Allowance(op, e.self)
		if err != nil {
			return fmt.Errorf("allowance: %w", err)
		}
		if allowed < amount {
			return fmt.Errorf("%w: %d < %d", ErrAllowanceTooLow, allowed, amount)
		}

		if isNew {
			count, err := tx.ops.Count()
			if err != nil {
				return err
			}
			if count >= e.params.EpochLength {
				return fmt.Errorf("%w: %d operators", ErrCommitteeFull, count)
			}
			if err := tx.ops.SetCount(count + 1); err != nil {
				return err
			}
		}

		tip, err := tx.tip()
		if err != nil {
			return err
		}
		if start := e.params.epochStart(tip.Height); start > rec.ClaimedUntil {
			rec.ClaimedUntil = start
		}
		rec.JoinedAt = e.parent.Time()
		rec.Stake = stake
		if err := tx.ops.Put(rec); err != nil {
			return err
		}

		if err := e.ledger.TransferFrom(e.self, op, e.self, amount); err != nil {
			return fmt.Errorf("stake transfer: %w", err)
		}
		tx.emit(events.Event{Kind: events.OperatorJoined, Height: tip.Height, Operator: op, Amount: amount})
		out = rec
		return nil
	})
	if err != nil {
		log.Registry.Debug().Err(err).Str("operator", op.String()).Msg("Join rejected")
		return nil, err
	}
	log.Registry.Info().
		Str("operator", op.String()).
		Uint64("amount", amount).
		Uint64("stake", out.Stake).
		Msg("Operator joined")
	return out, nil
}

// RequestLeave starts op's exit. The stake can be paid out once the tip is
// two epochs past the current tip height.
func (e *Engine) RequestLeave(op types.Address) (*operator.Record, error) {
	var out *operator.Record
	err := e.update(func(tx *txn) error {
		rec, err := tx.ops.Lookup(op)
		if err != nil {
			return err
		}
		if rec == nil || !rec.Staked() {
			return fmt.Errorf("%w: %s", ErrNotOperator, op)
		}
		if rec.Leaving {
			return fmt.Errorf("%w: %s", ErrLeaveRequested, op)
		}
		unlock, err := add64(rec.JoinedAt, e.params.StakePeriod)
		if err != nil {
			return err
		}
		if now := e.parent.Time(); now < unlock {
			return fmt.Errorf("%w: now %d, unlocks at %d", ErrStakePeriodActive, now, unlock)
		}

		tip, err := tx.tip()
		if err != nil {
			return err
		}
		rec.Leaving = true
		rec.LeaveHeight = tip.Height
		if err := tx.ops.Put(rec); err != nil {
			return err
		}
		tx.emit(events.Event{Kind: events.OperatorLeaving, Height: tip.Height, Operator: op})
		out = rec
		return nil
	})
	if err != nil {
		log.Registry.Debug().Err(err).Str("operator", op.String()).Msg("Leave rejected")
		return nil, err
	}
	log.Registry.Info().Str("operator", op.String()).Uint64("height", out.LeaveHeight).Msg("Operator leaving")
	return out, nil
}

// Payout removes op's record and returns any stake once the exit delay has
// passed. Anyone may call it.
func (e *Engine) Payout(op types.Address) (uint64, error) {
	var paid uint64
	err := e.update(func(tx *txn) error {
		rec, err := tx.ops.Lookup(op)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", ErrNotOperator, op)
		}
		tip, err := tx.tip()
		if err != nil {
			return err
		}
		if rec.Staked() {
			if !rec.Leaving {
				return fmt.Errorf("%w: %s", ErrLeaveNotRequested, op)
			}
			release, err := add64(rec.LeaveHeight, 2*e.params.EpochLength)
			if err != nil {
				return err
			}
			if tip.Height < release {
				return fmt.Errorf("%w: tip %d, release at %d", ErrExitDelayNotFinished, tip.Height, release)
			}
		}

		if err := tx.ops.Delete(op); err != nil {
			return err
		}
		count, err := tx.ops.Count()
		if err != nil {
			return err
		}
		if count > 0 {
			if err := tx.ops.SetCount(count - 1); err != nil {
				return err
			}
		}
		if rec.Staked() {
			if err := e.ledger.Transfer(e.self, op, rec.Stake); err != nil {
				return fmt.Errorf("stake return: %w", err)
			}
		}
		paid = rec.Stake
		tx.emit(events.Event{Kind: events.OperatorRemoved, Height: tip.Height, Operator: op, Amount: rec.Stake})
		return nil
	})
	if err != nil {
		log.Registry.Debug().Err(err).Str("operator", op.String()).Msg("Payout rejected")
		return 0, err
	}
	log.Registry.Info().Str("operator", op.String()).Uint64("amount", paid).Msg("Operator paid out")
	return paid, nil
}
