package consensus

import (
	"errors"
	"fmt"
	"math"
)

// MaxEpochLength bounds the epoch length so window arithmetic
// (3 * epochLength and friends) cannot overflow.
const MaxEpochLength = math.MaxUint32

// Params are fixed when the engine is constructed.
type Params struct {
	// EpochLength is the consensus window, the reward epoch size and the
	// operator committee limit, in blocks.
	EpochLength uint64 `json:"epoch_length"`
	// ParentBlockInterval is the minimum number of parent blocks between
	// tip advances.
	ParentBlockInterval uint64 `json:"parent_block_interval"`
	// BlockReward is paid per provably mined block.
	BlockReward uint64 `json:"block_reward"`
	// StakePeriod is the minimum stake age in parent-ledger seconds before
	// an operator may request to leave.
	StakePeriod uint64 `json:"stake_period"`
}

// Validate checks params for usable values.
func (p Params) Validate() error {
	if p.EpochLength == 0 {
		return errors.New("epoch length must be positive")
	}
	if p.EpochLength > MaxEpochLength {
		return fmt.Errorf("epoch length %d exceeds %d", p.EpochLength, uint64(MaxEpochLength))
	}
	return nil
}

// archiveDepth is how far below the tip a block must sit before it can be
// archived.
func (p Params) archiveDepth() uint64 {
	return 3 * p.EpochLength
}

// epochStart returns the first height of the epoch containing height.
func (p Params) epochStart(height uint64) uint64 {
	return height / p.EpochLength * p.EpochLength
}

// stakeBounds returns the minimum and maximum stake for a token supply:
// supply/E and 5*supply/E.
func (p Params) stakeBounds(supply uint64) (uint64, uint64, error) {
	min := supply / p.EpochLength
	max, err := mulDiv(supply, 5, p.EpochLength)
	if err != nil {
		return 0, 0, err
	}
	return min, max, nil
}

// allowance is the number of blocks per epoch an operator's stake pays for:
// stake*E/supply.
func (p Params) allowance(stake, supply uint64) (uint64, error) {
	if supply == 0 {
		return 0, nil
	}
	return mulDiv(stake, p.EpochLength, supply)
}
