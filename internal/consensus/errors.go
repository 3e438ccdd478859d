package consensus

import (
	"errors"
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/blocktree"
)

// Error classes. Every rejected transition returns an error that matches
// exactly one of these with errors.Is.
var (
	ErrAuthorization       = errors.New("not authorized")
	ErrDanglingParent      = blocktree.ErrDanglingParent
	ErrDuplicateBlock      = blocktree.ErrDuplicate
	ErrWindowViolation     = errors.New("outside consensus window")
	ErrRateLimit           = errors.New("parent block interval not elapsed")
	ErrStakeBound          = errors.New("stake bound violated")
	ErrEpochAlreadyClaimed = errors.New("epoch already claimed")
	ErrProofMismatch       = errors.New("proof mismatch")
	ErrCooldownNotElapsed  = errors.New("cooldown not elapsed")
	ErrOverflow            = errors.New("arithmetic overflow")
)

// ErrBlockNotFound is returned by queries for a block that is not stored.
var ErrBlockNotFound = blocktree.ErrNotFound

// Specific causes.
var (
	ErrNotOperator          = fmt.Errorf("%w: signer is not a staked operator", ErrAuthorization)
	ErrBadSeal              = fmt.Errorf("%w: seal signature invalid", ErrAuthorization)
	ErrAllowanceTooLow      = fmt.Errorf("%w: token allowance below amount", ErrAuthorization)
	ErrLeaveRequested       = fmt.Errorf("%w: leave already requested", ErrAuthorization)
	ErrStakeTooLow          = fmt.Errorf("%w: below minimum stake", ErrStakeBound)
	ErrStakeTooHigh         = fmt.Errorf("%w: above maximum stake", ErrStakeBound)
	ErrCommitteeFull        = fmt.Errorf("%w: operator committee full", ErrStakeBound)
	ErrTooManyCoinbase      = fmt.Errorf("%w: coinbase references exceed allowance", ErrStakeBound)
	ErrClaimWindow          = fmt.Errorf("%w: epoch not claimable", ErrWindowViolation)
	ErrUnknownBlock         = fmt.Errorf("%w: block not in tree", ErrProofMismatch)
	ErrForeignBlock         = fmt.Errorf("%w: block not mined by claimant in epoch", ErrProofMismatch)
	ErrDuplicateCoinbase    = fmt.Errorf("%w: repeated coinbase reference", ErrProofMismatch)
	ErrStakePeriodActive    = fmt.Errorf("%w: stake period not over", ErrCooldownNotElapsed)
	ErrLeaveNotRequested    = fmt.Errorf("%w: leave not requested", ErrCooldownNotElapsed)
	ErrExitDelayNotFinished = fmt.Errorf("%w: exit delay not finished", ErrCooldownNotElapsed)
)
