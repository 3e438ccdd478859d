package rpc

import (
	"errors"

	"github.com/ltlmaps/leap-contracts/internal/blocktree"
	"github.com/ltlmaps/leap-contracts/internal/consensus"
	"github.com/ltlmaps/leap-contracts/internal/operator"
	"github.com/ltlmaps/leap-contracts/internal/token"
)

// errorCodes maps error classes to RPC codes. The first match wins.
var errorCodes = []struct {
	err  error
	code int
}{
	{consensus.ErrBlockNotFound, CodeNotFound},
	{operator.ErrNotFound, CodeNotFound},
	{blocktree.ErrBadIndex, CodeInvalidParams},
	{consensus.ErrAuthorization, CodeUnauthorized},
	{consensus.ErrDanglingParent, CodeDanglingParent},
	{consensus.ErrDuplicateBlock, CodeDuplicateBlock},
	{consensus.ErrWindowViolation, CodeWindowViolation},
	{consensus.ErrRateLimit, CodeRateLimited},
	{consensus.ErrStakeBound, CodeStakeBound},
	{consensus.ErrEpochAlreadyClaimed, CodeAlreadyClaimed},
	{consensus.ErrProofMismatch, CodeProofMismatch},
	{consensus.ErrCooldownNotElapsed, CodeCooldown},
	{consensus.ErrOverflow, CodeOverflow},
	{token.ErrOverflow, CodeOverflow},
	{token.ErrInsufficientBalance, CodeLedger},
	{token.ErrInsufficientAllowance, CodeLedger},
	{token.ErrZeroAddress, CodeLedger},
	{ErrStaleNonce, CodeBadNonce},
}

// toError converts an engine or ledger error to an RPC error.
func toError(err error) *Error {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return &Error{Code: m.code, Message: err.Error()}
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
