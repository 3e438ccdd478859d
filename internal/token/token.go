// Package token implements the fungible token that backs operator stakes
// and pays block rewards. The consensus engine only needs the Ledger
// interface; Store is the storage-backed ledger the node runs with.
package token

import (
	"errors"

	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Ledger errors.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrOverflow              = errors.New("amount overflow")
	ErrZeroAddress           = errors.New("zero address")
)

// Ledger is the token interface the bridge moves stakes and rewards
// through. Transfer moves the caller's own funds; TransferFrom moves
// funds that owner approved spender to move.
type Ledger interface {
	TotalSupply() (uint64, error)
	Allowance(owner, spender types.Address) (uint64, error)
	Transfer(from, to types.Address, amount uint64) error
	TransferFrom(spender, owner, to types.Address, amount uint64) error
}

// Metadata describes the token.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}
