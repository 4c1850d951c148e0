// Package token defines the fungible-asset ledger the custody engines move
// funds through. The ledger's own correctness is assumed: a successful call
// means the balances moved, an error means nothing moved.
package token

import (
	"context"
	"errors"

	"github.com/xraph/custody/types"
)

// Errors returned by ledger implementations.
var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: invalid amount")
)

// Ledger is the external token service.
type Ledger interface {
	// Transfer moves amount from the from account to the to account.
	Transfer(ctx context.Context, from, to types.Address, amount types.Amount) error

	// TransferFrom moves amount from the from account to the to account on
	// behalf of spender, consuming spender's allowance.
	TransferFrom(ctx context.Context, spender, from, to types.Address, amount types.Amount) error

	// BalanceOf returns the balance held by account.
	BalanceOf(ctx context.Context, account types.Address) (types.Amount, error)
}

// Transfer is a single leg of a batch transfer.
type Transfer struct {
	To     types.Address `json:"to"`
	Amount types.Amount  `json:"amount"`
}

// BatchTransferer is implemented by ledgers that can move several legs out of
// one account atomically: either every leg lands or none does.
type BatchTransferer interface {
	TransferBatch(ctx context.Context, from types.Address, transfers []Transfer) error
}

// Total sums the amounts of all legs.
func Total(transfers []Transfer) types.Amount {
	total := types.ZeroAmount()
	for _, t := range transfers {
		total = total.Add(t.Amount)
	}
	return total
}
