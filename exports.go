package custody

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Re-export common types for convenience so users don't have to import the
// types and id packages for everyday calls.

// Amount is re-exported from types package.
type Amount = types.Amount

// Address is re-exported from types package.
type Address = types.Address

// Entity is re-exported from types package.
type Entity = types.Entity

// ID is the primary identifier type for all custody entities.
type ID = id.ID

// Re-export Amount constructors
var (
	NewAmount   = types.NewAmount
	ParseAmount = types.ParseAmount
	ZeroAmount  = types.ZeroAmount
	SumAmounts  = types.SumAmounts
)

// ParseAddress is re-exported from types package.
var ParseAddress = types.ParseAddress
