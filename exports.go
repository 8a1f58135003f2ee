package subledger

import "github.com/xraph/subledger/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Identity is re-exported from types package.
type Identity = types.Identity

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Amount constructors
var (
	NewAmount       = types.NewAmount
	AmountFromBig   = types.AmountFromBig
	ParseAmount     = types.ParseAmount
	MustParseAmount = types.MustParseAmount
	ZeroAmount      = types.ZeroAmount
	SumAmounts      = types.SumAmounts
)
