package subledger

import "github.com/xraph/subledger/id"

// ID is the primary identifier type for all subledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// AccountID identifies a ledger account.
type AccountID = id.AccountID
