// Package event defines the ledger's observable event stream.
package event

import (
	"time"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

// Type names an event kind.
type Type string

const (
	TypeAccountCreated       Type = "account.created"
	TypeSubscribed           Type = "subscription.subscribed"
	TypeDeposited            Type = "subscription.deposited"
	TypeWithdrawn            Type = "funds.withdrawn"
	TypeUnsubscribed         Type = "subscription.unsubscribed"
	TypeCharged              Type = "subscription.charged"
	TypeSubscriptionCanceled Type = "subscription.canceled"
)

// Event is one entry in an account's event log.
//
// Party is the owner for AccountCreated and owner withdrawals, and the
// subscriber for everything else. Amount is the value the event moved:
// the payment for Subscribed, the refund for Unsubscribed, the fee or swept
// residual for Charged, the swept residual for SubscriptionCanceled.
type Event struct {
	ID          id.EventID     `json:"id"`
	Type        Type           `json:"type"`
	AccountID   id.AccountID   `json:"account_id"`
	Party       types.Identity `json:"party"`
	Amount      types.Amount   `json:"amount"`
	Description string         `json:"description,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// New builds an event with a fresh ID.
func New(typ Type, accountID id.AccountID, party types.Identity, amount types.Amount, at time.Time) *Event {
	return &Event{
		ID:         id.NewEventID(),
		Type:       typ,
		AccountID:  accountID,
		Party:      party,
		Amount:     amount,
		OccurredAt: at,
	}
}

// ListOpts filters an account's event log. Events are returned in the order
// they were appended.
type ListOpts struct {
	Types  []Type
	Party  types.Identity
	Limit  int
	Offset int
}

// Matches reports whether e passes the type and party filters.
func (o ListOpts) Matches(e *Event) bool {
	if o.Party != "" && e.Party != o.Party {
		return false
	}
	if len(o.Types) == 0 {
		return true
	}
	for _, t := range o.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}
