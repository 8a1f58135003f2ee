// Package account defines the creator billing account and the per-subscriber
// subscription records it owns.
package account

import (
	"time"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

// Account is one creator's recurring-payment offering. Owner, Fee, Period and
// Description are fixed at creation.
type Account struct {
	types.Entity
	ID              id.AccountID   `json:"id"`
	Owner           types.Identity `json:"owner"`
	Fee             types.Amount   `json:"fee"`
	Period          time.Duration  `json:"period"`
	Description     string         `json:"description"`
	OwnerBalance    types.Amount   `json:"owner_balance"`
	SubscriberCount int64          `json:"subscriber_count"`

	// Lifetime value flowing in and out of the account. Together with the
	// balances they state the conservation equation checked by Reconcile.
	TotalDeposited types.Amount `json:"total_deposited"`
	TotalWithdrawn types.Amount `json:"total_withdrawn"`
}

// IsOwner reports whether caller owns the account.
func (a *Account) IsOwner(caller types.Identity) bool {
	return a.Owner == caller
}

// Subscription is a subscriber's state within one account. Records are
// created on first subscribe and never deleted, only deactivated.
type Subscription struct {
	AccountID     id.AccountID   `json:"account_id"`
	Subscriber    types.Identity `json:"subscriber"`
	IsSubscribed  bool           `json:"is_subscribed"`
	Balance       types.Amount   `json:"balance"`
	SubscribedAt  time.Time      `json:"subscribed_at"`
	LastChargedAt time.Time      `json:"last_charged_at"`
}

// NextChargeAt returns the earliest time the subscription may be charged again.
func (s *Subscription) NextChargeAt(period time.Duration) time.Time {
	return s.LastChargedAt.Add(period)
}

// IsDue reports whether an active subscription's period has elapsed at now.
func (s *Subscription) IsDue(now time.Time, period time.Duration) bool {
	return s.IsSubscribed && !now.Before(s.NextChargeAt(period))
}

// ListOpts filters account listings.
type ListOpts struct {
	Owner types.Identity
	// WithSubscribers restricts the listing to accounts that currently have
	// at least one active subscriber.
	WithSubscribers bool
	Limit           int
	Offset          int
}

// SubscriptionListOpts filters subscription listings.
type SubscriptionListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Reconciliation is the value-conservation report for one account.
type Reconciliation struct {
	AccountID           id.AccountID `json:"account_id"`
	OwnerBalance        types.Amount `json:"owner_balance"`
	SubscriberBalances  types.Amount `json:"subscriber_balances"`
	TotalDeposited      types.Amount `json:"total_deposited"`
	TotalWithdrawn      types.Amount `json:"total_withdrawn"`
	Held                types.Amount `json:"held"`
	Expected            types.Amount `json:"expected"`
	Balanced            bool         `json:"balanced"`
	ActiveSubscriptions int64        `json:"active_subscriptions"`
}
