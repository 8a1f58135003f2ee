package store

import (
	"context"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

// Store is the unified storage interface for all subledger records.
// Methods are declared explicitly rather than through embedded
// sub-interfaces.
//
// Mutations made through the Store passed to Tx's callback are committed
// together or not at all.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	UpdateAccount(ctx context.Context, a *account.Account) error
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)

	// Subscription methods
	GetSubscription(ctx context.Context, accountID id.AccountID, subscriber types.Identity) (*account.Subscription, error)
	SaveSubscription(ctx context.Context, s *account.Subscription) error
	ListSubscriptions(ctx context.Context, accountID id.AccountID, opts account.SubscriptionListOpts) ([]*account.Subscription, error)

	// Registry index methods
	AppendOwnerAccount(ctx context.Context, owner types.Identity, accountID id.AccountID) error
	ListAccountsByOwner(ctx context.Context, owner types.Identity) ([]id.AccountID, error)
	// AddSubscriberAccount appends accountID to the subscriber's index unless
	// it is already present, reporting whether it was added.
	AddSubscriberAccount(ctx context.Context, subscriber types.Identity, accountID id.AccountID) (bool, error)
	ListAccountsBySubscriber(ctx context.Context, subscriber types.Identity) ([]id.AccountID, error)

	// Event log methods
	AppendEvents(ctx context.Context, events []*event.Event) error
	ListEvents(ctx context.Context, accountID id.AccountID, opts event.ListOpts) ([]*event.Event, error)

	// Core methods
	Tx(ctx context.Context, fn func(tx Store) error) error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
