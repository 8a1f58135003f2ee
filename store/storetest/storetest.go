// Package storetest is a behavioral test suite shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/types"
)

// Factory returns a fresh, migrated store.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// Run exercises s against the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("ListAccounts", func(t *testing.T) { testListAccounts(t, newStore(t)) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
	t.Run("RegistryIndex", func(t *testing.T) { testRegistryIndex(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore(t)) })
}

func newAccount(owner types.Identity, fee int64) *account.Account {
	return &account.Account{
		Entity:      types.NewEntity(epoch),
		ID:          id.NewAccountID(),
		Owner:       owner,
		Fee:         types.NewAmount(fee),
		Period:      7 * 24 * time.Hour,
		Description: "weekly",
	}
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := newAccount("creator", 100)
	require.NoError(t, s.CreateAccount(ctx, a))
	assert.ErrorIs(t, s.CreateAccount(ctx, a), subledger.ErrAlreadyExists)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID.String(), got.ID.String())
	assert.Equal(t, types.Identity("creator"), got.Owner)
	assert.Equal(t, "100", got.Fee.String())
	assert.Equal(t, 7*24*time.Hour, got.Period)
	assert.Equal(t, "weekly", got.Description)
	assert.True(t, got.OwnerBalance.IsZero())
	assert.True(t, epoch.Equal(got.CreatedAt))

	// Wei-scale values survive storage exactly.
	wei := types.MustParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	got.OwnerBalance = wei
	got.TotalDeposited = wei
	got.SubscriberCount = 3
	got.Touch(epoch.Add(time.Hour))
	require.NoError(t, s.UpdateAccount(ctx, got))

	got, err = s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, wei.String(), got.OwnerBalance.String())
	assert.Equal(t, wei.String(), got.TotalDeposited.String())
	assert.Equal(t, int64(3), got.SubscriberCount)
	assert.True(t, epoch.Add(time.Hour).Equal(got.UpdatedAt))

	_, err = s.GetAccount(ctx, id.NewAccountID())
	assert.ErrorIs(t, err, subledger.ErrAccountNotFound)

	assert.ErrorIs(t, s.UpdateAccount(ctx, newAccount("ghost", 1)), subledger.ErrAccountNotFound)
}

func testListAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	var created []*account.Account
	for i, owner := range []types.Identity{"alice", "bob", "alice", "carol"} {
		a := newAccount(owner, int64(10*(i+1)))
		if i == 1 || i == 2 {
			a.SubscriberCount = 1
		}
		require.NoError(t, s.CreateAccount(ctx, a))
		created = append(created, a)
	}

	all, err := s.ListAccounts(ctx, account.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := range all {
		assert.Equal(t, created[i].ID.String(), all[i].ID.String(), "creation order")
	}

	alice, err := s.ListAccounts(ctx, account.ListOpts{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, created[0].ID.String(), alice[0].ID.String())
	assert.Equal(t, created[2].ID.String(), alice[1].ID.String())

	active, err := s.ListAccounts(ctx, account.ListOpts{WithSubscribers: true})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, created[1].ID.String(), active[0].ID.String())

	page, err := s.ListAccounts(ctx, account.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, created[1].ID.String(), page[0].ID.String())
	assert.Equal(t, created[2].ID.String(), page[1].ID.String())

	tail, err := s.ListAccounts(ctx, account.ListOpts{Offset: 3})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, created[3].ID.String(), tail[0].ID.String())

	// A negative offset reads from the start.
	head, err := s.ListAccounts(ctx, account.ListOpts{Limit: 2, Offset: -1})
	require.NoError(t, err)
	require.Len(t, head, 2)
	assert.Equal(t, created[0].ID.String(), head[0].ID.String())
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := newAccount("creator", 100)
	require.NoError(t, s.CreateAccount(ctx, a))

	_, err := s.GetSubscription(ctx, a.ID, "fan")
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)

	sub := &account.Subscription{
		AccountID:     a.ID,
		Subscriber:    "fan",
		IsSubscribed:  true,
		Balance:       types.NewAmount(900),
		SubscribedAt:  epoch,
		LastChargedAt: epoch,
	}
	require.NoError(t, s.SaveSubscription(ctx, sub))
	require.NoError(t, s.SaveSubscription(ctx, &account.Subscription{
		AccountID:  a.ID,
		Subscriber: "lurker",
		Balance:    types.ZeroAmount(),
	}))

	got, err := s.GetSubscription(ctx, a.ID, "fan")
	require.NoError(t, err)
	assert.True(t, got.IsSubscribed)
	assert.Equal(t, "900", got.Balance.String())
	assert.True(t, epoch.Equal(got.SubscribedAt))

	// Saving again updates in place.
	got.Balance = types.NewAmount(800)
	got.LastChargedAt = epoch.Add(7 * 24 * time.Hour)
	require.NoError(t, s.SaveSubscription(ctx, got))

	got, err = s.GetSubscription(ctx, a.ID, "fan")
	require.NoError(t, err)
	assert.Equal(t, "800", got.Balance.String())
	assert.True(t, epoch.Add(7*24*time.Hour).Equal(got.LastChargedAt))

	subs, err := s.ListSubscriptions(ctx, a.ID, account.SubscriptionListOpts{})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, types.Identity("fan"), subs[0].Subscriber)
	assert.Equal(t, types.Identity("lurker"), subs[1].Subscriber)

	active, err := s.ListSubscriptions(ctx, a.ID, account.SubscriptionListOpts{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, types.Identity("fan"), active[0].Subscriber)

	none, err := s.ListSubscriptions(ctx, id.NewAccountID(), account.SubscriptionListOpts{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRegistryIndex(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, second := id.NewAccountID(), id.NewAccountID()

	require.NoError(t, s.AppendOwnerAccount(ctx, "creator", first))
	require.NoError(t, s.AppendOwnerAccount(ctx, "creator", second))

	owned, err := s.ListAccountsByOwner(ctx, "creator")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, first.String(), owned[0].String())
	assert.Equal(t, second.String(), owned[1].String())

	added, err := s.AddSubscriberAccount(ctx, "fan", second)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddSubscriberAccount(ctx, "fan", first)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddSubscriberAccount(ctx, "fan", second)
	require.NoError(t, err)
	assert.False(t, added, "insert-if-absent")

	subscribed, err := s.ListAccountsBySubscriber(ctx, "fan")
	require.NoError(t, err)
	require.Len(t, subscribed, 2)
	assert.Equal(t, second.String(), subscribed[0].String())
	assert.Equal(t, first.String(), subscribed[1].String())

	empty, err := s.ListAccountsBySubscriber(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()

	accountID := id.NewAccountID()
	created := event.New(event.TypeAccountCreated, accountID, "creator", types.ZeroAmount(), epoch)
	created.Description = "weekly"
	events := []*event.Event{
		created,
		event.New(event.TypeSubscribed, accountID, "fan", types.NewAmount(1000), epoch),
		event.New(event.TypeCharged, accountID, "fan", types.NewAmount(100), epoch.Add(time.Hour)),
		event.New(event.TypeSubscribed, accountID, "other", types.NewAmount(100), epoch.Add(2*time.Hour)),
	}
	require.NoError(t, s.AppendEvents(ctx, events[:2]))
	require.NoError(t, s.AppendEvents(ctx, events[2:]))
	require.NoError(t, s.AppendEvents(ctx, nil))

	all, err := s.ListEvents(ctx, accountID, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := range all {
		assert.Equal(t, events[i].ID.String(), all[i].ID.String(), "append order")
		assert.Equal(t, events[i].Type, all[i].Type)
	}
	assert.Equal(t, "weekly", all[0].Description)
	assert.Equal(t, "1000", all[1].Amount.String())
	assert.True(t, epoch.Add(time.Hour).Equal(all[2].OccurredAt))

	subscribed, err := s.ListEvents(ctx, accountID, event.ListOpts{Types: []event.Type{event.TypeSubscribed}})
	require.NoError(t, err)
	assert.Len(t, subscribed, 2)

	fan, err := s.ListEvents(ctx, accountID, event.ListOpts{Party: "fan"})
	require.NoError(t, err)
	assert.Len(t, fan, 2)

	page, err := s.ListEvents(ctx, accountID, event.ListOpts{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, event.TypeCharged, page[0].Type)

	negative, err := s.ListEvents(ctx, accountID, event.ListOpts{Offset: -5})
	require.NoError(t, err)
	assert.Len(t, negative, 4)

	other, err := s.ListEvents(ctx, id.NewAccountID(), event.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := newAccount("creator", 100)
	err := s.Tx(ctx, func(tx store.Store) error {
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		// Nested transactions join the outer one.
		return tx.Tx(ctx, func(inner store.Store) error {
			return inner.AppendOwnerAccount(ctx, a.Owner, a.ID)
		})
	})
	require.NoError(t, err)

	_, err = s.GetAccount(ctx, a.ID)
	require.NoError(t, err)

	owned, err := s.ListAccountsByOwner(ctx, "creator")
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := newAccount("creator", 100)
	require.NoError(t, s.CreateAccount(ctx, a))

	boom := errors.New("boom")
	err := s.Tx(ctx, func(tx store.Store) error {
		a.OwnerBalance = types.NewAmount(500)
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.SaveSubscription(ctx, &account.Subscription{
			AccountID:    a.ID,
			Subscriber:   "fan",
			IsSubscribed: true,
			Balance:      types.NewAmount(1),
		}); err != nil {
			return err
		}
		if _, err := tx.AddSubscriberAccount(ctx, "fan", a.ID); err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, []*event.Event{
			event.New(event.TypeSubscribed, a.ID, "fan", types.NewAmount(1), epoch),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.OwnerBalance.IsZero())

	_, err = s.GetSubscription(ctx, a.ID, "fan")
	assert.ErrorIs(t, err, subledger.ErrSubscriptionNotFound)

	subscribed, err := s.ListAccountsBySubscriber(ctx, "fan")
	require.NoError(t, err)
	assert.Empty(t, subscribed)

	events, err := s.ListEvents(ctx, a.ID, event.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testClosed(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), subledger.ErrStoreClosed)
	_, err := s.GetAccount(ctx, id.NewAccountID())
	assert.ErrorIs(t, err, subledger.ErrStoreClosed)
	assert.ErrorIs(t, s.CreateAccount(ctx, newAccount("creator", 1)), subledger.ErrStoreClosed)
	assert.ErrorIs(t, s.Tx(ctx, func(store.Store) error { return nil }), subledger.ErrStoreClosed)
}
