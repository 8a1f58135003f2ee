package subledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

func TestCreateAccount(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		h := newHarnessWith(t, newStore(t))
		ctx := context.Background()

		a, err := h.CreateAccount(ctx, alice, ether(5), 3*24*time.Hour, "my 3-day subscription")
		require.NoError(t, err)

		assert.Equal(t, id.PrefixAccount, a.ID.Prefix())
		assert.Equal(t, alice, a.Owner)
		assertAmount(t, ether(5), a.Fee)
		assert.Equal(t, 3*24*time.Hour, a.Period)
		assert.Equal(t, "my 3-day subscription", a.Description)
		assert.True(t, a.OwnerBalance.IsZero())
		assert.Zero(t, a.SubscriberCount)
		assert.True(t, epoch.Equal(a.CreatedAt))

		known, err := h.IsKnownAccount(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, known)

		n, err := h.NumAccounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		owned, err := h.ListAccountsByOwner(ctx, alice)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, a.ID.String(), owned[0].String())

		events := h.recorder.Events()
		require.Len(t, events, 1)
		assert.Equal(t, event.TypeAccountCreated, events[0].Type)
		assert.Equal(t, a.ID.String(), events[0].AccountID.String())
		assert.Equal(t, alice, events[0].Party)
		assert.Equal(t, "my 3-day subscription", events[0].Description)
		assert.True(t, epoch.Equal(events[0].OccurredAt))

		logged, err := h.ListEvents(ctx, a.ID, event.ListOpts{})
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, events[0].ID.String(), logged[0].ID.String())
	})
}

func TestCreateAccountValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		owner  types.Identity
		fee    types.Amount
		period time.Duration
		field  string
	}{
		{"empty owner", "", fee, week, "owner"},
		{"zero fee", owner, types.ZeroAmount(), week, "fee"},
		{"negative fee", owner, types.NewAmount(-1), week, "fee"},
		{"zero period", owner, fee, 0, "period"},
		{"negative period", owner, fee, -time.Hour, "period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.CreateAccount(ctx, tt.owner, tt.fee, tt.period, "")
			require.ErrorIs(t, err, subledger.ErrInvalidParameter)

			var verr subledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	n, err := h.NumAccounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.recorder.Events())
}

func TestListAccountsByOwnerOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var want []string
	for i := range 3 {
		a, err := h.CreateAccount(ctx, owner, types.NewAmount(int64(i+1)), week, "")
		require.NoError(t, err)
		want = append(want, a.ID.String())
	}
	_, err := h.CreateAccount(ctx, bob, fee, week, "")
	require.NoError(t, err)

	owned, err := h.ListAccountsByOwner(ctx, owner)
	require.NoError(t, err)
	got := make([]string, len(owned))
	for i, accountID := range owned {
		got[i] = accountID.String()
	}
	assert.Equal(t, want, got)

	none, err := h.ListAccountsByOwner(ctx, charlie)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRegisterSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.createAccount(t)

	t.Run("unknown caller", func(t *testing.T) {
		err := h.RegisterSubscription(ctx, alice, bob)
		assert.ErrorIs(t, err, subledger.ErrUnauthorized)

		err = h.RegisterSubscription(ctx, types.Identity(id.NewAccountID().String()), bob)
		assert.ErrorIs(t, err, subledger.ErrUnauthorized)

		subscribed, err := h.ListAccountsBySubscriber(ctx, bob)
		require.NoError(t, err)
		assert.Empty(t, subscribed)
	})

	t.Run("known account is idempotent", func(t *testing.T) {
		caller := types.Identity(a.ID.String())
		require.NoError(t, h.RegisterSubscription(ctx, caller, bob))
		require.NoError(t, h.RegisterSubscription(ctx, caller, bob))

		subscribed, err := h.ListAccountsBySubscriber(ctx, bob)
		require.NoError(t, err)
		require.Len(t, subscribed, 1)
		assert.Equal(t, a.ID.String(), subscribed[0].String())
	})
}

func TestSubscriberIndexHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.createAccount(t)
	second, err := h.CreateAccount(ctx, bob, fee, week, "second")
	require.NoError(t, err)

	// Subscribe to the second account first; the index keeps first-activation
	// order and never shrinks.
	_, err = h.Subscribe(ctx, second.ID, alice, types.NewAmount(500))
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, first.ID, alice, types.NewAmount(500))
	require.NoError(t, err)

	_, err = h.Unsubscribe(ctx, first.ID, alice)
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, first.ID, alice, ether(1))
	require.NoError(t, err)
	_, err = h.Unsubscribe(ctx, second.ID, alice)
	require.NoError(t, err)

	subscribed, err := h.ListAccountsBySubscriber(ctx, alice)
	require.NoError(t, err)
	require.Len(t, subscribed, 2)
	assert.Equal(t, second.ID.String(), subscribed[0].String())
	assert.Equal(t, first.ID.String(), subscribed[1].String())
}

func TestIsKnownAccountUnknown(t *testing.T) {
	h := newHarness(t)

	known, err := h.IsKnownAccount(context.Background(), id.NewAccountID())
	require.NoError(t, err)
	assert.False(t, known)
}
