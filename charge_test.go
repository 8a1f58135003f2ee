package subledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

// chargeFixture subscribes alice with 6 ether and bob with 13 ether, leaving
// an owner balance of 200.
func chargeFixture(t *testing.T, h *harness) id.AccountID {
	t.Helper()
	ctx := context.Background()
	a := h.createAccount(t)

	_, err := h.Subscribe(ctx, a.ID, alice, ether(6))
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, a.ID, bob, ether(13))
	require.NoError(t, err)

	require.Equal(t, "200", h.account(t, a.ID).OwnerBalance.String())
	h.recorder.Reset()
	return a.ID
}

func TestChargeRequiresOwner(t *testing.T) {
	h := newHarness(t)
	accountID := chargeFixture(t, h)
	h.clock.Advance(week)

	_, err := h.ChargeSubscriptions(context.Background(), accountID, alice, []types.Identity{alice, bob})
	require.ErrorIs(t, err, subledger.ErrUnauthorized)
	assert.True(t, subledger.IsAuthError(err))

	assertAmount(t, types.NewAmount(200), h.account(t, accountID).OwnerBalance)
	assert.Empty(t, h.recorder.Events())
}

func TestChargeCancelsWhenBalanceBelowFee(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		h := newHarnessWith(t, newStore(t))
		ctx := context.Background()
		accountID := chargeFixture(t, h)

		_, err := h.Subscribe(ctx, accountID, charlie, types.NewAmount(150))
		require.NoError(t, err)
		before := h.account(t, accountID).SubscriberCount
		h.recorder.Reset()

		h.clock.Advance(week)
		now := h.clock.Now()

		results, err := h.ChargeSubscriptions(ctx, accountID, owner, []types.Identity{charlie})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, subledger.ChargeOutcomeCanceled, results[0].Outcome)
		assertAmount(t, types.NewAmount(50), results[0].Amount)

		got := h.account(t, accountID)
		assertAmount(t, types.NewAmount(350), got.OwnerBalance)
		assert.Equal(t, before-1, got.SubscriberCount)

		sub := h.subscription(t, accountID, charlie)
		assert.False(t, sub.IsSubscribed)
		assert.True(t, sub.Balance.IsZero())
		assert.True(t, now.Equal(sub.LastChargedAt))

		events := h.recorder.Events()
		require.Len(t, events, 2)
		assert.Equal(t, []event.Type{event.TypeSubscriptionCanceled, event.TypeCharged}, eventTypes(events))
		for _, e := range events {
			assert.Equal(t, charlie, e.Party)
			assertAmount(t, types.NewAmount(50), e.Amount)
			assert.True(t, now.Equal(e.OccurredAt))
		}
		h.assertBalanced(t, accountID)
	})
}

func TestChargeRenewsWhenBalanceCoversFee(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore storeFactory) {
		h := newHarnessWith(t, newStore(t))
		ctx := context.Background()
		accountID := chargeFixture(t, h)

		h.clock.Advance(week)
		now := h.clock.Now()

		results, err := h.ChargeSubscriptions(ctx, accountID, owner, []types.Identity{alice})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, subledger.ChargeOutcomeCharged, results[0].Outcome)
		assertAmount(t, fee, results[0].Amount)

		assertAmount(t, types.NewAmount(300), h.account(t, accountID).OwnerBalance)

		sub := h.subscription(t, accountID, alice)
		assert.True(t, sub.IsSubscribed)
		assertAmount(t, ether(6).Sub(types.NewAmount(200)), sub.Balance)
		assert.True(t, now.Equal(sub.LastChargedAt))
		assert.True(t, epoch.Equal(sub.SubscribedAt))

		events := h.recorder.Events()
		require.Len(t, events, 1)
		assert.Equal(t, event.TypeCharged, events[0].Type)
		assertAmount(t, fee, events[0].Amount, "renewal charges exactly the fee")
		h.assertBalanced(t, accountID)
	})
}

func TestChargeBeforePeriodElapses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	accountID := chargeFixture(t, h)

	h.clock.Advance(week - time.Second)

	results, err := h.ChargeSubscriptions(ctx, accountID, owner, []types.Identity{alice})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, subledger.ChargeOutcomeSkipped, results[0].Outcome)
	assert.Equal(t, subledger.SkipNotDue, results[0].Reason)

	assertAmount(t, types.NewAmount(200), h.account(t, accountID).OwnerBalance)
	sub := h.subscription(t, accountID, alice)
	assert.True(t, sub.IsSubscribed)
	assertAmount(t, ether(6).Sub(fee), sub.Balance)
	assert.True(t, epoch.Equal(sub.LastChargedAt))
	assert.True(t, epoch.Equal(sub.SubscribedAt))
	assert.Empty(t, h.recorder.Events())

	// Exactly one period later it is due.
	h.clock.Advance(time.Second)
	results, err = h.ChargeSubscriptions(ctx, accountID, owner, []types.Identity{alice})
	require.NoError(t, err)
	assert.Equal(t, subledger.ChargeOutcomeCharged, results[0].Outcome)
}

func TestChargeIsIdempotentWithinPeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	accountID := chargeFixture(t, h)
	h.clock.Advance(week)

	batch := []types.Identity{alice, bob, alice}
	results, err := h.ChargeSubscriptions(ctx, accountID, owner, batch)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, subledger.ChargeOutcomeCharged, results[0].Outcome)
	assert.Equal(t, subledger.ChargeOutcomeCharged, results[1].Outcome)
	assert.Equal(t, subledger.ChargeOutcomeSkipped, results[2].Outcome)
	assert.Equal(t, subledger.SkipNotDue, results[2].Reason)

	results, err = h.ChargeSubscriptions(ctx, accountID, owner, batch)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, subledger.ChargeOutcomeSkipped, r.Outcome)
	}

	assertAmount(t, types.NewAmount(400), h.account(t, accountID).OwnerBalance)
	h.assertBalanced(t, accountID)
}

func TestChargeSkipsInactiveAndUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	accountID := chargeFixture(t, h)

	_, err := h.Unsubscribe(ctx, accountID, bob)
	require.NoError(t, err)
	h.recorder.Reset()
	h.clock.Advance(2 * week)

	results, err := h.ChargeSubscriptions(ctx, accountID, owner, []types.Identity{bob, "stranger", alice})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, subledger.SkipNotSubscribed, results[0].Reason)
	assert.Equal(t, subledger.SkipNotSubscribed, results[1].Reason)
	assert.Equal(t, subledger.ChargeOutcomeCharged, results[2].Outcome)

	// A late charge collects one fee, not one per elapsed period.
	assertAmount(t, ether(6).Sub(types.NewAmount(200)), h.subscription(t, accountID, alice).Balance)
	assert.Len(t, h.recorder.Events(), 1)
}

func TestChargeEmptyBatch(t *testing.T) {
	h := newHarness(t)
	accountID := chargeFixture(t, h)

	results, err := h.ChargeSubscriptions(context.Background(), accountID, owner, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// ──────────────────────────────────────────────────
// Billing scheduler
// ──────────────────────────────────────────────────

func TestRunBillingCycle(t *testing.T) {
	h := newHarness(t,
		subledger.WithBillingBatchSize(1),
		subledger.WithBillingRate(rate.Inf, 1),
	)
	ctx := context.Background()

	first := chargeFixture(t, h)
	_, err := h.Subscribe(ctx, first, charlie, types.NewAmount(150))
	require.NoError(t, err)

	second, err := h.CreateAccount(ctx, bob, types.NewAmount(10), 2*week, "fortnightly")
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, second.ID, alice, types.NewAmount(100))
	require.NoError(t, err)

	// An account with no subscribers is never scanned.
	_, err = h.CreateAccount(ctx, charlie, fee, week, "empty")
	require.NoError(t, err)

	h.clock.Advance(week)

	report, err := h.RunBillingCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accounts)
	assert.Equal(t, 2, report.Charged)
	assert.Equal(t, 1, report.Canceled)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, h.recorder.cycles)

	assertAmount(t, types.NewAmount(550), h.account(t, first).OwnerBalance)
	assertAmount(t, types.NewAmount(10), h.account(t, second.ID).OwnerBalance)

	// Nothing is due on an immediate rerun.
	report, err = h.RunBillingCycle(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Charged+report.Canceled)

	h.clock.Advance(week)
	report, err = h.RunBillingCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accounts)
	assert.Equal(t, 3, report.Charged)

	h.assertBalanced(t, first)
	h.assertBalanced(t, second.ID)
}

func TestRunBillingCycleCanceledContext(t *testing.T) {
	h := newHarness(t, subledger.WithBillingRate(rate.Every(time.Hour), 1))
	ctx := context.Background()

	first := chargeFixture(t, h)
	second, err := h.CreateAccount(ctx, bob, fee, week, "")
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, second.ID, alice, ether(1))
	require.NoError(t, err)
	h.clock.Advance(week)

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	// The first account uses the single burst token; the second waits on the
	// limiter and the deadline ends the cycle.
	report, err := h.RunBillingCycle(cctx)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Charged)
	assertAmount(t, types.NewAmount(400), h.account(t, first).OwnerBalance)
	assertAmount(t, fee, h.account(t, second.ID).OwnerBalance)
}
