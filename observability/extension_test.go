package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/observability"
	"github.com/xraph/subledger/types"
)

func evt(typ event.Type, amount int64) *event.Event {
	return event.New(typ, id.NewAccountID(), "alice", types.NewAmount(amount), time.Now())
}

func TestMetricsExtension(t *testing.T) {
	m, err := observability.NewMetricsExtension(prometheus.NewRegistry())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.OnAccountCreated(ctx, evt(event.TypeAccountCreated, 0)))
	require.NoError(t, m.OnSubscribed(ctx, evt(event.TypeSubscribed, 150)))
	require.NoError(t, m.OnDeposited(ctx, evt(event.TypeDeposited, 25)))
	require.NoError(t, m.OnCharged(ctx, evt(event.TypeCharged, 100)))
	require.NoError(t, m.OnSubscriptionCanceled(ctx, evt(event.TypeSubscriptionCanceled, 75)))
	require.NoError(t, m.OnCharged(ctx, evt(event.TypeCharged, 75)))
	require.NoError(t, m.OnWithdrawn(ctx, evt(event.TypeWithdrawn, 175)))
	require.NoError(t, m.OnTransferFailed(ctx, "bob", types.NewAmount(1), errors.New("reverted")))
	require.NoError(t, m.OnBillingCycle(ctx, 3, 1, 1, 20*time.Millisecond))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccountsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionEvents.WithLabelValues(observability.SubscriptionSubscribed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionEvents.WithLabelValues(observability.SubscriptionCanceled)))
	assert.Equal(t, 175.0, testutil.ToFloat64(m.Value.WithLabelValues(observability.FlowDeposited)))
	assert.Equal(t, 175.0, testutil.ToFloat64(m.Value.WithLabelValues(observability.FlowCharged)))
	assert.Equal(t, 175.0, testutil.ToFloat64(m.Value.WithLabelValues(observability.FlowWithdrawn)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Charges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransferFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BillingCycles))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BillingCycleDuration))
}

func TestMetricsExtensionDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetricsExtension(reg)
	require.NoError(t, err)

	_, err = observability.NewMetricsExtension(reg)
	assert.Error(t, err)
}
