// Package observability provides a metrics extension for subledger that
// exports lifecycle event counts and value flows to Prometheus.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/plugin"
	"github.com/xraph/subledger/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated       = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed           = (*MetricsExtension)(nil)
	_ plugin.OnDeposited            = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn            = (*MetricsExtension)(nil)
	_ plugin.OnUnsubscribed         = (*MetricsExtension)(nil)
	_ plugin.OnCharged              = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled = (*MetricsExtension)(nil)
	_ plugin.OnTransferFailed       = (*MetricsExtension)(nil)
	_ plugin.OnBillingCycle         = (*MetricsExtension)(nil)
)

const namespace = "subledger"

// Label values for SubscriptionEvents.
const (
	SubscriptionSubscribed   = "subscribed"
	SubscriptionUnsubscribed = "unsubscribed"
	SubscriptionCanceled     = "canceled"
)

// Label values for Value.
const (
	FlowDeposited = "deposited"
	FlowWithdrawn = "withdrawn"
	FlowCharged   = "charged"
	FlowRefunded  = "refunded"
)

// MetricsExtension records system-wide ledger metrics.
// Register it as a plugin to automatically track billing metrics.
type MetricsExtension struct {
	AccountsCreated    prometheus.Counter
	SubscriptionEvents *prometheus.CounterVec
	// Value is the sum of amounts moved, by flow. Amounts are converted to
	// float64 and lose precision at wei scale.
	Value            *prometheus.CounterVec
	Charges          prometheus.Counter
	TransferFailures prometheus.Counter

	BillingCycles        prometheus.Counter
	BillingCycleDuration prometheus.Histogram
	BillingAccounts      prometheus.Histogram
}

// NewMetricsExtension creates a MetricsExtension and registers its collectors
// with reg.
func NewMetricsExtension(reg prometheus.Registerer) (*MetricsExtension, error) {
	m := &MetricsExtension{
		AccountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_created_total",
			Help:      "Ledger accounts minted by the registry.",
		}),
		SubscriptionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_events_total",
			Help:      "Subscription state transitions.",
		}, []string{"action"}),
		Value: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "value_total",
			Help:      "Value moved through ledger accounts, in base units.",
		}, []string{"flow"}),
		Charges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charges_total",
			Help:      "Fees and cancellation sweeps collected.",
		}),
		TransferFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_failures_total",
			Help:      "Payouts rejected by the transfer primitive.",
		}),
		BillingCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_cycles_total",
			Help:      "Completed billing scheduler passes.",
		}),
		BillingCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_cycle_duration_seconds",
			Help:      "Wall time of a billing scheduler pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		BillingAccounts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_cycle_accounts",
			Help:      "Accounts charged per billing scheduler pass.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.AccountsCreated,
		m.SubscriptionEvents,
		m.Value,
		m.Charges,
		m.TransferFailures,
		m.BillingCycles,
		m.BillingCycleDuration,
		m.BillingAccounts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ *event.Event) error {
	m.AccountsCreated.Inc()
	return nil
}

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, e *event.Event) error {
	m.SubscriptionEvents.WithLabelValues(SubscriptionSubscribed).Inc()
	m.Value.WithLabelValues(FlowDeposited).Add(e.Amount.Float64())
	return nil
}

// OnDeposited implements plugin.OnDeposited.
func (m *MetricsExtension) OnDeposited(_ context.Context, e *event.Event) error {
	m.Value.WithLabelValues(FlowDeposited).Add(e.Amount.Float64())
	return nil
}

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, e *event.Event) error {
	m.Value.WithLabelValues(FlowWithdrawn).Add(e.Amount.Float64())
	return nil
}

// OnUnsubscribed implements plugin.OnUnsubscribed.
func (m *MetricsExtension) OnUnsubscribed(_ context.Context, e *event.Event) error {
	m.SubscriptionEvents.WithLabelValues(SubscriptionUnsubscribed).Inc()
	m.Value.WithLabelValues(FlowRefunded).Add(e.Amount.Float64())
	return nil
}

// OnCharged implements plugin.OnCharged.
func (m *MetricsExtension) OnCharged(_ context.Context, e *event.Event) error {
	m.Charges.Inc()
	m.Value.WithLabelValues(FlowCharged).Add(e.Amount.Float64())
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *event.Event) error {
	m.SubscriptionEvents.WithLabelValues(SubscriptionCanceled).Inc()
	return nil
}

// OnTransferFailed implements plugin.OnTransferFailed.
func (m *MetricsExtension) OnTransferFailed(_ context.Context, _ types.Identity, _ types.Amount, _ error) error {
	m.TransferFailures.Inc()
	return nil
}

// OnBillingCycle implements plugin.OnBillingCycle.
func (m *MetricsExtension) OnBillingCycle(_ context.Context, accounts, _, _ int, elapsed time.Duration) error {
	m.BillingCycles.Inc()
	m.BillingCycleDuration.Observe(elapsed.Seconds())
	m.BillingAccounts.Observe(float64(accounts))
	return nil
}
