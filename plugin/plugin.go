// Package plugin provides an extensible plugin system for subledger.
// Plugins can hook into account lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger event hooks
// ──────────────────────────────────────────────────

// OnEvent receives every committed ledger event.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, e *event.Event) error
}

// OnAccountCreated is called when the registry mints an account.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, e *event.Event) error
}

// OnSubscribed is called when a subscription is activated.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, e *event.Event) error
}

// OnDeposited is called when a subscriber tops up their balance.
type OnDeposited interface {
	Plugin
	OnDeposited(ctx context.Context, e *event.Event) error
}

// OnWithdrawn is called when an owner or subscriber withdraws funds.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, e *event.Event) error
}

// OnUnsubscribed is called when a subscriber leaves and is refunded.
type OnUnsubscribed interface {
	Plugin
	OnUnsubscribed(ctx context.Context, e *event.Event) error
}

// OnCharged is called for every collected fee, including the terminal
// partial charge of a cancellation.
type OnCharged interface {
	Plugin
	OnCharged(ctx context.Context, e *event.Event) error
}

// OnSubscriptionCanceled is called when a charge finds the balance below the
// fee and cancels the subscription.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, e *event.Event) error
}

// ──────────────────────────────────────────────────
// Operational hooks
// ──────────────────────────────────────────────────

// OnTransferFailed is called when the value-transfer primitive rejects a
// payout and the triggering operation is aborted.
type OnTransferFailed interface {
	Plugin
	OnTransferFailed(ctx context.Context, to types.Identity, amount types.Amount, err error) error
}

// OnBillingCycle is called after the billing scheduler completes a pass.
type OnBillingCycle interface {
	Plugin
	OnBillingCycle(ctx context.Context, accounts, charged, canceled int, elapsed time.Duration) error
}
