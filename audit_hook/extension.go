// Package audithook bridges subledger events to an audit trail backend.
//
// It defines a local Recorder interface so any backend can be injected at
// wiring time. SlogRecorder writes the trail to a structured logger.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/plugin"
	"github.com/xraph/subledger/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnAccountCreated       = (*Extension)(nil)
	_ plugin.OnSubscribed           = (*Extension)(nil)
	_ plugin.OnDeposited            = (*Extension)(nil)
	_ plugin.OnWithdrawn            = (*Extension)(nil)
	_ plugin.OnUnsubscribed         = (*Extension)(nil)
	_ plugin.OnCharged              = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
	_ plugin.OnTransferFailed       = (*Extension)(nil)
	_ plugin.OnBillingCycle         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder writes audit events to a logger at a level matching their
// severity.
type SlogRecorder struct {
	Logger *slog.Logger
}

// Record implements Recorder.
func (r SlogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError, SeverityCritical:
		level = slog.LevelError
	}

	attrs := []any{
		"action", evt.Action,
		"resource", evt.Resource,
		"resource_id", evt.ResourceID,
		"category", evt.Category,
		"outcome", evt.Outcome,
		"severity", evt.Severity,
	}
	if evt.Reason != "" {
		attrs = append(attrs, "reason", evt.Reason)
	}
	for k, v := range evt.Metadata {
		attrs = append(attrs, k, v)
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, level, "audit", attrs...)
	return nil
}

// Extension bridges subledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, evt.AccountID.String(), CategoryBilling, nil,
		"owner", evt.Party.String(),
		"description", evt.Description,
		"event_id", evt.ID.String(),
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, evt *event.Event) error {
	return e.recordEvent(ctx, ActionSubscribed, SeverityInfo, ResourceSubscription, CategorySubscription, evt)
}

// OnDeposited implements plugin.OnDeposited.
func (e *Extension) OnDeposited(ctx context.Context, evt *event.Event) error {
	return e.recordEvent(ctx, ActionDeposited, SeverityInfo, ResourceSubscription, CategorySubscription, evt)
}

// OnUnsubscribed implements plugin.OnUnsubscribed.
func (e *Extension) OnUnsubscribed(ctx context.Context, evt *event.Event) error {
	return e.recordEvent(ctx, ActionUnsubscribed, SeverityInfo, ResourceSubscription, CategorySubscription, evt)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, evt *event.Event) error {
	return e.recordEvent(ctx, ActionSubscriptionCanceled, SeverityWarning, ResourceSubscription, CategorySubscription, evt)
}

// ──────────────────────────────────────────────────
// Funds hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (e *Extension) OnCharged(ctx context.Context, evt *event.Event) error {
	return e.recordEvent(ctx, ActionCharged, SeverityInfo, ResourceAccount, CategoryPayment, evt)
}

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, evt *event.Event) error {
	return e.recordEvent(ctx, ActionWithdrawn, SeverityInfo, ResourceAccount, CategoryPayment, evt)
}

// OnTransferFailed implements plugin.OnTransferFailed.
func (e *Extension) OnTransferFailed(ctx context.Context, to types.Identity, amount types.Amount, err error) error {
	return e.record(ctx, ActionTransferFailed, SeverityCritical, OutcomeFailure,
		ResourceTransfer, "", CategoryPayment, err,
		"to", to.String(),
		"amount", amount.String(),
	)
}

// OnBillingCycle implements plugin.OnBillingCycle.
func (e *Extension) OnBillingCycle(ctx context.Context, accounts, charged, canceled int, elapsed time.Duration) error {
	return e.record(ctx, ActionBillingCycle, SeverityInfo, OutcomeSuccess,
		ResourceBilling, "", CategoryBilling, nil,
		"accounts", accounts,
		"charged", charged,
		"canceled", canceled,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Extension) recordEvent(ctx context.Context, action, severity, resource, category string, evt *event.Event) error {
	return e.record(ctx, action, severity, OutcomeSuccess,
		resource, evt.AccountID.String(), category, nil,
		"party", evt.Party.String(),
		"amount", evt.Amount.String(),
		"event_id", evt.ID.String(),
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
