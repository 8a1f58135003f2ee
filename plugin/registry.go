package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/types"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onEvent                []OnEvent
	onAccountCreated       []OnAccountCreated
	onSubscribed           []OnSubscribed
	onDeposited            []OnDeposited
	onWithdrawn            []OnWithdrawn
	onUnsubscribed         []OnUnsubscribed
	onCharged              []OnCharged
	onSubscriptionCanceled []OnSubscriptionCanceled
	onTransferFailed       []OnTransferFailed
	onBillingCycle         []OnBillingCycle
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEvent); ok {
		r.onEvent = append(r.onEvent, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnSubscribed); ok {
		r.onSubscribed = append(r.onSubscribed, v)
	}
	if v, ok := p.(OnDeposited); ok {
		r.onDeposited = append(r.onDeposited, v)
	}
	if v, ok := p.(OnWithdrawn); ok {
		r.onWithdrawn = append(r.onWithdrawn, v)
	}
	if v, ok := p.(OnUnsubscribed); ok {
		r.onUnsubscribed = append(r.onUnsubscribed, v)
	}
	if v, ok := p.(OnCharged); ok {
		r.onCharged = append(r.onCharged, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnTransferFailed); ok {
		r.onTransferFailed = append(r.onTransferFailed, v)
	}
	if v, ok := p.(OnBillingCycle); ok {
		r.onBillingCycle = append(r.onBillingCycle, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnEvent)(nil)).Elem(), "OnEvent")
	check(reflect.TypeOf((*OnAccountCreated)(nil)).Elem(), "OnAccountCreated")
	check(reflect.TypeOf((*OnSubscribed)(nil)).Elem(), "OnSubscribed")
	check(reflect.TypeOf((*OnDeposited)(nil)).Elem(), "OnDeposited")
	check(reflect.TypeOf((*OnWithdrawn)(nil)).Elem(), "OnWithdrawn")
	check(reflect.TypeOf((*OnUnsubscribed)(nil)).Elem(), "OnUnsubscribed")
	check(reflect.TypeOf((*OnCharged)(nil)).Elem(), "OnCharged")
	check(reflect.TypeOf((*OnSubscriptionCanceled)(nil)).Elem(), "OnSubscriptionCanceled")
	check(reflect.TypeOf((*OnTransferFailed)(nil)).Elem(), "OnTransferFailed")
	check(reflect.TypeOf((*OnBillingCycle)(nil)).Elem(), "OnBillingCycle")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, ledger)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitEvents dispatches committed events in order, first to OnEvent plugins
// and then to the hook matching each event's type.
func (r *Registry) EmitEvents(ctx context.Context, events []*event.Event) {
	for _, e := range events {
		r.emitEvent(ctx, e)
	}
}

func (r *Registry) emitEvent(ctx context.Context, e *event.Event) {
	r.mu.RLock()
	catchAll := r.onEvent
	r.mu.RUnlock()

	for _, p := range catchAll {
		r.call(ctx, p.Name(), "OnEvent", func() error {
			return p.OnEvent(ctx, e)
		})
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	switch e.Type {
	case event.TypeAccountCreated:
		for _, p := range r.onAccountCreated {
			r.call(ctx, p.Name(), "OnAccountCreated", func() error { return p.OnAccountCreated(ctx, e) })
		}
	case event.TypeSubscribed:
		for _, p := range r.onSubscribed {
			r.call(ctx, p.Name(), "OnSubscribed", func() error { return p.OnSubscribed(ctx, e) })
		}
	case event.TypeDeposited:
		for _, p := range r.onDeposited {
			r.call(ctx, p.Name(), "OnDeposited", func() error { return p.OnDeposited(ctx, e) })
		}
	case event.TypeWithdrawn:
		for _, p := range r.onWithdrawn {
			r.call(ctx, p.Name(), "OnWithdrawn", func() error { return p.OnWithdrawn(ctx, e) })
		}
	case event.TypeUnsubscribed:
		for _, p := range r.onUnsubscribed {
			r.call(ctx, p.Name(), "OnUnsubscribed", func() error { return p.OnUnsubscribed(ctx, e) })
		}
	case event.TypeCharged:
		for _, p := range r.onCharged {
			r.call(ctx, p.Name(), "OnCharged", func() error { return p.OnCharged(ctx, e) })
		}
	case event.TypeSubscriptionCanceled:
		for _, p := range r.onSubscriptionCanceled {
			r.call(ctx, p.Name(), "OnSubscriptionCanceled", func() error { return p.OnSubscriptionCanceled(ctx, e) })
		}
	}
}

// EmitTransferFailed emits a transfer failure.
func (r *Registry) EmitTransferFailed(ctx context.Context, to types.Identity, amount types.Amount, transferErr error) {
	r.mu.RLock()
	plugins := r.onTransferFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnTransferFailed", func() error {
			return p.OnTransferFailed(ctx, to, amount, transferErr)
		})
	}
}

// EmitBillingCycle emits a billing scheduler pass summary.
func (r *Registry) EmitBillingCycle(ctx context.Context, accounts, charged, canceled int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onBillingCycle
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnBillingCycle", func() error {
			return p.OnBillingCycle(ctx, accounts, charged, canceled, elapsed)
		})
	}
}

// call runs a hook with a timeout and logs failures. Plugins never fail or
// block a ledger operation.
func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
