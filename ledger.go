package subledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/subledger/clock"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/plugin"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/transfer"
	"github.com/xraph/subledger/types"
)

// Ledger is the subscription billing engine. It owns the registry and every
// ledger account stored in its store.
type Ledger struct {
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	clock      clock.Clock
	transferer transfer.Transferer

	// Serialization. Lock order is account, then registry, then store Tx.
	accountLocks *keyedMutex
	registryMu   sync.Mutex

	// Background billing worker
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool

	// Configuration
	billingInterval  time.Duration
	billingLimiter   *rate.Limiter
	billingBatchSize int
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:            s,
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		clock:            clock.System{},
		accountLocks:     newKeyedMutex(),
		stopChan:         make(chan struct{}),
		billingLimiter:   rate.NewLimiter(rate.Inf, 1),
		billingBatchSize: 100,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.transferer == nil {
		l.transferer = transfer.NewLogTransferer(l.logger)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin. A rejected registration, such as a duplicate
// name, is logged and the plugin is skipped.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		if err := l.plugins.Register(p); err != nil {
			l.logger.Warn("plugin registration failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// WithClock sets the time source sampled once per operation.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithTransferer sets the value-transfer primitive used for payouts.
func WithTransferer(t transfer.Transferer) Option {
	return func(l *Ledger) {
		l.transferer = t
	}
}

// WithBillingInterval enables the background billing worker. Zero disables it.
func WithBillingInterval(d time.Duration) Option {
	return func(l *Ledger) {
		l.billingInterval = d
	}
}

// WithBillingRate limits how many accounts per second a billing cycle charges.
func WithBillingRate(r rate.Limit, burst int) Option {
	return func(l *Ledger) {
		l.billingLimiter = rate.NewLimiter(r, burst)
	}
}

// WithBillingBatchSize sets the page size used to scan accounts.
func WithBillingBatchSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.billingBatchSize = n
		}
	}
}

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Start migrates the store, initializes plugins and, when a billing interval
// is configured, starts the billing worker.
func (l *Ledger) Start(ctx context.Context) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}

	// Migrate database
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	if l.billingInterval > 0 {
		l.wg.Add(1)
		go l.billingWorker(context.WithoutCancel(ctx))
	}
	l.started = true

	l.logger.Info("subledger started",
		"billing_interval", l.billingInterval,
		"billing_batch_size", l.billingBatchSize,
		"billing_rate", float64(l.billingLimiter.Limit()),
	)

	return nil
}

// Stop shuts down the Ledger and closes its store.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// billingWorker runs a billing cycle on every tick until Stop.
func (l *Ledger) billingWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.billingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return

		case <-ticker.C:
			cycleCtx, cancel := context.WithCancel(ctx)
			go func() {
				select {
				case <-l.stopChan:
					cancel()
				case <-cycleCtx.Done():
				}
			}()

			if _, err := l.RunBillingCycle(cycleCtx); err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("billing cycle failed", "error", err)
			}
			cancel()
		}
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// commit runs fn inside a store transaction, appends the events it returns to
// the event log in the same transaction, and dispatches them to plugins once
// the transaction has committed.
func (l *Ledger) commit(ctx context.Context, fn func(tx store.Store) ([]*event.Event, error)) error {
	var events []*event.Event

	err := l.store.Tx(ctx, func(tx store.Store) error {
		evs, err := fn(tx)
		if err != nil {
			return err
		}
		if len(evs) > 0 {
			if err := tx.AppendEvents(ctx, evs); err != nil {
				return err
			}
		}
		events = evs
		return nil
	})
	if err != nil {
		var tf *transferFailure
		if errors.As(err, &tf) {
			l.plugins.EmitTransferFailed(ctx, tf.to, tf.amount, tf.err)
		}
		return err
	}

	l.plugins.EmitEvents(ctx, events)
	return nil
}

// transferFailure wraps a rejected payout. It matches ErrTransferFailed and
// the adapter's own error.
type transferFailure struct {
	to     types.Identity
	amount types.Amount
	err    error
}

func (e *transferFailure) Error() string {
	return fmt.Sprintf("%s: %s to %s: %v", ErrTransferFailed, e.amount, e.to, e.err)
}

func (e *transferFailure) Unwrap() []error {
	return []error{ErrTransferFailed, e.err}
}

// payout sends amount to the recipient. Zero amounts are not transferred.
func (l *Ledger) payout(ctx context.Context, accountID id.AccountID, to types.Identity, amount types.Amount, reason transfer.Reason, now time.Time) error {
	if amount.IsZero() {
		return nil
	}

	t := &transfer.Transfer{
		ID:        id.NewTransferID(),
		AccountID: accountID,
		To:        to,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := l.transferer.Transfer(ctx, t); err != nil {
		return &transferFailure{to: to, amount: amount, err: err}
	}
	return nil
}

func validateIdentity(field string, v types.Identity) error {
	if v.IsZero() {
		return ValidationError{Field: field, Message: "must not be empty"}
	}
	return nil
}

func validateAmount(field string, v types.Amount) error {
	if v.IsNegative() {
		return ValidationError{Field: field, Message: "must not be negative"}
	}
	return nil
}
