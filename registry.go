package subledger

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/types"
)

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

// CreateAccount mints a new ledger account owned by owner, indexes it under
// the owner and emits AccountCreated.
func (l *Ledger) CreateAccount(ctx context.Context, owner types.Identity, fee types.Amount, period time.Duration, description string) (*account.Account, error) {
	if err := validateIdentity("owner", owner); err != nil {
		return nil, err
	}
	if !fee.IsPositive() {
		return nil, ValidationError{Field: "fee", Message: "must be positive"}
	}
	if period <= 0 {
		return nil, ValidationError{Field: "period", Message: "must be positive"}
	}

	l.registryMu.Lock()
	defer l.registryMu.Unlock()

	now := l.clock.Now()
	a := &account.Account{
		Entity:      types.NewEntity(now),
		ID:          id.NewAccountID(),
		Owner:       owner,
		Fee:         fee,
		Period:      period,
		Description: description,
	}

	err := l.commit(ctx, func(tx store.Store) ([]*event.Event, error) {
		if err := tx.CreateAccount(ctx, a); err != nil {
			return nil, err
		}
		if err := tx.AppendOwnerAccount(ctx, owner, a.ID); err != nil {
			return nil, err
		}

		e := event.New(event.TypeAccountCreated, a.ID, owner, types.ZeroAmount(), now)
		e.Description = description
		return []*event.Event{e}, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("account created",
		"account_id", a.ID.String(),
		"owner", owner.String(),
		"fee", fee.String(),
		"period", period,
	)
	return a, nil
}

// RegisterSubscription records that subscriber has subscribed to the account
// identified by caller. Only known accounts may call it, and an account is
// indexed under a subscriber at most once.
func (l *Ledger) RegisterSubscription(ctx context.Context, caller, subscriber types.Identity) error {
	accountID, err := id.ParseAccountID(caller.String())
	if err != nil {
		return ErrUnauthorized
	}
	if err := validateIdentity("subscriber", subscriber); err != nil {
		return err
	}

	l.registryMu.Lock()
	defer l.registryMu.Unlock()

	return l.commit(ctx, func(tx store.Store) ([]*event.Event, error) {
		return nil, registerSubscription(ctx, tx, accountID, subscriber)
	})
}

// registerSubscription must run with the registry lock held.
func registerSubscription(ctx context.Context, tx store.Store, accountID id.AccountID, subscriber types.Identity) error {
	if _, err := tx.GetAccount(ctx, accountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	_, err := tx.AddSubscriberAccount(ctx, subscriber, accountID)
	return err
}

// ListAccountsByOwner returns the accounts owner created, oldest first.
func (l *Ledger) ListAccountsByOwner(ctx context.Context, owner types.Identity) ([]id.AccountID, error) {
	return l.store.ListAccountsByOwner(ctx, owner)
}

// ListAccountsBySubscriber returns every account subscriber has ever
// subscribed to, in order of first subscription.
func (l *Ledger) ListAccountsBySubscriber(ctx context.Context, subscriber types.Identity) ([]id.AccountID, error) {
	return l.store.ListAccountsBySubscriber(ctx, subscriber)
}

// IsKnownAccount reports whether accountID was minted by this registry.
func (l *Ledger) IsKnownAccount(ctx context.Context, accountID id.AccountID) (bool, error) {
	_, err := l.store.GetAccount(ctx, accountID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrAccountNotFound):
		return false, nil
	default:
		return false, err
	}
}

// NumAccounts returns how many accounts the registry has minted.
func (l *Ledger) NumAccounts(ctx context.Context) (int, error) {
	accounts, err := l.store.ListAccounts(ctx, account.ListOpts{})
	if err != nil {
		return 0, err
	}
	return len(accounts), nil
}
