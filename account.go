package subledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/transfer"
	"github.com/xraph/subledger/types"
)

// ──────────────────────────────────────────────────
// Subscribing
// ──────────────────────────────────────────────────

// Subscribe activates caller's subscription with payment. The first fee is
// collected immediately and the rest is held as the subscriber's prepaid
// balance. Any balance left from an earlier subscription is carried over.
func (l *Ledger) Subscribe(ctx context.Context, accountID id.AccountID, caller types.Identity, payment types.Amount) (*account.Subscription, error) {
	if err := validateIdentity("caller", caller); err != nil {
		return nil, err
	}
	if err := validateAmount("payment", payment); err != nil {
		return nil, err
	}

	unlock := l.accountLocks.Lock(accountID.String())
	defer unlock()

	// The registry callback runs inside the transaction.
	l.registryMu.Lock()
	defer l.registryMu.Unlock()

	now := l.clock.Now()
	var sub *account.Subscription

	err := l.commit(ctx, func(tx store.Store) ([]*event.Event, error) {
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if a.IsOwner(caller) {
			return nil, ErrForbidden
		}
		if payment.LessThan(a.Fee) {
			return nil, fmt.Errorf("%w: payment %s is below fee %s", ErrInsufficientFunds, payment, a.Fee)
		}

		prior, err := lookupSubscription(ctx, tx, accountID, caller)
		if err != nil {
			return nil, err
		}

		sub = &account.Subscription{
			AccountID:     accountID,
			Subscriber:    caller,
			IsSubscribed:  true,
			Balance:       payment.Sub(a.Fee),
			SubscribedAt:  now,
			LastChargedAt: now,
		}
		if prior != nil {
			sub.Balance = sub.Balance.Add(prior.Balance)
		}
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return nil, err
		}

		a.OwnerBalance = a.OwnerBalance.Add(a.Fee)
		a.TotalDeposited = a.TotalDeposited.Add(payment)
		if prior == nil || !prior.IsSubscribed {
			a.SubscriberCount++
		}
		a.Touch(now)
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return nil, err
		}

		if err := registerSubscription(ctx, tx, accountID, caller); err != nil {
			return nil, err
		}

		return []*event.Event{
			event.New(event.TypeSubscribed, accountID, caller, payment, now),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// DepositFunds adds amount to an active subscriber's prepaid balance.
func (l *Ledger) DepositFunds(ctx context.Context, accountID id.AccountID, caller types.Identity, amount types.Amount) (*account.Subscription, error) {
	if err := validateIdentity("caller", caller); err != nil {
		return nil, err
	}
	if err := validateAmount("amount", amount); err != nil {
		return nil, err
	}

	unlock := l.accountLocks.Lock(accountID.String())
	defer unlock()

	now := l.clock.Now()
	var sub *account.Subscription

	err := l.commit(ctx, func(tx store.Store) ([]*event.Event, error) {
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if a.IsOwner(caller) {
			return nil, ErrForbidden
		}

		sub, err = lookupSubscription(ctx, tx, accountID, caller)
		if err != nil {
			return nil, err
		}
		if sub == nil || !sub.IsSubscribed {
			return nil, ErrNotSubscribed
		}

		sub.Balance = sub.Balance.Add(amount)
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return nil, err
		}

		a.TotalDeposited = a.TotalDeposited.Add(amount)
		a.Touch(now)
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return nil, err
		}

		return []*event.Event{
			event.New(event.TypeDeposited, accountID, caller, amount, now),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ──────────────────────────────────────────────────
// Withdrawals
// ──────────────────────────────────────────────────

// Withdraw pays amount out to caller, drawing on the owner balance when
// caller owns the account and on caller's subscription balance otherwise.
func (l *Ledger) Withdraw(ctx context.Context, accountID id.AccountID, caller types.Identity, amount types.Amount) error {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a.IsOwner(caller) {
		return l.WithdrawOwnerFunds(ctx, accountID, caller, amount)
	}
	return l.WithdrawSubscriberFunds(ctx, accountID, caller, amount)
}

// WithdrawOwnerFunds pays collected fees out to the owner.
func (l *Ledger) WithdrawOwnerFunds(ctx context.Context, accountID id.AccountID, caller types.Identity, amount types.Amount) error {
	if err := validateAmount("amount", amount); err != nil {
		return err
	}

	unlock := l.accountLocks.Lock(accountID.String())
	defer unlock()

	now := l.clock.Now()

	return l.commit(ctx, func(tx store.Store) ([]*event.Event, error) {
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !a.IsOwner(caller) {
			return nil, ErrUnauthorized
		}
		if amount.GreaterThan(a.OwnerBalance) {
			return nil, fmt.Errorf("%w: owner balance %s, requested %s", ErrInsufficientFunds, a.OwnerBalance, amount)
		}

		a.OwnerBalance = a.OwnerBalance.Sub(amount)
		a.TotalWithdrawn = a.TotalWithdrawn.Add(amount)
		a.Touch(now)
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return nil, err
		}

		if err := l.payout(ctx, accountID, caller, amount, transfer.ReasonOwnerWithdrawal, now); err != nil {
			return nil, err
		}

		return []*event.Event{
			event.New(event.TypeWithdrawn, accountID, caller, amount, now),
		}, nil
	})
}

// WithdrawSubscriberFunds pays part of a subscriber's prepaid balance back to
// them. The subscription need not be active.
func (l *Ledger) WithdrawSubscriberFunds(ctx context.Context, accountID id.AccountID, caller types.Identity, amount types.Amount) error {
	if err := validateIdentity("caller", caller); err != nil {
		return err
	}
	if err := validateAmount("amount", amount); err != nil {
		return err
	}

	unlock := l.accountLocks.Lock(accountID.String())
	defer unlock()

	now := l.clock.Now()

	return l.commit(ctx, func(tx store.Store) ([]*event.Event, error) {
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if a.IsOwner(caller) {
			return nil, ErrForbidden
		}

		sub, err := lookupSubscription(ctx, tx, accountID, caller)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, ErrNotSubscribed
		}
		if amount.GreaterThan(sub.Balance) {
			return nil, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, sub.Balance, amount)
		}

		sub.Balance = sub.Balance.Sub(amount)
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return nil, err
		}

		a.TotalWithdrawn = a.TotalWithdrawn.Add(amount)
		a.Touch(now)
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return nil, err
		}

		if err := l.payout(ctx, accountID, caller, amount, transfer.ReasonSubscriberWithdrawal, now); err != nil {
			return nil, err
		}

		return []*event.Event{
			event.New(event.TypeWithdrawn, accountID, caller, amount, now),
		}, nil
	})
}

// ──────────────────────────────────────────────────
// Unsubscribing
// ──────────────────────────────────────────────────

// Unsubscribe deactivates caller's subscription and refunds the whole
// remaining balance. It returns the refunded amount.
func (l *Ledger) Unsubscribe(ctx context.Context, accountID id.AccountID, caller types.Identity) (types.Amount, error) {
	if err := validateIdentity("caller", caller); err != nil {
		return types.Amount{}, err
	}

	unlock := l.accountLocks.Lock(accountID.String())
	defer unlock()

	now := l.clock.Now()
	var refund types.Amount

	err := l.commit(ctx, func(tx store.Store) ([]*event.Event, error) {
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}

		sub, err := lookupSubscription(ctx, tx, accountID, caller)
		if err != nil {
			return nil, err
		}
		if sub == nil || !sub.IsSubscribed {
			return nil, ErrNotSubscribed
		}

		refund = sub.Balance
		sub.Balance = types.ZeroAmount()
		sub.IsSubscribed = false
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return nil, err
		}

		a.SubscriberCount--
		a.TotalWithdrawn = a.TotalWithdrawn.Add(refund)
		a.Touch(now)
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return nil, err
		}

		if err := l.payout(ctx, accountID, caller, refund, transfer.ReasonRefund, now); err != nil {
			return nil, err
		}

		return []*event.Event{
			event.New(event.TypeUnsubscribed, accountID, caller, refund, now),
		}, nil
	})
	if err != nil {
		return types.Amount{}, err
	}
	return refund, nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// GetAccount retrieves an account by ID.
func (l *Ledger) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return l.store.GetAccount(ctx, accountID)
}

// ListAccounts lists accounts in creation order.
func (l *Ledger) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return l.store.ListAccounts(ctx, opts)
}

// GetSubscription retrieves subscriber's record within an account.
func (l *Ledger) GetSubscription(ctx context.Context, accountID id.AccountID, subscriber types.Identity) (*account.Subscription, error) {
	return l.store.GetSubscription(ctx, accountID, subscriber)
}

// ListSubscriptions lists an account's subscription records.
func (l *Ledger) ListSubscriptions(ctx context.Context, accountID id.AccountID, opts account.SubscriptionListOpts) ([]*account.Subscription, error) {
	return l.store.ListSubscriptions(ctx, accountID, opts)
}

// ListEvents returns an account's event log, oldest first.
func (l *Ledger) ListEvents(ctx context.Context, accountID id.AccountID, opts event.ListOpts) ([]*event.Event, error) {
	return l.store.ListEvents(ctx, accountID, opts)
}

// Reconcile checks that the value held by an account equals the value that
// has entered it minus the value that has left it.
func (l *Ledger) Reconcile(ctx context.Context, accountID id.AccountID) (*account.Reconciliation, error) {
	unlock := l.accountLocks.Lock(accountID.String())
	defer unlock()

	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	subs, err := l.store.ListSubscriptions(ctx, accountID, account.SubscriptionListOpts{})
	if err != nil {
		return nil, err
	}

	r := &account.Reconciliation{
		AccountID:      a.ID,
		OwnerBalance:   a.OwnerBalance,
		TotalDeposited: a.TotalDeposited,
		TotalWithdrawn: a.TotalWithdrawn,
	}
	for _, sub := range subs {
		r.SubscriberBalances = r.SubscriberBalances.Add(sub.Balance)
		if sub.IsSubscribed {
			r.ActiveSubscriptions++
		}
	}
	r.Held = r.OwnerBalance.Add(r.SubscriberBalances)
	r.Expected = r.TotalDeposited.Sub(r.TotalWithdrawn)
	r.Balanced = r.Held.Equal(r.Expected) && r.ActiveSubscriptions == a.SubscriberCount

	if !r.Balanced {
		l.logger.Warn("account out of balance",
			"account_id", accountID.String(),
			"held", r.Held.String(),
			"expected", r.Expected.String(),
			"active_subscriptions", r.ActiveSubscriptions,
			"subscriber_count", a.SubscriberCount,
		)
	}
	return r, nil
}

// lookupSubscription returns nil without error when subscriber has never
// subscribed.
func lookupSubscription(ctx context.Context, tx store.Store, accountID id.AccountID, subscriber types.Identity) (*account.Subscription, error) {
	sub, err := tx.GetSubscription(ctx, accountID, subscriber)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	return sub, err
}
