package subledger

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/types"
)

// ChargeOutcome is what a charge did to one subscription.
type ChargeOutcome string

const (
	ChargeOutcomeCharged  ChargeOutcome = "charged"
	ChargeOutcomeCanceled ChargeOutcome = "canceled"
	ChargeOutcomeSkipped  ChargeOutcome = "skipped"
)

// SkipReason explains a skipped charge.
type SkipReason string

const (
	SkipNotSubscribed SkipReason = "not_subscribed"
	SkipNotDue        SkipReason = "not_due"
)

// ChargeResult reports the charge applied to one subscriber. Amount is the
// fee collected, or the residual swept on cancellation.
type ChargeResult struct {
	Subscriber types.Identity `json:"subscriber"`
	Outcome    ChargeOutcome  `json:"outcome"`
	Reason     SkipReason     `json:"reason,omitempty"`
	Amount     types.Amount   `json:"amount"`
}

// ──────────────────────────────────────────────────
// Charging
// ──────────────────────────────────────────────────

// ChargeSubscriptions bills each listed subscriber whose period has elapsed.
// A subscriber whose balance no longer covers the fee is canceled and the
// remaining balance is swept to the owner. Only the owner may charge.
//
// Identities that are inactive or not yet due are skipped; skips are not
// errors. Charging is idempotent within a period.
func (l *Ledger) ChargeSubscriptions(ctx context.Context, accountID id.AccountID, caller types.Identity, subscribers []types.Identity) ([]ChargeResult, error) {
	unlock := l.accountLocks.Lock(accountID.String())
	defer unlock()

	now := l.clock.Now()
	var results []ChargeResult

	err := l.commit(ctx, func(tx store.Store) ([]*event.Event, error) {
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !a.IsOwner(caller) {
			return nil, ErrUnauthorized
		}

		results = make([]ChargeResult, 0, len(subscribers))
		var events []*event.Event
		changed := false

		for _, subscriber := range subscribers {
			sub, err := lookupSubscription(ctx, tx, accountID, subscriber)
			if err != nil {
				return nil, err
			}

			res := ChargeResult{Subscriber: subscriber, Outcome: ChargeOutcomeSkipped}
			switch {
			case sub == nil || !sub.IsSubscribed:
				res.Reason = SkipNotSubscribed
			case !sub.IsDue(now, a.Period):
				res.Reason = SkipNotDue
			case !sub.Balance.LessThan(a.Fee):
				sub.Balance = sub.Balance.Sub(a.Fee)
				sub.LastChargedAt = now
				a.OwnerBalance = a.OwnerBalance.Add(a.Fee)

				res.Outcome = ChargeOutcomeCharged
				res.Amount = a.Fee
				events = append(events,
					event.New(event.TypeCharged, accountID, subscriber, a.Fee, now),
				)
			default:
				swept := sub.Balance
				sub.Balance = types.ZeroAmount()
				sub.IsSubscribed = false
				sub.LastChargedAt = now
				a.OwnerBalance = a.OwnerBalance.Add(swept)
				a.SubscriberCount--

				res.Outcome = ChargeOutcomeCanceled
				res.Amount = swept
				events = append(events,
					event.New(event.TypeSubscriptionCanceled, accountID, subscriber, swept, now),
					event.New(event.TypeCharged, accountID, subscriber, swept, now),
				)
			}

			if res.Outcome != ChargeOutcomeSkipped {
				if err := tx.SaveSubscription(ctx, sub); err != nil {
					return nil, err
				}
				changed = true
			}
			results = append(results, res)
		}

		if changed {
			a.Touch(now)
			if err := tx.UpdateAccount(ctx, a); err != nil {
				return nil, err
			}
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ──────────────────────────────────────────────────
// Billing scheduler
// ──────────────────────────────────────────────────

// BillingReport summarizes one billing cycle.
type BillingReport struct {
	Accounts int           `json:"accounts"`
	Charged  int           `json:"charged"`
	Canceled int           `json:"canceled"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// RunBillingCycle charges every due subscription of every account that has
// active subscribers, acting as each account's owner. Accounts are paced by
// the billing rate limiter. A failure on one account is logged and counted;
// the cycle moves on.
func (l *Ledger) RunBillingCycle(ctx context.Context) (*BillingReport, error) {
	start := time.Now()
	report := &BillingReport{}

	accounts, err := l.billableAccounts(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range accounts {
		if err := l.billingLimiter.Wait(ctx); err != nil {
			return report, err
		}

		charged, canceled, err := l.billAccount(ctx, a)
		if err != nil {
			report.Failed++
			l.logger.Error("failed to bill account",
				"account_id", a.ID.String(),
				"error", err,
			)
			continue
		}
		if charged+canceled > 0 {
			report.Accounts++
		}
		report.Charged += charged
		report.Canceled += canceled
	}

	report.Elapsed = time.Since(start)
	l.plugins.EmitBillingCycle(ctx, report.Accounts, report.Charged, report.Canceled, report.Elapsed)

	l.logger.Debug("billing cycle complete",
		"accounts", report.Accounts,
		"charged", report.Charged,
		"canceled", report.Canceled,
		"failed", report.Failed,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	return report, nil
}

// billableAccounts pages through accounts with active subscribers. The full
// list is collected first because charging can change the filter's result.
func (l *Ledger) billableAccounts(ctx context.Context) ([]*account.Account, error) {
	var all []*account.Account
	for offset := 0; ; offset += l.billingBatchSize {
		page, err := l.store.ListAccounts(ctx, account.ListOpts{
			WithSubscribers: true,
			Limit:           l.billingBatchSize,
			Offset:          offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list billable accounts: %w", err)
		}
		all = append(all, page...)
		if len(page) < l.billingBatchSize {
			return all, nil
		}
	}
}

func (l *Ledger) billAccount(ctx context.Context, a *account.Account) (charged, canceled int, err error) {
	subs, err := l.store.ListSubscriptions(ctx, a.ID, account.SubscriptionListOpts{ActiveOnly: true})
	if err != nil {
		return 0, 0, err
	}

	now := l.clock.Now()
	due := make([]types.Identity, 0, len(subs))
	for _, sub := range subs {
		if sub.IsDue(now, a.Period) {
			due = append(due, sub.Subscriber)
		}
	}
	if len(due) == 0 {
		return 0, 0, nil
	}

	results, err := l.ChargeSubscriptions(ctx, a.ID, a.Owner, due)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range results {
		switch r.Outcome {
		case ChargeOutcomeCharged:
			charged++
		case ChargeOutcomeCanceled:
			canceled++
		}
	}
	return charged, canceled, nil
}
