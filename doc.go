// Package subledger provides a creator-subscription billing ledger for Go
// applications.
//
// A creator publishes a ledger account with a fixed fee and billing period.
// Subscribers prepay into the account and are charged once per period from
// their balance. When a balance no longer covers the fee the subscription is
// canceled and the remainder is swept to the creator. A registry indexes
// every account by creator and by subscriber.
//
// subledger is a library, not a service. It provides:
//
//   - Arbitrary-precision amounts, so wei-scale values work unchanged
//   - Per-account serialization with all-or-nothing store transactions
//   - A persisted, queryable event log per account
//   - A rate-limited background billing scheduler
//   - Pluggable payouts through the transfer.Transferer interface
//   - Memory, SQLite and PostgreSQL stores
//   - Audit and Prometheus plugins
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/subledger"
//	    "github.com/xraph/subledger/store/memory"
//	)
//
//	l := subledger.New(memory.New())
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	acct, err := l.CreateAccount(ctx, "creator", subledger.NewAmount(100), 7*24*time.Hour, "weekly")
//
//	// Pay the first fee and prepay the rest.
//	_, err = l.Subscribe(ctx, acct.ID, "fan", subledger.NewAmount(1000))
//
//	// A week later the owner collects.
//	results, err := l.ChargeSubscriptions(ctx, acct.ID, "creator", []subledger.Identity{"fan"})
//
// # Value conservation
//
// For every account, the owner balance plus all subscriber balances equals
// the total deposited minus the total withdrawn. Reconcile reports it.
//
// # Concurrency
//
// Operations on one account are serialized. Registry updates are serialized
// across accounts. Every operation commits in a single store transaction,
// including its payout: if the transfer fails nothing changes.
package subledger
