// Package transfer defines the value-transfer primitive the ledger pays out
// through, with an in-memory settlement wallet and a logging adapter.
package transfer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

// Reason names why value left the ledger.
type Reason string

const (
	ReasonOwnerWithdrawal      Reason = "owner_withdrawal"
	ReasonSubscriberWithdrawal Reason = "subscriber_withdrawal"
	ReasonRefund               Reason = "refund"
)

// Transfer is a single payout from an account to an external identity.
type Transfer struct {
	ID        id.TransferID  `json:"id"`
	AccountID id.AccountID   `json:"account_id"`
	To        types.Identity `json:"to"`
	Amount    types.Amount   `json:"amount"`
	Reason    Reason         `json:"reason"`
	CreatedAt time.Time      `json:"created_at"`
}

// Transferer moves value out of the ledger. A returned error aborts the
// operation that requested the payout.
type Transferer interface {
	Transfer(ctx context.Context, t *Transfer) error
}

// ErrRejected is returned by adapters that refuse a payout.
var ErrRejected = errors.New("transfer: rejected")

// ──────────────────────────────────────────────────
// Logging adapter
// ──────────────────────────────────────────────────

// LogTransferer accepts every payout and records it to a logger. It is used
// where settlement happens outside the process.
type LogTransferer struct {
	logger *slog.Logger
}

// NewLogTransferer returns a LogTransferer writing to logger.
func NewLogTransferer(logger *slog.Logger) *LogTransferer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransferer{logger: logger}
}

// Transfer implements Transferer.
func (l *LogTransferer) Transfer(ctx context.Context, t *Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "transfer settled",
		"transfer_id", t.ID.String(),
		"account_id", t.AccountID.String(),
		"to", t.To.String(),
		"amount", t.Amount.String(),
		"reason", string(t.Reason),
	)
	return nil
}
