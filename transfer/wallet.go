package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/subledger/types"
)

// compile-time interface check
var _ Transferer = (*Wallet)(nil)

// Wallet settles payouts in memory by crediting the recipient. Failures can
// be injected per recipient or for the next call.
type Wallet struct {
	mu       sync.Mutex
	balances map[types.Identity]types.Amount
	history  []Transfer

	failFor  map[types.Identity]error
	failNext error
}

// NewWallet returns an empty Wallet.
func NewWallet() *Wallet {
	return &Wallet{
		balances: make(map[types.Identity]types.Amount),
		failFor:  make(map[types.Identity]error),
	}
}

// Transfer implements Transferer.
func (w *Wallet) Transfer(ctx context.Context, t *Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.failNext; err != nil {
		w.failNext = nil
		return err
	}
	if err, ok := w.failFor[t.To]; ok {
		return err
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrRejected, t.Amount)
	}

	w.balances[t.To] = w.balances[t.To].Add(t.Amount)
	w.history = append(w.history, *t)
	return nil
}

// BalanceOf returns everything transferred to identity so far.
func (w *Wallet) BalanceOf(identity types.Identity) types.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[identity]
}

// Transfers returns the settled payouts in order.
func (w *Wallet) Transfers() []Transfer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Transfer(nil), w.history...)
}

// FailFor makes every payout to identity fail with err. A nil err clears it.
func (w *Wallet) FailFor(identity types.Identity, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err == nil {
		delete(w.failFor, identity)
		return
	}
	w.failFor[identity] = err
}

// FailNext makes the next payout fail with err.
func (w *Wallet) FailNext(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failNext = err
}
