// Package memory provides an in-process store.Store. A transaction works on a
// private copy of the state that replaces the shared state only on commit, so
// readers never observe uncommitted writes.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/types"
)

// compile-time interface checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Store = (*txStore)(nil)
)

type subscriptionKey struct {
	account    string
	subscriber types.Identity
}

type state struct {
	// Account storage, plus creation order for stable listings
	accounts     map[string]account.Account
	accountOrder []string

	// Subscription storage
	subscriptions map[subscriptionKey]account.Subscription
	subOrder      map[string][]types.Identity

	// Registry indexes
	byOwner      map[types.Identity][]id.AccountID
	bySubscriber map[types.Identity][]id.AccountID

	// Event log per account
	events map[string][]event.Event
}

// Store is the shared, committed view. Reads take mu; every write runs as a
// transaction, serialized by txMu.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	st     state
	closed bool
}

func New() *Store {
	return &Store{st: newState()}
}

func newState() state {
	return state{
		accounts:      make(map[string]account.Account),
		subscriptions: make(map[subscriptionKey]account.Subscription),
		subOrder:      make(map[string][]types.Identity),
		byOwner:       make(map[types.Identity][]id.AccountID),
		bySubscriber:  make(map[types.Identity][]id.AccountID),
		events:        make(map[string][]event.Event),
	}
}

// clone deep-copies the state. Record values are plain structs, so copying
// the maps and slices is sufficient.
func (st *state) clone() state {
	c := state{
		accounts:      maps.Clone(st.accounts),
		accountOrder:  append([]string(nil), st.accountOrder...),
		subscriptions: maps.Clone(st.subscriptions),
		subOrder:      make(map[string][]types.Identity, len(st.subOrder)),
		byOwner:       make(map[types.Identity][]id.AccountID, len(st.byOwner)),
		bySubscriber:  make(map[types.Identity][]id.AccountID, len(st.bySubscriber)),
		events:        make(map[string][]event.Event, len(st.events)),
	}
	for k, v := range st.subOrder {
		c.subOrder[k] = append([]types.Identity(nil), v...)
	}
	for k, v := range st.byOwner {
		c.byOwner[k] = append([]id.AccountID(nil), v...)
	}
	for k, v := range st.bySubscriber {
		c.bySubscriber[k] = append([]id.AccountID(nil), v...)
	}
	for k, v := range st.events {
		c.events[k] = append([]event.Event(nil), v...)
	}
	return c
}

// read runs fn against the committed state.
func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return subledger.ErrStoreClosed
	}
	return fn(&s.st)
}

// write applies a single mutation as its own transaction.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.Tx(ctx, func(tx store.Store) error {
		return fn(tx.(*txStore).st)
	})
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	return s.write(ctx, func(st *state) error { return st.createAccount(a) })
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (a *account.Account, err error) {
	err = s.read(func(st *state) error {
		a, err = st.getAccount(accountID)
		return err
	})
	return a, err
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	return s.write(ctx, func(st *state) error { return st.updateAccount(a) })
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) (out []*account.Account, err error) {
	err = s.read(func(st *state) error {
		out = st.listAccounts(opts)
		return nil
	})
	return out, err
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(_ context.Context, accountID id.AccountID, subscriber types.Identity) (sub *account.Subscription, err error) {
	err = s.read(func(st *state) error {
		sub, err = st.getSubscription(accountID, subscriber)
		return err
	})
	return sub, err
}

func (s *Store) SaveSubscription(ctx context.Context, sub *account.Subscription) error {
	return s.write(ctx, func(st *state) error {
		st.saveSubscription(sub)
		return nil
	})
}

func (s *Store) ListSubscriptions(_ context.Context, accountID id.AccountID, opts account.SubscriptionListOpts) (out []*account.Subscription, err error) {
	err = s.read(func(st *state) error {
		out = st.listSubscriptions(accountID, opts)
		return nil
	})
	return out, err
}

// ==================== Registry Index ====================

func (s *Store) AppendOwnerAccount(ctx context.Context, owner types.Identity, accountID id.AccountID) error {
	return s.write(ctx, func(st *state) error {
		st.byOwner[owner] = append(st.byOwner[owner], accountID)
		return nil
	})
}

func (s *Store) ListAccountsByOwner(_ context.Context, owner types.Identity) (out []id.AccountID, err error) {
	err = s.read(func(st *state) error {
		out = append([]id.AccountID{}, st.byOwner[owner]...)
		return nil
	})
	return out, err
}

func (s *Store) AddSubscriberAccount(ctx context.Context, subscriber types.Identity, accountID id.AccountID) (added bool, err error) {
	err = s.write(ctx, func(st *state) error {
		added = st.addSubscriberAccount(subscriber, accountID)
		return nil
	})
	return added, err
}

func (s *Store) ListAccountsBySubscriber(_ context.Context, subscriber types.Identity) (out []id.AccountID, err error) {
	err = s.read(func(st *state) error {
		out = append([]id.AccountID{}, st.bySubscriber[subscriber]...)
		return nil
	})
	return out, err
}

// ==================== Event Log ====================

func (s *Store) AppendEvents(ctx context.Context, events []*event.Event) error {
	return s.write(ctx, func(st *state) error {
		st.appendEvents(events)
		return nil
	})
}

func (s *Store) ListEvents(_ context.Context, accountID id.AccountID, opts event.ListOpts) (out []*event.Event, err error) {
	err = s.read(func(st *state) error {
		out = st.listEvents(accountID, opts)
		return nil
	})
	return out, err
}

// ==================== Core ====================

// Tx runs fn against a private copy of the store. The copy replaces the
// committed state only if fn succeeds; until then no reader sees its writes.
func (s *Store) Tx(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return subledger.ErrStoreClosed
	}
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(&txStore{parent: s, st: &work}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return subledger.ErrStoreClosed
	}
	s.st = work
	return nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	return s.read(func(*state) error { return nil })
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// ==================== Transaction View ====================

// txStore is the view handed to a Tx callback. It owns its working state
// exclusively, so it needs no locking. Nested transactions join the outer one.
type txStore struct {
	parent *Store
	st     *state
}

func (t *txStore) CreateAccount(_ context.Context, a *account.Account) error {
	return t.st.createAccount(a)
}

func (t *txStore) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	return t.st.getAccount(accountID)
}

func (t *txStore) UpdateAccount(_ context.Context, a *account.Account) error {
	return t.st.updateAccount(a)
}

func (t *txStore) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return t.st.listAccounts(opts), nil
}

func (t *txStore) GetSubscription(_ context.Context, accountID id.AccountID, subscriber types.Identity) (*account.Subscription, error) {
	return t.st.getSubscription(accountID, subscriber)
}

func (t *txStore) SaveSubscription(_ context.Context, sub *account.Subscription) error {
	t.st.saveSubscription(sub)
	return nil
}

func (t *txStore) ListSubscriptions(_ context.Context, accountID id.AccountID, opts account.SubscriptionListOpts) ([]*account.Subscription, error) {
	return t.st.listSubscriptions(accountID, opts), nil
}

func (t *txStore) AppendOwnerAccount(_ context.Context, owner types.Identity, accountID id.AccountID) error {
	t.st.byOwner[owner] = append(t.st.byOwner[owner], accountID)
	return nil
}

func (t *txStore) ListAccountsByOwner(_ context.Context, owner types.Identity) ([]id.AccountID, error) {
	return append([]id.AccountID{}, t.st.byOwner[owner]...), nil
}

func (t *txStore) AddSubscriberAccount(_ context.Context, subscriber types.Identity, accountID id.AccountID) (bool, error) {
	return t.st.addSubscriberAccount(subscriber, accountID), nil
}

func (t *txStore) ListAccountsBySubscriber(_ context.Context, subscriber types.Identity) ([]id.AccountID, error) {
	return append([]id.AccountID{}, t.st.bySubscriber[subscriber]...), nil
}

func (t *txStore) AppendEvents(_ context.Context, events []*event.Event) error {
	t.st.appendEvents(events)
	return nil
}

func (t *txStore) ListEvents(_ context.Context, accountID id.AccountID, opts event.ListOpts) ([]*event.Event, error) {
	return t.st.listEvents(accountID, opts), nil
}

func (t *txStore) Tx(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *txStore) Migrate(_ context.Context) error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return t.parent.Ping(ctx) }

// Close is a no-op inside a transaction.
func (t *txStore) Close() error { return nil }

// ==================== State Operations ====================

func (st *state) createAccount(a *account.Account) error {
	key := a.ID.String()
	if _, exists := st.accounts[key]; exists {
		return subledger.ErrAlreadyExists
	}
	st.accounts[key] = *a
	st.accountOrder = append(st.accountOrder, key)
	return nil
}

func (st *state) getAccount(accountID id.AccountID) (*account.Account, error) {
	a, ok := st.accounts[accountID.String()]
	if !ok {
		return nil, subledger.ErrAccountNotFound
	}
	return &a, nil
}

func (st *state) updateAccount(a *account.Account) error {
	key := a.ID.String()
	if _, exists := st.accounts[key]; !exists {
		return subledger.ErrAccountNotFound
	}
	st.accounts[key] = *a
	return nil
}

func (st *state) listAccounts(opts account.ListOpts) []*account.Account {
	result := make([]*account.Account, 0)
	for _, key := range st.accountOrder {
		a := st.accounts[key]
		if opts.Owner != "" && a.Owner != opts.Owner {
			continue
		}
		if opts.WithSubscribers && a.SubscriberCount == 0 {
			continue
		}
		result = append(result, &a)
	}
	return paginate(result, opts.Offset, opts.Limit)
}

func (st *state) getSubscription(accountID id.AccountID, subscriber types.Identity) (*account.Subscription, error) {
	sub, ok := st.subscriptions[subscriptionKey{accountID.String(), subscriber}]
	if !ok {
		return nil, subledger.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (st *state) saveSubscription(sub *account.Subscription) {
	acct := sub.AccountID.String()
	key := subscriptionKey{acct, sub.Subscriber}
	if _, exists := st.subscriptions[key]; !exists {
		st.subOrder[acct] = append(st.subOrder[acct], sub.Subscriber)
	}
	st.subscriptions[key] = *sub
}

func (st *state) listSubscriptions(accountID id.AccountID, opts account.SubscriptionListOpts) []*account.Subscription {
	acct := accountID.String()
	result := make([]*account.Subscription, 0)
	for _, subscriber := range st.subOrder[acct] {
		sub := st.subscriptions[subscriptionKey{acct, subscriber}]
		if opts.ActiveOnly && !sub.IsSubscribed {
			continue
		}
		result = append(result, &sub)
	}
	return paginate(result, opts.Offset, opts.Limit)
}

func (st *state) addSubscriberAccount(subscriber types.Identity, accountID id.AccountID) bool {
	for _, existing := range st.bySubscriber[subscriber] {
		if existing.String() == accountID.String() {
			return false
		}
	}
	st.bySubscriber[subscriber] = append(st.bySubscriber[subscriber], accountID)
	return true
}

func (st *state) appendEvents(events []*event.Event) {
	for _, e := range events {
		key := e.AccountID.String()
		st.events[key] = append(st.events[key], *e)
	}
}

func (st *state) listEvents(accountID id.AccountID, opts event.ListOpts) []*event.Event {
	result := make([]*event.Event, 0)
	for _, e := range st.events[accountID.String()] {
		if !opts.Matches(&e) {
			continue
		}
		result = append(result, &e)
	}
	return paginate(result, opts.Offset, opts.Limit)
}

// paginate applies offset and limit. A negative offset counts as zero and a
// non-positive limit means no limit.
func paginate[T any](items []T, offset, limit int) []T {
	offset = max(offset, 0)
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
