// Package gormstore implements store.Store on gorm. It backs both the SQLite
// and PostgreSQL stores.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store over a gorm connection.
type Store struct {
	db     *gorm.DB
	inTx   bool
	closed *atomic.Bool
}

// New wraps an open gorm database.
func New(db *gorm.DB) *Store {
	return &Store{db: db, closed: new(atomic.Bool)}
}

// DB returns the underlying gorm database for direct access.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s.closed.Load() {
		return nil, subledger.ErrStoreClosed
	}
	return s.db.WithContext(ctx), nil
}

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	err = db.AutoMigrate(
		&accountModel{},
		&subscriptionModel{},
		&ownerIndexModel{},
		&subscriberIndexModel{},
		&eventModel{},
	)
	if err != nil {
		return fmt.Errorf("subledger/gormstore: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.inTx || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tx runs fn in a database transaction. Calls made on the Store passed to
// fn, including nested Tx calls, join that transaction.
func (s *Store) Tx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true, closed: s.closed})
	})
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Create(toAccountModel(a)).Error; err != nil {
		if isDuplicateKey(err) {
			return subledger.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	m := new(accountModel)
	if err := s.lockRows(db).Where("id = ?", accountID.String()).Take(m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subledger.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	m := toAccountModel(a)
	res := db.Model(&accountModel{}).
		Where("id = ?", m.ID).
		Updates(map[string]any{
			"owner_balance":    m.OwnerBalance,
			"subscriber_count": m.SubscriberCount,
			"total_deposited":  m.TotalDeposited,
			"total_withdrawn":  m.TotalWithdrawn,
			"description":      m.Description,
			"updated_at":       m.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subledger.ErrAccountNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&accountModel{}).Order("seq ASC")
	if opts.Owner != "" {
		q = q.Where("owner = ?", opts.Owner.String())
	}
	if opts.WithSubscribers {
		q = q.Where("subscriber_count > 0")
	}

	var models []accountModel
	if err := paginate(q, opts.Offset, opts.Limit).Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*account.Account, 0, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, accountID id.AccountID, subscriber types.Identity) (*account.Subscription, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	m := new(subscriptionModel)
	err = s.lockRows(db).Where("account_id = ? AND subscriber = ?", accountID.String(), subscriber.String()).
		Take(m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subledger.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) SaveSubscription(ctx context.Context, sub *account.Subscription) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "subscriber"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_subscribed", "balance", "subscribed_at", "last_charged_at"}),
	}).Create(toSubscriptionModel(sub)).Error
}

func (s *Store) ListSubscriptions(ctx context.Context, accountID id.AccountID, opts account.SubscriptionListOpts) ([]*account.Subscription, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&subscriptionModel{}).
		Where("account_id = ?", accountID.String()).
		Order("seq ASC")
	if opts.ActiveOnly {
		q = q.Where("is_subscribed = ?", true)
	}

	var models []subscriptionModel
	if err := paginate(q, opts.Offset, opts.Limit).Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*account.Subscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

// ==================== Registry Index ====================

func (s *Store) AppendOwnerAccount(ctx context.Context, owner types.Identity, accountID id.AccountID) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(&ownerIndexModel{
		Owner:     owner.String(),
		AccountID: accountID.String(),
	}).Error
}

func (s *Store) ListAccountsByOwner(ctx context.Context, owner types.Identity) ([]id.AccountID, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = db.Model(&ownerIndexModel{}).
		Where("owner = ?", owner.String()).
		Order("seq ASC").
		Pluck("account_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return parseAccountIDs(ids)
}

func (s *Store) AddSubscriberAccount(ctx context.Context, subscriber types.Identity, accountID id.AccountID) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&subscriberIndexModel{
		Subscriber: subscriber.String(),
		AccountID:  accountID.String(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListAccountsBySubscriber(ctx context.Context, subscriber types.Identity) ([]id.AccountID, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = db.Model(&subscriberIndexModel{}).
		Where("subscriber = ?", subscriber.String()).
		Order("seq ASC").
		Pluck("account_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return parseAccountIDs(ids)
}

// ==================== Event Log ====================

func (s *Store) AppendEvents(ctx context.Context, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	models := make([]*eventModel, len(events))
	for i, e := range events {
		models[i] = toEventModel(e)
	}
	return db.Create(&models).Error
}

func (s *Store) ListEvents(ctx context.Context, accountID id.AccountID, opts event.ListOpts) ([]*event.Event, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&eventModel{}).
		Where("account_id = ?", accountID.String()).
		Order("seq ASC")
	if opts.Party != "" {
		q = q.Where("party = ?", opts.Party.String())
	}
	if len(opts.Types) > 0 {
		names := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			names[i] = string(t)
		}
		q = q.Where("type IN ?", names)
	}

	var models []eventModel
	if err := paginate(q, opts.Offset, opts.Limit).Find(&models).Error; err != nil {
		return nil, err
	}

	result := make([]*event.Event, 0, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// ==================== Helpers ====================

// lockRows makes a read inside a transaction take a row lock
// (SELECT ... FOR UPDATE), so read-modify-write cycles from other processes
// queue behind this one instead of overwriting it. SQLite has no row locks;
// its database-wide write lock already serializes writers there.
func (s *Store) lockRows(db *gorm.DB) *gorm.DB {
	if !s.inTx || s.db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func paginate(q *gorm.DB, offset, limit int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

func parseAccountIDs(raw []string) ([]id.AccountID, error) {
	out := make([]id.AccountID, 0, len(raw))
	for _, r := range raw {
		accountID, err := id.ParseAccountID(r)
		if err != nil {
			return nil, err
		}
		out = append(out, accountID)
	}
	return out, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
