package gormstore

import (
	"time"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/event"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/types"
)

// Amounts are persisted as decimal strings. SQLite's numeric affinity would
// round wei-scale integers through float64.

// ==================== Account models ====================

type accountModel struct {
	Seq             int64  `gorm:"primaryKey;autoIncrement"`
	ID              string `gorm:"size:64;not null;uniqueIndex"`
	Owner           string `gorm:"size:255;not null;index"`
	Fee             string `gorm:"size:80;not null"`
	PeriodNanos     int64  `gorm:"not null"`
	Description     string `gorm:"type:text"`
	OwnerBalance    string `gorm:"size:80;not null"`
	SubscriberCount int64  `gorm:"not null;default:0;index"`
	TotalDeposited  string `gorm:"size:80;not null"`
	TotalWithdrawn  string `gorm:"size:80;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (accountModel) TableName() string { return "subledger_accounts" }

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:              a.ID.String(),
		Owner:           a.Owner.String(),
		Fee:             a.Fee.String(),
		PeriodNanos:     int64(a.Period),
		Description:     a.Description,
		OwnerBalance:    a.OwnerBalance.String(),
		SubscriberCount: a.SubscriberCount,
		TotalDeposited:  a.TotalDeposited.String(),
		TotalWithdrawn:  a.TotalWithdrawn.String(),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAmounts(m.Fee, m.OwnerBalance, m.TotalDeposited, m.TotalWithdrawn)
	if err != nil {
		return nil, err
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:              accountID,
		Owner:           types.Identity(m.Owner),
		Fee:             amounts[0],
		Period:          time.Duration(m.PeriodNanos),
		Description:     m.Description,
		OwnerBalance:    amounts[1],
		SubscriberCount: m.SubscriberCount,
		TotalDeposited:  amounts[2],
		TotalWithdrawn:  amounts[3],
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	Seq           int64  `gorm:"primaryKey;autoIncrement"`
	AccountID     string `gorm:"size:64;not null;uniqueIndex:idx_subledger_sub_account_subscriber"`
	Subscriber    string `gorm:"size:255;not null;uniqueIndex:idx_subledger_sub_account_subscriber"`
	IsSubscribed  bool   `gorm:"not null;default:false"`
	Balance       string `gorm:"size:80;not null"`
	SubscribedAt  time.Time
	LastChargedAt time.Time
}

func (subscriptionModel) TableName() string { return "subledger_subscriptions" }

func toSubscriptionModel(s *account.Subscription) *subscriptionModel {
	return &subscriptionModel{
		AccountID:     s.AccountID.String(),
		Subscriber:    s.Subscriber.String(),
		IsSubscribed:  s.IsSubscribed,
		Balance:       s.Balance.String(),
		SubscribedAt:  s.SubscribedAt,
		LastChargedAt: s.LastChargedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*account.Subscription, error) {
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	balance, err := types.ParseAmount(m.Balance)
	if err != nil {
		return nil, err
	}

	return &account.Subscription{
		AccountID:     accountID,
		Subscriber:    types.Identity(m.Subscriber),
		IsSubscribed:  m.IsSubscribed,
		Balance:       balance,
		SubscribedAt:  m.SubscribedAt.UTC(),
		LastChargedAt: m.LastChargedAt.UTC(),
	}, nil
}

// ==================== Registry models ====================

type ownerIndexModel struct {
	Seq       int64  `gorm:"primaryKey;autoIncrement"`
	Owner     string `gorm:"size:255;not null;index"`
	AccountID string `gorm:"size:64;not null"`
}

func (ownerIndexModel) TableName() string { return "subledger_owner_accounts" }

type subscriberIndexModel struct {
	Seq        int64  `gorm:"primaryKey;autoIncrement"`
	Subscriber string `gorm:"size:255;not null;uniqueIndex:idx_subledger_subscriber_account"`
	AccountID  string `gorm:"size:64;not null;uniqueIndex:idx_subledger_subscriber_account"`
}

func (subscriberIndexModel) TableName() string { return "subledger_subscriber_accounts" }

// ==================== Event models ====================

type eventModel struct {
	Seq         int64  `gorm:"primaryKey;autoIncrement"`
	ID          string `gorm:"size:64;not null;uniqueIndex"`
	Type        string `gorm:"size:64;not null"`
	AccountID   string `gorm:"size:64;not null;index"`
	Party       string `gorm:"size:255;not null"`
	Amount      string `gorm:"size:80;not null"`
	Description string `gorm:"type:text"`
	OccurredAt  time.Time
}

func (eventModel) TableName() string { return "subledger_events" }

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		AccountID:   e.AccountID.String(),
		Party:       e.Party.String(),
		Amount:      e.Amount.String(),
		Description: e.Description,
		OccurredAt:  e.OccurredAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}

	return &event.Event{
		ID:          eventID,
		Type:        event.Type(m.Type),
		AccountID:   accountID,
		Party:       types.Identity(m.Party),
		Amount:      amount,
		Description: m.Description,
		OccurredAt:  m.OccurredAt.UTC(),
	}, nil
}

func parseAmounts(values ...string) ([]types.Amount, error) {
	out := make([]types.Amount, len(values))
	for i, v := range values {
		a, err := types.ParseAmount(v)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}
