package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the top-level tenancy unit: a named collection of accounts,
// transactions, budgets and subscriptions shared by a set of members.
// CurrencyCode is the home currency all derived aggregates are expressed in.
type Ledger struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	Name         string `gorm:"not null"`
	CurrencyCode string `gorm:"type:char(3);not null;default:'USD'"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account is a single money container inside a ledger. Balance is a cached
// projection; the authoritative state is the account's transaction history.
type Account struct {
	ID           string          `gorm:"primaryKey;type:uuid"`
	LedgerID     string          `gorm:"type:uuid;index;not null"`
	Name         string          `gorm:"not null"`
	CurrencyCode string          `gorm:"type:char(3);not null"`
	Balance      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0"`
	IsActive     bool            `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transaction is one signed-by-type ledger entry. Amount is always stored
// non-negative. A transfer is two linked rows (TransferPeerID symmetric pair)
// in different accounts; a refund references the original expense through
// RefundOfID but is a first-class income-like entry of its own.
type Transaction struct {
	ID             string          `gorm:"primaryKey;type:uuid"`
	LedgerID       string          `gorm:"type:uuid;index;not null"`
	AccountID      string          `gorm:"type:uuid;index;not null"`
	CategoryID     *string         `gorm:"type:uuid"`
	MerchantID     *string         `gorm:"type:uuid"`
	TxnType        TxnType         `gorm:"type:varchar(16);not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	CurrencyCode   string          `gorm:"type:char(3);not null"`
	Date           time.Time       `gorm:"type:date;index;not null"`
	Description    string          `gorm:"type:text"`
	Notes          string          `gorm:"type:text"`
	ExternalID     *string         `gorm:"uniqueIndex"`
	TransferPeerID *string         `gorm:"type:uuid"`
	RefundOfID     *string         `gorm:"type:uuid"`
	IsReconciled   bool            `gorm:"not null;default:false"`
	ReconciledAt   *time.Time
	CreatedBy      string `gorm:"type:uuid"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Category is a node in the shallow (depth <= 2) category graph, linked to its
// parent by ParentID rather than a materialized tree.
type Category struct {
	ID        string  `gorm:"primaryKey;type:uuid"`
	LedgerID  string  `gorm:"type:uuid;index;not null"`
	ParentID  *string `gorm:"type:uuid"`
	Name      string  `gorm:"not null"`
	IsIncome  bool    `gorm:"not null;default:false"`
	IsActive  bool    `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Merchant is a payee a transaction can be attributed to.
type Merchant struct {
	ID         string  `gorm:"primaryKey;type:uuid"`
	LedgerID   string  `gorm:"type:uuid;index;not null"`
	Name       string  `gorm:"not null"`
	CategoryID *string `gorm:"type:uuid"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Budget defines a spending limit over a recurring period, optionally scoped
// to a single category (nil CategoryID = all categories). AlertThresholds are
// the percent-used levels the consumption calculator reports crossings for.
type Budget struct {
	ID              string          `gorm:"primaryKey;type:uuid"`
	LedgerID        string          `gorm:"type:uuid;index;not null"`
	CategoryID      *string         `gorm:"type:uuid"`
	Name            string          `gorm:"not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Period          BudgetPeriod    `gorm:"type:varchar(16);not null"`
	StartDate       time.Time       `gorm:"type:date;not null"`
	EndDate         *time.Time      `gorm:"type:date"`
	AlertThresholds []int           `gorm:"type:jsonb;serializer:json"`
	IsActive        bool            `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ClassificationRule matches transaction text against a SQL-LIKE-style
// wildcard pattern and assigns category and/or merchant on match. Higher
// priority evaluates first; creation order breaks ties.
type ClassificationRule struct {
	ID           string     `gorm:"primaryKey;type:uuid"`
	LedgerID     string     `gorm:"type:uuid;index;not null"`
	MatchField   MatchField `gorm:"type:varchar(16);not null;default:'description'"`
	MatchPattern string     `gorm:"not null"`
	CategoryID   *string    `gorm:"type:uuid"`
	MerchantID   *string    `gorm:"type:uuid"`
	Priority     int        `gorm:"not null;default:0"`
	IsActive     bool       `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subscription is a recurring charge the generator materializes into expense
// transactions as due dates enter the horizon.
type Subscription struct {
	ID           string          `gorm:"primaryKey;type:uuid"`
	LedgerID     string          `gorm:"type:uuid;index;not null"`
	AccountID    string          `gorm:"type:uuid;not null"`
	CategoryID   *string         `gorm:"type:uuid"`
	MerchantID   *string         `gorm:"type:uuid"`
	Name         string          `gorm:"not null"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	CurrencyCode string          `gorm:"type:char(3);not null"`
	Interval     SubInterval     `gorm:"type:varchar(16);not null"`
	NextDueDate  time.Time       `gorm:"type:date;not null"`
	IsActive     bool            `gorm:"not null;default:true"`
	Notes        string          `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MonthlySummary is the engine-owned per-month aggregate, one row per
// (ledger, year-month), always upserted and never duplicated.
type MonthlySummary struct {
	ID             string          `gorm:"primaryKey;type:uuid"`
	LedgerID       string          `gorm:"type:uuid;uniqueIndex:idx_summary_ledger_month;not null"`
	YearMonth      string          `gorm:"type:char(7);uniqueIndex:idx_summary_ledger_month;not null"`
	TotalIncome    decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	TotalExpense   decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	TotalTransfers decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	NetSavings     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	CurrencyCode   string          `gorm:"type:char(3);not null"`
	ComputedAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReconciliationSnapshot is an immutable audit record comparing a statement
// balance against the balance recomputed from transaction history. Rows
// accumulate; the engine never mutates one after creation.
type ReconciliationSnapshot struct {
	ID               string          `gorm:"primaryKey;type:uuid"`
	LedgerID         string          `gorm:"type:uuid;index;not null"`
	AccountID        string          `gorm:"type:uuid;index;not null"`
	SnapshotDate     time.Time       `gorm:"type:date;not null"`
	StatementBalance decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	ComputedBalance  decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Difference       decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	IsReconciled     bool            `gorm:"not null"`
	ReconciledBy     string          `gorm:"type:uuid"`
	Notes            string          `gorm:"type:text"`
	CreatedAt        time.Time
}

// InsightData is the structured payload of an insight. It always carries a
// "month" tag so regeneration can replace prior rows for that month.
type InsightData map[string]any

// Insight is one human-readable finding emitted by the insight rule engine.
type Insight struct {
	ID          string      `gorm:"primaryKey;type:uuid"`
	LedgerID    string      `gorm:"type:uuid;index;not null"`
	Title       string      `gorm:"not null"`
	Body        string      `gorm:"type:text"`
	InsightType string      `gorm:"type:varchar(32);not null"`
	Data        InsightData `gorm:"type:jsonb;serializer:json"`
	IsRead      bool        `gorm:"not null;default:false"`
	CreatedAt   time.Time
}

// ExchangeRate is one persisted daily rate: base -> quote on RateDate.
// One authoritative rate per currency pair per calendar day.
type ExchangeRate struct {
	ID            string          `gorm:"primaryKey;type:uuid"`
	BaseCurrency  string          `gorm:"type:char(3);uniqueIndex:idx_rate_pair_date;not null"`
	QuoteCurrency string          `gorm:"type:char(3);uniqueIndex:idx_rate_pair_date;not null"`
	RateDate      time.Time       `gorm:"type:date;uniqueIndex:idx_rate_pair_date;not null"`
	Rate          decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Source        string
	CreatedAt     time.Time
}

// AuditEntry is one append-only record written to the audit sink after a
// state-changing engine operation completes.
type AuditEntry struct {
	ID         string `gorm:"primaryKey;type:uuid"`
	LedgerID   string `gorm:"type:uuid;index;not null"`
	TableName  string `gorm:"not null"`
	RecordID   string `gorm:"type:uuid;not null"`
	Action     string `gorm:"not null"`
	ActorID    string `gorm:"type:uuid"`
	BeforeData map[string]any `gorm:"type:jsonb;serializer:json"`
	AfterData  map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt  time.Time
}
