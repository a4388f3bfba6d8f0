// Package store defines the row-store port the financial engines run against.
// Two adapters implement it: a gorm/postgres adapter for production and an
// in-memory adapter used by tests and local development.
package store

import (
	"context"
	"time"

	"github.com/ledgerly/ledgerly/internal/domain"
)

// TransactionFilter narrows a ledger-scoped transaction listing. Zero-value
// fields are ignored. Date bounds follow the store contract: From and Through
// are inclusive, Before is exclusive.
type TransactionFilter struct {
	AccountID   string
	Types       []domain.TxnType
	CategoryID  *string
	DateFrom    *time.Time
	DateBefore  *time.Time
	DateThrough *time.Time
}

// ClassificationUpdate is the partial update applied when a rule matches.
// Nil fields are left untouched, so a category-only rule never nulls out an
// existing merchant.
type ClassificationUpdate struct {
	CategoryID *string
	MerchantID *string
}

// LedgerRepository resolves ledgers and membership roles.
type LedgerRepository interface {
	FindLedger(ctx context.Context, id string) (*domain.Ledger, error)
	// ListActiveLedgers feeds the worker's scheduled recompute sweep.
	ListActiveLedgers(ctx context.Context) ([]domain.Ledger, error)
	FindMemberRole(ctx context.Context, ledgerID, userID string) (domain.LedgerRole, error)
}

// AccountRepository resolves accounts inside their ledger scope. A lookup for
// an account that exists under a different ledger returns domain.ErrNotFound.
type AccountRepository interface {
	FindAccount(ctx context.Context, ledgerID, accountID string) (*domain.Account, error)
}

// TransactionRepository is the engine's view of the transactions table.
type TransactionRepository interface {
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
	FindTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	// FindTransactionByExternalID resolves the idempotency key used by
	// generated and imported rows. Returns domain.ErrNotFound when unused.
	FindTransactionByExternalID(ctx context.Context, ledgerID, externalID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, ledgerID string, f TransactionFilter) ([]domain.Transaction, error)
	ApplyClassification(ctx context.Context, txnID string, upd ClassificationUpdate) error
	// MarkTransactionsReconciled flags every unreconciled transaction on the
	// account dated on or before through, returning the number flagged.
	MarkTransactionsReconciled(ctx context.Context, ledgerID, accountID string, through, at time.Time) (int, error)
}

// RuleRepository lists a ledger's active classification rules ordered by
// priority descending, then creation order. The ordering is load-bearing:
// the rule engine uses first-match-wins per transaction.
type RuleRepository interface {
	ListActiveRules(ctx context.Context, ledgerID string) ([]domain.ClassificationRule, error)
}

// CategoryRepository lists a ledger's categories for name resolution.
type CategoryRepository interface {
	ListCategories(ctx context.Context, ledgerID string) ([]domain.Category, error)
}

// BudgetRepository resolves budget definitions.
type BudgetRepository interface {
	FindBudget(ctx context.Context, ledgerID, id string) (*domain.Budget, error)
}

// SubscriptionRepository is the generator's view of subscriptions.
type SubscriptionRepository interface {
	ListActiveSubscriptions(ctx context.Context, ledgerID string) ([]domain.Subscription, error)
	UpdateNextDueDate(ctx context.Context, id string, next time.Time) error
}

// SummaryRepository upserts monthly aggregates keyed (ledger_id, year_month).
// The upsert must be atomic so recomputation is idempotent under retries.
type SummaryRepository interface {
	UpsertSummary(ctx context.Context, s *domain.MonthlySummary) error
}

// SnapshotRepository appends reconciliation snapshots. Append-only by
// contract; there is deliberately no update method.
type SnapshotRepository interface {
	InsertSnapshot(ctx context.Context, s *domain.ReconciliationSnapshot) error
}

// InsightRepository stores generated insights. Regeneration for a month is a
// delete of every row tagged with that month followed by a bulk insert.
type InsightRepository interface {
	DeleteInsightsByMonth(ctx context.Context, ledgerID, month string) (int, error)
	InsertInsights(ctx context.Context, rows []domain.Insight) error
}

// RateRepository is the persisted daily-rate table behind the FX cache.
type RateRepository interface {
	FindRate(ctx context.Context, base, quote string, date time.Time) (*domain.ExchangeRate, error)
	// FindLatestRate returns the most recent persisted rate for the pair
	// regardless of age, for the external-source failure fallback.
	FindLatestRate(ctx context.Context, base, quote string) (*domain.ExchangeRate, error)
	UpsertRate(ctx context.Context, r *domain.ExchangeRate) error
}

// AuditRepository is the append-only audit sink.
type AuditRepository interface {
	AppendAudit(ctx context.Context, e *domain.AuditEntry) error
}

// Store bundles every repository for wiring convenience. Engines declare the
// narrow interfaces they actually need; only cmd wiring uses this.
type Store interface {
	LedgerRepository
	AccountRepository
	TransactionRepository
	RuleRepository
	CategoryRepository
	BudgetRepository
	SubscriptionRepository
	SummaryRepository
	SnapshotRepository
	InsightRepository
	RateRepository
	AuditRepository
}
