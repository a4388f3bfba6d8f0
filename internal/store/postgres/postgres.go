// Package postgres implements the store port on a relational database via
// gorm. Upserts use ON CONFLICT on the natural key so recomputation stays
// idempotent under concurrent retries without in-process locking.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/store"
)

// Store is the gorm-backed implementation of store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to postgres and configures the connection pool.
func Open(dsn string, maxIdleConns, maxOpenConns int) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing gorm handle (tests, migrations).
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the engine-owned tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&domain.Ledger{},
		&domain.Account{},
		&domain.Transaction{},
		&domain.Category{},
		&domain.Merchant{},
		&domain.Budget{},
		&domain.ClassificationRule{},
		&domain.Subscription{},
		&domain.MonthlySummary{},
		&domain.ReconciliationSnapshot{},
		&domain.Insight{},
		&domain.ExchangeRate{},
		&domain.AuditEntry{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// ---- LedgerRepository ----

// FindLedger implements store.LedgerRepository.
func (s *Store) FindLedger(ctx context.Context, id string) (*domain.Ledger, error) {
	var l domain.Ledger
	if err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// ListActiveLedgers implements store.LedgerRepository.
func (s *Store) ListActiveLedgers(ctx context.Context) ([]domain.Ledger, error) {
	var out []domain.Ledger
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("ListActiveLedgers: %w", err)
	}
	return out, nil
}

// ledgerMember mirrors the ledger_members table owned by the auth collaborator.
// The engine only ever reads the role column.
type ledgerMember struct {
	LedgerID string `gorm:"type:uuid"`
	UserID   string `gorm:"type:uuid"`
	Role     domain.LedgerRole
}

func (ledgerMember) TableName() string { return "ledger_members" }

// FindMemberRole implements store.LedgerRepository.
func (s *Store) FindMemberRole(ctx context.Context, ledgerID, userID string) (domain.LedgerRole, error) {
	var m ledgerMember
	err := s.db.WithContext(ctx).
		Where("ledger_id = ? AND user_id = ?", ledgerID, userID).
		First(&m).Error
	if err != nil {
		return "", notFound(err)
	}
	return m.Role, nil
}

// ---- AccountRepository ----

// FindAccount implements store.AccountRepository.
func (s *Store) FindAccount(ctx context.Context, ledgerID, accountID string) (*domain.Account, error) {
	var a domain.Account
	err := s.db.WithContext(ctx).
		Where("id = ? AND ledger_id = ?", accountID, ledgerID).
		First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ---- TransactionRepository ----

// InsertTransaction implements store.TransactionRepository.
func (s *Store) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	return nil
}

// FindTransaction implements store.TransactionRepository.
func (s *Store) FindTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// FindTransactionByExternalID implements store.TransactionRepository.
func (s *Store) FindTransactionByExternalID(ctx context.Context, ledgerID, externalID string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.db.WithContext(ctx).
		Where("ledger_id = ? AND external_id = ?", ledgerID, externalID).
		First(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, ledgerID string, f store.TransactionFilter) ([]domain.Transaction, error) {
	q := s.db.WithContext(ctx).Where("ledger_id = ?", ledgerID)
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if len(f.Types) > 0 {
		q = q.Where("txn_type IN ?", f.Types)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.DateFrom != nil {
		q = q.Where("date >= ?", *f.DateFrom)
	}
	if f.DateBefore != nil {
		q = q.Where("date < ?", *f.DateBefore)
	}
	if f.DateThrough != nil {
		q = q.Where("date <= ?", *f.DateThrough)
	}
	var out []domain.Transaction
	if err := q.Order("date, created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return out, nil
}

// ApplyClassification implements store.TransactionRepository. Only the fields
// the matching rule set are written.
func (s *Store) ApplyClassification(ctx context.Context, txnID string, upd store.ClassificationUpdate) error {
	changes := map[string]any{}
	if upd.CategoryID != nil {
		changes["category_id"] = *upd.CategoryID
	}
	if upd.MerchantID != nil {
		changes["merchant_id"] = *upd.MerchantID
	}
	if len(changes) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ?", txnID).
		Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("ApplyClassification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkTransactionsReconciled implements store.TransactionRepository.
func (s *Store) MarkTransactionsReconciled(ctx context.Context, ledgerID, accountID string, through, at time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("ledger_id = ? AND account_id = ? AND date <= ? AND is_reconciled = false", ledgerID, accountID, through).
		Updates(map[string]any{"is_reconciled": true, "reconciled_at": at})
	if res.Error != nil {
		return 0, fmt.Errorf("MarkTransactionsReconciled: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// ---- RuleRepository ----

// ListActiveRules implements store.RuleRepository. Priority descending with
// creation order as the tie-breaker; the rule engine relies on this.
func (s *Store) ListActiveRules(ctx context.Context, ledgerID string) ([]domain.ClassificationRule, error) {
	var out []domain.ClassificationRule
	err := s.db.WithContext(ctx).
		Where("ledger_id = ? AND is_active = true", ledgerID).
		Order("priority DESC, created_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("ListActiveRules: %w", err)
	}
	return out, nil
}

// ---- CategoryRepository ----

// ListCategories implements store.CategoryRepository.
func (s *Store) ListCategories(ctx context.Context, ledgerID string) ([]domain.Category, error) {
	var out []domain.Category
	err := s.db.WithContext(ctx).
		Where("ledger_id = ?", ledgerID).
		Order("name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	return out, nil
}

// ---- BudgetRepository ----

// FindBudget implements store.BudgetRepository.
func (s *Store) FindBudget(ctx context.Context, ledgerID, id string) (*domain.Budget, error) {
	var b domain.Budget
	err := s.db.WithContext(ctx).
		Where("id = ? AND ledger_id = ?", id, ledgerID).
		First(&b).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// ---- SubscriptionRepository ----

// ListActiveSubscriptions implements store.SubscriptionRepository.
func (s *Store) ListActiveSubscriptions(ctx context.Context, ledgerID string) ([]domain.Subscription, error) {
	var out []domain.Subscription
	err := s.db.WithContext(ctx).
		Where("ledger_id = ? AND is_active = true", ledgerID).
		Order("next_due_date").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("ListActiveSubscriptions: %w", err)
	}
	return out, nil
}

// UpdateNextDueDate implements store.SubscriptionRepository.
func (s *Store) UpdateNextDueDate(ctx context.Context, id string, next time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		Update("next_due_date", next)
	if res.Error != nil {
		return fmt.Errorf("UpdateNextDueDate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- SummaryRepository ----

// UpsertSummary implements store.SummaryRepository with an atomic
// ON CONFLICT (ledger_id, year_month) update.
func (s *Store) UpsertSummary(ctx context.Context, sum *domain.MonthlySummary) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ledger_id"}, {Name: "year_month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_income", "total_expense", "total_transfers",
			"net_savings", "currency_code", "computed_at", "updated_at",
		}),
	}).Create(sum).Error
	if err != nil {
		return fmt.Errorf("UpsertSummary: %w", err)
	}
	return nil
}

// ---- SnapshotRepository ----

// InsertSnapshot implements store.SnapshotRepository.
func (s *Store) InsertSnapshot(ctx context.Context, snap *domain.ReconciliationSnapshot) error {
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("InsertSnapshot: %w", err)
	}
	return nil
}

// ---- InsightRepository ----

// DeleteInsightsByMonth implements store.InsightRepository, matching the
// month tag embedded in the data payload.
func (s *Store) DeleteInsightsByMonth(ctx context.Context, ledgerID, month string) (int, error) {
	res := s.db.WithContext(ctx).
		Where("ledger_id = ? AND data->>'month' = ?", ledgerID, month).
		Delete(&domain.Insight{})
	if res.Error != nil {
		return 0, fmt.Errorf("DeleteInsightsByMonth: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// InsertInsights implements store.InsightRepository.
func (s *Store) InsertInsights(ctx context.Context, rows []domain.Insight) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("InsertInsights: %w", err)
	}
	return nil
}

// ---- RateRepository ----

// FindRate implements store.RateRepository.
func (s *Store) FindRate(ctx context.Context, base, quote string, date time.Time) (*domain.ExchangeRate, error) {
	var r domain.ExchangeRate
	err := s.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ? AND rate_date = ?", base, quote, date).
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// FindLatestRate implements store.RateRepository.
func (s *Store) FindLatestRate(ctx context.Context, base, quote string) (*domain.ExchangeRate, error) {
	var r domain.ExchangeRate
	err := s.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ?", base, quote).
		Order("rate_date DESC").
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// UpsertRate implements store.RateRepository, keyed (base, quote, rate_date).
func (s *Store) UpsertRate(ctx context.Context, r *domain.ExchangeRate) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "base_currency"}, {Name: "quote_currency"}, {Name: "rate_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "source"}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("UpsertRate: %w", err)
	}
	return nil
}

// ---- AuditRepository ----

// AppendAudit implements store.AuditRepository.
func (s *Store) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("AppendAudit: %w", err)
	}
	return nil
}
