// Package memory is an in-memory implementation of the store port. It is
// safe for concurrent use and keeps copy semantics on every boundary so
// callers can never mutate stored rows in place. Data is lost on restart;
// it backs the engine tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/store"
)

// Store holds every table in process memory.
type Store struct {
	mu sync.RWMutex

	ledgers       map[string]domain.Ledger
	members       map[string]map[string]domain.LedgerRole // ledgerID -> userID -> role
	accounts      map[string]domain.Account
	transactions  map[string]domain.Transaction
	rules         map[string]domain.ClassificationRule
	categories    map[string]domain.Category
	budgets       map[string]domain.Budget
	subscriptions map[string]domain.Subscription
	summaries     map[string]domain.MonthlySummary // key ledgerID|yearMonth
	snapshots     []domain.ReconciliationSnapshot
	insights      map[string]domain.Insight
	rates         map[string]domain.ExchangeRate // key base|quote|date
	audits        []domain.AuditEntry
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		ledgers:       make(map[string]domain.Ledger),
		members:       make(map[string]map[string]domain.LedgerRole),
		accounts:      make(map[string]domain.Account),
		transactions:  make(map[string]domain.Transaction),
		rules:         make(map[string]domain.ClassificationRule),
		categories:    make(map[string]domain.Category),
		budgets:       make(map[string]domain.Budget),
		subscriptions: make(map[string]domain.Subscription),
		summaries:     make(map[string]domain.MonthlySummary),
		insights:      make(map[string]domain.Insight),
		rates:         make(map[string]domain.ExchangeRate),
	}
}

// ---- seeding helpers (used by tests and local fixtures) ----

// AddLedger stores a ledger row, generating an id if empty. Seeded ledgers
// are always active.
func (s *Store) AddLedger(l domain.Ledger) domain.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.IsActive = true
	s.ledgers[l.ID] = l
	return l
}

// AddMember records a membership role for a ledger.
func (s *Store) AddMember(ledgerID, userID string, role domain.LedgerRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[ledgerID] == nil {
		s.members[ledgerID] = make(map[string]domain.LedgerRole)
	}
	s.members[ledgerID][userID] = role
}

// AddAccount stores an account row, generating an id if empty.
func (s *Store) AddAccount(a domain.Account) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.accounts[a.ID] = a
	return a
}

// AddRule stores a classification rule, generating an id if empty.
func (s *Store) AddRule(r domain.ClassificationRule) domain.ClassificationRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.rules[r.ID] = r
	return r
}

// AddCategory stores a category row, generating an id if empty.
func (s *Store) AddCategory(c domain.Category) domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.categories[c.ID] = c
	return c
}

// AddBudget stores a budget row, generating an id if empty.
func (s *Store) AddBudget(b domain.Budget) domain.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.budgets[b.ID] = b
	return b
}

// AddSubscription stores a subscription row, generating an id if empty.
func (s *Store) AddSubscription(sub domain.Subscription) domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	s.subscriptions[sub.ID] = sub
	return sub
}

// ---- LedgerRepository ----

// FindLedger implements store.LedgerRepository.
func (s *Store) FindLedger(ctx context.Context, id string) (*domain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := l
	return &cp, nil
}

// ListActiveLedgers implements store.LedgerRepository.
func (s *Store) ListActiveLedgers(ctx context.Context) ([]domain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Ledger
	for _, l := range s.ledgers {
		if l.IsActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindMemberRole implements store.LedgerRepository.
func (s *Store) FindMemberRole(ctx context.Context, ledgerID, userID string) (domain.LedgerRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.members[ledgerID][userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return role, nil
}

// ---- AccountRepository ----

// FindAccount implements store.AccountRepository. Ledger scope is part of
// the lookup: an account under another ledger is not found.
func (s *Store) FindAccount(ctx context.Context, ledgerID, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok || a.LedgerID != ledgerID {
		return nil, domain.ErrNotFound
	}
	cp := a
	return &cp, nil
}

// ---- TransactionRepository ----

// InsertTransaction implements store.TransactionRepository.
func (s *Store) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[txn.ID] = *txn
	return nil
}

// FindTransaction implements store.TransactionRepository.
func (s *Store) FindTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := t
	return &cp, nil
}

// FindTransactionByExternalID implements store.TransactionRepository.
func (s *Store) FindTransactionByExternalID(ctx context.Context, ledgerID, externalID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.LedgerID == ledgerID && t.ExternalID != nil && *t.ExternalID == externalID {
			cp := t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListTransactions implements store.TransactionRepository. Results come back
// ordered by date then creation time, matching the postgres adapter.
func (s *Store) ListTransactions(ctx context.Context, ledgerID string, f store.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Transaction
	for _, t := range s.transactions {
		if t.LedgerID != ledgerID {
			continue
		}
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if len(f.Types) > 0 && !containsType(f.Types, t.TxnType) {
			continue
		}
		if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
			continue
		}
		if f.DateFrom != nil && t.Date.Before(*f.DateFrom) {
			continue
		}
		if f.DateBefore != nil && !t.Date.Before(*f.DateBefore) {
			continue
		}
		if f.DateThrough != nil && t.Date.After(*f.DateThrough) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ApplyClassification implements store.TransactionRepository.
func (s *Store) ApplyClassification(ctx context.Context, txnID string, upd store.ClassificationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[txnID]
	if !ok {
		return domain.ErrNotFound
	}
	if upd.CategoryID != nil {
		t.CategoryID = upd.CategoryID
	}
	if upd.MerchantID != nil {
		t.MerchantID = upd.MerchantID
	}
	t.UpdatedAt = time.Now()
	s.transactions[txnID] = t
	return nil
}

// MarkTransactionsReconciled implements store.TransactionRepository.
func (s *Store) MarkTransactionsReconciled(ctx context.Context, ledgerID, accountID string, through, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.transactions {
		if t.LedgerID != ledgerID || t.AccountID != accountID || t.IsReconciled || t.Date.After(through) {
			continue
		}
		t.IsReconciled = true
		ts := at
		t.ReconciledAt = &ts
		s.transactions[id] = t
		n++
	}
	return n, nil
}

// ---- RuleRepository ----

// ListActiveRules implements store.RuleRepository.
func (s *Store) ListActiveRules(ctx context.Context, ledgerID string) ([]domain.ClassificationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ClassificationRule
	for _, r := range s.rules {
		if r.LedgerID == ledgerID && r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ---- CategoryRepository ----

// ListCategories implements store.CategoryRepository.
func (s *Store) ListCategories(ctx context.Context, ledgerID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Category
	for _, c := range s.categories {
		if c.LedgerID == ledgerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- BudgetRepository ----

// FindBudget implements store.BudgetRepository.
func (s *Store) FindBudget(ctx context.Context, ledgerID, id string) (*domain.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[id]
	if !ok || b.LedgerID != ledgerID {
		return nil, domain.ErrNotFound
	}
	cp := b
	return &cp, nil
}

// ---- SubscriptionRepository ----

// ListActiveSubscriptions implements store.SubscriptionRepository.
func (s *Store) ListActiveSubscriptions(ctx context.Context, ledgerID string) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Subscription
	for _, sub := range s.subscriptions {
		if sub.LedgerID == ledgerID && sub.IsActive {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDueDate.Before(out[j].NextDueDate) })
	return out, nil
}

// UpdateNextDueDate implements store.SubscriptionRepository.
func (s *Store) UpdateNextDueDate(ctx context.Context, id string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return domain.ErrNotFound
	}
	sub.NextDueDate = next
	sub.UpdatedAt = time.Now()
	s.subscriptions[id] = sub
	return nil
}

// ---- SummaryRepository ----

// UpsertSummary implements store.SummaryRepository, keyed (ledger, month).
func (s *Store) UpsertSummary(ctx context.Context, sum *domain.MonthlySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sum.LedgerID + "|" + sum.YearMonth
	if prev, ok := s.summaries[key]; ok {
		sum.ID = prev.ID
		sum.CreatedAt = prev.CreatedAt
	} else if sum.ID == "" {
		sum.ID = uuid.NewString()
		sum.CreatedAt = time.Now()
	}
	sum.UpdatedAt = time.Now()
	s.summaries[key] = *sum
	return nil
}

// SummaryCount reports how many summary rows exist for a ledger. Test hook.
func (s *Store) SummaryCount(ledgerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.summaries {
		if strings.HasPrefix(key, ledgerID+"|") {
			n++
		}
	}
	return n
}

// ---- SnapshotRepository ----

// InsertSnapshot implements store.SnapshotRepository.
func (s *Store) InsertSnapshot(ctx context.Context, snap *domain.ReconciliationSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, *snap)
	return nil
}

// Snapshots returns a copy of every stored snapshot. Test hook.
func (s *Store) Snapshots() []domain.ReconciliationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ReconciliationSnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// ---- InsightRepository ----

// DeleteInsightsByMonth implements store.InsightRepository.
func (s *Store) DeleteInsightsByMonth(ctx context.Context, ledgerID, month string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, ins := range s.insights {
		if ins.LedgerID != ledgerID {
			continue
		}
		if tag, ok := ins.Data["month"].(string); ok && tag == month {
			delete(s.insights, id)
			n++
		}
	}
	return n, nil
}

// InsertInsights implements store.InsightRepository.
func (s *Store) InsertInsights(ctx context.Context, rows []domain.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ins := range rows {
		if ins.ID == "" {
			ins.ID = uuid.NewString()
		}
		if ins.CreatedAt.IsZero() {
			ins.CreatedAt = time.Now()
		}
		s.insights[ins.ID] = ins
	}
	return nil
}

// InsightsByMonth returns stored insights tagged with month. Test hook.
func (s *Store) InsightsByMonth(ledgerID, month string) []domain.Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Insight
	for _, ins := range s.insights {
		if ins.LedgerID != ledgerID {
			continue
		}
		if tag, ok := ins.Data["month"].(string); ok && tag == month {
			out = append(out, ins)
		}
	}
	return out
}

// ---- RateRepository ----

func rateKey(base, quote string, date time.Time) string {
	return base + "|" + quote + "|" + date.Format("2006-01-02")
}

// FindRate implements store.RateRepository.
func (s *Store) FindRate(ctx context.Context, base, quote string, date time.Time) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[rateKey(base, quote, date)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := r
	return &cp, nil
}

// FindLatestRate implements store.RateRepository.
func (s *Store) FindLatestRate(ctx context.Context, base, quote string) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.ExchangeRate
	for _, r := range s.rates {
		if r.BaseCurrency != base || r.QuoteCurrency != quote {
			continue
		}
		if latest == nil || r.RateDate.After(latest.RateDate) {
			cp := r
			latest = &cp
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

// UpsertRate implements store.RateRepository, keyed (base, quote, date).
func (s *Store) UpsertRate(ctx context.Context, r *domain.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rateKey(r.BaseCurrency, r.QuoteCurrency, r.RateDate)
	if prev, ok := s.rates[key]; ok {
		r.ID = prev.ID
	} else if r.ID == "" {
		r.ID = uuid.NewString()
		r.CreatedAt = time.Now()
	}
	s.rates[key] = *r
	return nil
}

// ---- AuditRepository ----

// AppendAudit implements store.AuditRepository.
func (s *Store) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *e)
	return nil
}

// Audits returns a copy of the audit trail. Test hook.
func (s *Store) Audits() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(s.audits))
	copy(out, s.audits)
	return out
}

func containsType(types []domain.TxnType, t domain.TxnType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}
