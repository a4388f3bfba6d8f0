// Package aggregate sums a ledger's transactions per calendar month into
// income/expense/transfer/net-savings summaries, normalized into the ledger's
// home currency, and upserts one MonthlySummary row per (ledger, month).
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/fx"
	"github.com/ledgerly/ledgerly/internal/store"
)

// UncategorizedKey is the category-breakdown sentinel for transactions
// without a category.
const UncategorizedKey = "uncategorized"

// CategoryTotals is the per-category slice of a month's income and expense.
type CategoryTotals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// MonthResult is the computed aggregate for one month, including the
// per-category view the stored summary row does not carry.
type MonthResult struct {
	YearMonth         string                    `json:"year_month"`
	TotalIncome       decimal.Decimal           `json:"total_income"`
	TotalExpense      decimal.Decimal           `json:"total_expense"`
	TotalTransfers    decimal.Decimal           `json:"total_transfers"`
	TotalRefunds      decimal.Decimal           `json:"total_refunds"`
	NetSavings        decimal.Decimal           `json:"net_savings"`
	TransactionCount  int                       `json:"transaction_count"`
	CategoryBreakdown map[string]CategoryTotals `json:"category_breakdown"`
}

// Engine computes and persists monthly summaries.
type Engine struct {
	ledgers   store.LedgerRepository
	txns      store.TransactionRepository
	summaries store.SummaryRepository
	converter *fx.Service
	now       func() time.Time
}

// New creates an aggregation engine.
func New(ledgers store.LedgerRepository, txns store.TransactionRepository, summaries store.SummaryRepository, converter *fx.Service) *Engine {
	return &Engine{ledgers: ledgers, txns: txns, summaries: summaries, converter: converter, now: time.Now}
}

// WithClock overrides the engine clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Aggregate recomputes backfillMonths+1 consecutive months ending at month,
// each independently, and upserts one summary row per month. Recomputation is
// idempotent: rerunning with unchanged input rewrites identical rows.
func (e *Engine) Aggregate(ctx context.Context, actor domain.Actor, ledgerID string, month domain.YearMonth, backfillMonths int) ([]MonthResult, error) {
	if err := actor.RequireWrite(); err != nil {
		return nil, err
	}
	if backfillMonths < 0 {
		return nil, domain.Validationf("backfill_months", "must be >= 0, got %d", backfillMonths)
	}
	ledger, err := e.ledgers.FindLedger(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("Aggregate: ledger %s: %w", ledgerID, err)
	}

	results := make([]MonthResult, 0, backfillMonths+1)
	for i := backfillMonths; i >= 0; i-- {
		ym := month.Add(-i)
		res, err := e.aggregateMonth(ctx, ledger, ym)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

func (e *Engine) aggregateMonth(ctx context.Context, ledger *domain.Ledger, ym domain.YearMonth) (*MonthResult, error) {
	start, next := ym.Bounds()
	txns, err := e.txns.ListTransactions(ctx, ledger.ID, store.TransactionFilter{
		DateFrom:   &start,
		DateBefore: &next,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregateMonth %s: listing transactions: %w", ym, err)
	}

	// Normalize every amount into the ledger's home currency in one batch.
	amounts := make([]fx.Amount, len(txns))
	for i, t := range txns {
		amounts[i] = fx.Amount{Value: t.Amount, Currency: t.CurrencyCode}
	}
	converted := e.converter.BatchConvert(ctx, amounts, ledger.CurrencyCode)

	res := &MonthResult{
		YearMonth:         ym.String(),
		TotalIncome:       decimal.Zero,
		TotalExpense:      decimal.Zero,
		TotalTransfers:    decimal.Zero,
		TotalRefunds:      decimal.Zero,
		TransactionCount:  len(txns),
		CategoryBreakdown: make(map[string]CategoryTotals),
	}
	for i, t := range txns {
		amt := converted[i]
		key := UncategorizedKey
		if t.CategoryID != nil {
			key = *t.CategoryID
		}
		cat := res.CategoryBreakdown[key]
		switch t.TxnType {
		case domain.TxnIncome:
			res.TotalIncome = res.TotalIncome.Add(amt)
			cat.Income = cat.Income.Add(amt)
		case domain.TxnExpense:
			res.TotalExpense = res.TotalExpense.Add(amt)
			cat.Expense = cat.Expense.Add(amt)
		case domain.TxnTransfer:
			res.TotalTransfers = res.TotalTransfers.Add(amt)
		case domain.TxnRefund:
			res.TotalRefunds = res.TotalRefunds.Add(amt)
		}
		res.CategoryBreakdown[key] = cat
	}
	// Refunds reduce net cost without inflating income.
	res.NetSavings = res.TotalIncome.Sub(res.TotalExpense).Add(res.TotalRefunds)

	err = e.summaries.UpsertSummary(ctx, &domain.MonthlySummary{
		LedgerID:       ledger.ID,
		YearMonth:      ym.String(),
		TotalIncome:    res.TotalIncome,
		TotalExpense:   res.TotalExpense,
		TotalTransfers: res.TotalTransfers,
		NetSavings:     res.NetSavings,
		CurrencyCode:   ledger.CurrencyCode,
		ComputedAt:     e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("aggregateMonth %s: upserting summary: %w", ym, err)
	}
	return res, nil
}
