// Package budget computes how much of a budget definition has been consumed,
// expressed in the ledger's home currency.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/fx"
	"github.com/ledgerly/ledgerly/internal/store"
)

// Status reports a budget's consumption against its limit, including which
// alert thresholds the current spend has crossed.
type Status struct {
	BudgetID          string          `json:"budget_id"`
	Name              string          `json:"name"`
	CurrencyCode      string          `json:"currency_code"`
	Limit             decimal.Decimal `json:"limit"`
	Spent             decimal.Decimal `json:"spent"`
	Remaining         decimal.Decimal `json:"remaining"`
	PercentUsed       decimal.Decimal `json:"percent_used"`
	ThresholdsCrossed []int           `json:"thresholds_crossed"`
}

// Calculator sums qualifying expense transactions for a budget window.
type Calculator struct {
	ledgers   store.LedgerRepository
	budgets   store.BudgetRepository
	txns      store.TransactionRepository
	converter *fx.Service
	now       func() time.Time
}

func New(ledgers store.LedgerRepository, budgets store.BudgetRepository, txns store.TransactionRepository, converter *fx.Service) *Calculator {
	return &Calculator{ledgers: ledgers, budgets: budgets, txns: txns, converter: converter, now: time.Now}
}

// WithClock overrides the calculator's notion of "now". Used in tests.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Spent returns the budget's consumed amount in the ledger's home currency.
func (c *Calculator) Spent(ctx context.Context, ledgerID, budgetID string) (decimal.Decimal, error) {
	status, err := c.Status(ctx, ledgerID, budgetID)
	if err != nil {
		return decimal.Zero, err
	}
	return status.Spent, nil
}

// Status computes the consumed amount plus limit/threshold bookkeeping.
//
// A monthly budget is always measured against the current calendar month,
// regardless of its stored start date; other periods run over the stored
// start/end window as given.
func (c *Calculator) Status(ctx context.Context, ledgerID, budgetID string) (*Status, error) {
	ledger, err := c.ledgers.FindLedger(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("Status: resolving ledger: %w", err)
	}
	b, err := c.budgets.FindBudget(ctx, ledgerID, budgetID)
	if err != nil {
		return nil, fmt.Errorf("Status: resolving budget: %w", err)
	}

	filter := store.TransactionFilter{
		Types:      []domain.TxnType{domain.TxnExpense},
		CategoryID: b.CategoryID,
	}
	start := windowStart(b, c.now())
	filter.DateFrom = &start
	if b.EndDate != nil {
		end := *b.EndDate
		filter.DateThrough = &end
	}

	txns, err := c.txns.ListTransactions(ctx, ledgerID, filter)
	if err != nil {
		return nil, fmt.Errorf("Status: listing transactions: %w", err)
	}

	amounts := make([]fx.Amount, len(txns))
	for i, txn := range txns {
		amounts[i] = fx.Amount{Value: txn.Amount, Currency: txn.CurrencyCode}
	}
	converted := c.converter.BatchConvert(ctx, amounts, ledger.CurrencyCode)

	spent := decimal.Zero
	for _, amt := range converted {
		spent = spent.Add(amt)
	}
	spent = spent.Round(2)

	status := &Status{
		BudgetID:          b.ID,
		Name:              b.Name,
		CurrencyCode:      ledger.CurrencyCode,
		Limit:             b.Amount,
		Spent:             spent,
		Remaining:         b.Amount.Sub(spent).Round(2),
		PercentUsed:       decimal.Zero,
		ThresholdsCrossed: []int{},
	}
	if b.Amount.IsPositive() {
		status.PercentUsed = spent.Div(b.Amount).Mul(decimal.NewFromInt(100)).Round(1)
	}
	for _, threshold := range b.AlertThresholds {
		if status.PercentUsed.GreaterThanOrEqual(decimal.NewFromInt(int64(threshold))) {
			status.ThresholdsCrossed = append(status.ThresholdsCrossed, threshold)
		}
	}
	return status, nil
}

func windowStart(b *domain.Budget, now time.Time) time.Time {
	if b.Period == domain.PeriodMonthly {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return b.StartDate
}
