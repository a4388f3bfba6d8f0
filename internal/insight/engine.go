// Package insight compares the current month's transaction activity against
// the previous month and emits human-readable findings.
package insight

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/fx"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/store"
)

// Insight type tags. Stored on the row and used by callers to group findings.
const (
	TypeCategorySpike     = "category_spike"
	TypeCategorySavings   = "category_savings"
	TypeSubscriptionCreep = "subscription_creep"
	TypeTopMerchantChange = "top_merchant_change"
	TypeMissingIncome     = "missing_income"
)

var (
	spikeFactor    = decimal.RequireFromString("1.3")
	dropFactor     = decimal.RequireFromString("0.5")
	dropFloor      = decimal.NewFromInt(50)
	creepThreshold = decimal.RequireFromString("0.15")
	hundred        = decimal.NewFromInt(100)
)

// Result is the outcome of one generation run.
type Result struct {
	Month     string           `json:"month"`
	Generated int              `json:"insights_generated"`
	Insights  []domain.Insight `json:"insights"`
}

// Engine generates a month's insights from raw transaction history. Each run
// replaces the prior set for that month, so regeneration never accumulates
// duplicate rows.
type Engine struct {
	ledgers   store.LedgerRepository
	txns      store.TransactionRepository
	subs      store.SubscriptionRepository
	cats      store.CategoryRepository
	insights  store.InsightRepository
	converter *fx.Service
}

func New(ledgers store.LedgerRepository, txns store.TransactionRepository, subs store.SubscriptionRepository, cats store.CategoryRepository, insights store.InsightRepository, converter *fx.Service) *Engine {
	return &Engine{ledgers: ledgers, txns: txns, subs: subs, cats: cats, insights: insights, converter: converter}
}

// Generate evaluates every insight rule for the given month and persists the
// resulting set, deleting whatever a previous run stored for the same month.
func (e *Engine) Generate(ctx context.Context, actor domain.Actor, ledgerID string, month domain.YearMonth) (*Result, error) {
	if err := actor.RequireWrite(); err != nil {
		return nil, fmt.Errorf("Generate: %w", err)
	}
	ledger, err := e.ledgers.FindLedger(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("Generate: resolving ledger: %w", err)
	}

	curr, err := e.monthActivity(ctx, ledger, month)
	if err != nil {
		return nil, fmt.Errorf("Generate: current month: %w", err)
	}
	prev, err := e.monthActivity(ctx, ledger, month.Add(-1))
	if err != nil {
		return nil, fmt.Errorf("Generate: previous month: %w", err)
	}

	subs, err := e.subs.ListActiveSubscriptions(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("Generate: listing subscriptions: %w", err)
	}
	cats, err := e.cats.ListCategories(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("Generate: listing categories: %w", err)
	}
	idx := domain.NewCategoryIndex(cats)

	var found []domain.Insight
	found = append(found, e.categorySpikes(idx, curr, prev)...)
	found = append(found, e.categoryDrops(idx, curr, prev)...)
	if ins := e.subscriptionCreep(ctx, ledger, subs, curr.income); ins != nil {
		found = append(found, *ins)
	}
	if ins := e.topMerchantChange(curr, prev); ins != nil {
		found = append(found, *ins)
	}
	if ins := e.missingIncome(curr); ins != nil {
		found = append(found, *ins)
	}

	tag := month.String()
	for i := range found {
		found[i].LedgerID = ledgerID
		if found[i].Data == nil {
			found[i].Data = domain.InsightData{}
		}
		found[i].Data["month"] = tag
	}

	deleted, err := e.insights.DeleteInsightsByMonth(ctx, ledgerID, tag)
	if err != nil {
		return nil, fmt.Errorf("Generate: deleting prior insights: %w", err)
	}
	if len(found) > 0 {
		if err := e.insights.InsertInsights(ctx, found); err != nil {
			return nil, fmt.Errorf("Generate: inserting insights: %w", err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("ledger_id", ledgerID).
		Str("month", tag).
		Int("replaced", deleted).
		Int("generated", len(found)).
		Msg("insights regenerated")

	return &Result{Month: tag, Generated: len(found), Insights: found}, nil
}

// activity is one month's expense/income view, with every amount already
// normalized to the ledger's home currency.
type activity struct {
	byCategory map[string]decimal.Decimal
	byMerchant map[string]decimal.Decimal
	income     decimal.Decimal
	txnCount   int
}

func (e *Engine) monthActivity(ctx context.Context, ledger *domain.Ledger, ym domain.YearMonth) (*activity, error) {
	start, next := ym.Bounds()
	txns, err := e.txns.ListTransactions(ctx, ledger.ID, store.TransactionFilter{
		Types:      []domain.TxnType{domain.TxnIncome, domain.TxnExpense},
		DateFrom:   &start,
		DateBefore: &next,
	})
	if err != nil {
		return nil, err
	}

	amounts := make([]fx.Amount, len(txns))
	for i, t := range txns {
		amounts[i] = fx.Amount{Value: t.Amount, Currency: t.CurrencyCode}
	}
	converted := e.converter.BatchConvert(ctx, amounts, ledger.CurrencyCode)

	act := &activity{
		byCategory: make(map[string]decimal.Decimal),
		byMerchant: make(map[string]decimal.Decimal),
		income:     decimal.Zero,
		txnCount:   len(txns),
	}
	for i, t := range txns {
		amt := converted[i]
		if t.TxnType == domain.TxnIncome {
			act.income = act.income.Add(amt)
			continue
		}
		if t.CategoryID != nil {
			act.byCategory[*t.CategoryID] = act.byCategory[*t.CategoryID].Add(amt)
		}
		if t.MerchantID != nil {
			act.byMerchant[*t.MerchantID] = act.byMerchant[*t.MerchantID].Add(amt)
		}
	}
	return act, nil
}

func (e *Engine) categorySpikes(idx *domain.CategoryIndex, curr, prev *activity) []domain.Insight {
	var out []domain.Insight
	for _, catID := range sortedKeys(curr.byCategory) {
		spent := curr.byCategory[catID]
		before := prev.byCategory[catID]
		if !before.IsPositive() || spent.LessThan(before.Mul(spikeFactor)) {
			continue
		}
		pct := spent.Sub(before).Div(before).Mul(hundred).Round(0)
		out = append(out, domain.Insight{
			Title:       fmt.Sprintf("%s spending up %s%%", idx.Name(catID, "Category"), pct),
			Body:        fmt.Sprintf("$%s this month vs $%s last month.", spent.StringFixed(2), before.StringFixed(2)),
			InsightType: TypeCategorySpike,
			Data: domain.InsightData{
				"category_id": catID,
				"current":     spent.StringFixed(2),
				"previous":    before.StringFixed(2),
				"pct":         pct.IntPart(),
			},
		})
	}
	return out
}

func (e *Engine) categoryDrops(idx *domain.CategoryIndex, curr, prev *activity) []domain.Insight {
	var out []domain.Insight
	for _, catID := range sortedKeys(prev.byCategory) {
		before := prev.byCategory[catID]
		spent := curr.byCategory[catID]
		if !before.GreaterThan(dropFloor) || spent.GreaterThan(before.Mul(dropFactor)) {
			continue
		}
		pct := before.Sub(spent).Div(before).Mul(hundred).Round(0)
		out = append(out, domain.Insight{
			Title:       fmt.Sprintf("%s spending down %s%%", idx.Name(catID, "Category"), pct),
			Body:        fmt.Sprintf("Great job! $%s vs $%s last month.", spent.StringFixed(2), before.StringFixed(2)),
			InsightType: TypeCategorySavings,
			Data: domain.InsightData{
				"category_id": catID,
				"current":     spent.StringFixed(2),
				"previous":    before.StringFixed(2),
				"pct":         pct.IntPart(),
			},
		})
	}
	return out
}

func (e *Engine) subscriptionCreep(ctx context.Context, ledger *domain.Ledger, subs []domain.Subscription, income decimal.Decimal) *domain.Insight {
	if len(subs) == 0 || !income.IsPositive() {
		return nil
	}
	amounts := make([]fx.Amount, len(subs))
	for i, sub := range subs {
		amounts[i] = fx.Amount{Value: sub.Amount, Currency: sub.CurrencyCode}
	}
	converted := e.converter.BatchConvert(ctx, amounts, ledger.CurrencyCode)
	total := decimal.Zero
	for _, amt := range converted {
		total = total.Add(amt)
	}

	share := total.Div(income)
	if !share.GreaterThan(creepThreshold) {
		return nil
	}
	pct := share.Mul(hundred).Round(0)
	return &domain.Insight{
		Title:       fmt.Sprintf("Subscriptions are %s%% of income", pct),
		Body:        fmt.Sprintf("%d active subscriptions total $%s/month.", len(subs), total.StringFixed(2)),
		InsightType: TypeSubscriptionCreep,
		Data: domain.InsightData{
			"total_cost": total.StringFixed(2),
			"income":     income.StringFixed(2),
			"pct":        pct.IntPart(),
			"count":      len(subs),
		},
	}
}

func (e *Engine) topMerchantChange(curr, prev *activity) *domain.Insight {
	currTop, currAmt, ok := topEntry(curr.byMerchant)
	if !ok {
		return nil
	}
	prevTop, prevAmt, ok := topEntry(prev.byMerchant)
	if !ok || currTop == prevTop {
		return nil
	}
	return &domain.Insight{
		Title:       "Top merchant changed",
		Body:        "Your biggest spending merchant changed this month.",
		InsightType: TypeTopMerchantChange,
		Data: domain.InsightData{
			"current":  map[string]any{"id": currTop, "amount": currAmt.StringFixed(2)},
			"previous": map[string]any{"id": prevTop, "amount": prevAmt.StringFixed(2)},
		},
	}
}

func (e *Engine) missingIncome(curr *activity) *domain.Insight {
	if curr.txnCount == 0 || !curr.income.IsZero() {
		return nil
	}
	return &domain.Insight{
		Title:       "No income recorded this month",
		Body:        "You have transactions but no income entries.",
		InsightType: TypeMissingIncome,
		Data:        domain.InsightData{"transaction_count": curr.txnCount},
	}
}

// topEntry returns the highest-amount key; ids break ties so the winner is
// stable across runs.
func topEntry(m map[string]decimal.Decimal) (string, decimal.Decimal, bool) {
	var (
		topID  string
		topAmt decimal.Decimal
		found  bool
	)
	for _, id := range sortedKeys(m) {
		if !found || m[id].GreaterThan(topAmt) {
			topID, topAmt, found = id, m[id], true
		}
	}
	return topID, topAmt, found
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
