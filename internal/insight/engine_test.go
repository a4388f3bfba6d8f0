package insight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/fx"
	"github.com/ledgerly/ledgerly/internal/store/memory"
)

var testNow = time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)

type unreachableSource struct{}

func (unreachableSource) FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	return nil, errors.New("unreachable")
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func editor() domain.Actor {
	return domain.Actor{UserID: "33333333-3333-3333-3333-333333333333", Role: domain.RoleEditor}
}

func newEngine(db *memory.Store) *Engine {
	conv := fx.New(db, unreachableSource{}, fx.Options{Now: func() time.Time { return testNow }})
	return New(db, db, db, db, db, conv)
}

func month(t *testing.T, s string) domain.YearMonth {
	t.Helper()
	ym, err := domain.ParseYearMonth(s)
	if err != nil {
		t.Fatalf("ParseYearMonth(%q): %v", s, err)
	}
	return ym
}

func addTxn(t *testing.T, db *memory.Store, ledgerID string, txnType domain.TxnType, date, amount string, categoryID, merchantID *string) {
	t.Helper()
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatalf("bad date %q: %v", date, err)
	}
	txn := domain.Transaction{
		LedgerID:     ledgerID,
		AccountID:    "aaaaaaaa-0000-0000-0000-000000000001",
		CategoryID:   categoryID,
		MerchantID:   merchantID,
		TxnType:      txnType,
		Amount:       dec(amount),
		CurrencyCode: "USD",
		Date:         d,
	}
	if err := db.InsertTransaction(context.Background(), &txn); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
}

func byType(insights []domain.Insight, insightType string) []domain.Insight {
	var out []domain.Insight
	for _, ins := range insights {
		if ins.InsightType == insightType {
			out = append(out, ins)
		}
	}
	return out
}

func TestGenerateCategorySpike(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	cat := db.AddCategory(domain.Category{LedgerID: ledger.ID, Name: "Dining"})

	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-01-10", "100.00", &cat.ID, nil)
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-10", "200.00", &cat.ID, nil)
	addTxn(t, db, ledger.ID, domain.TxnIncome, "2026-02-01", "3000.00", nil, nil)

	res, err := newEngine(db).Generate(context.Background(), editor(), ledger.ID, month(t, "2026-02"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	spikes := byType(res.Insights, TypeCategorySpike)
	if len(spikes) != 1 {
		t.Fatalf("spikes = %d, want 1", len(spikes))
	}
	if spikes[0].Title != "Dining spending up 100%" {
		t.Errorf("title = %q", spikes[0].Title)
	}
	if spikes[0].Data["month"] != "2026-02" {
		t.Errorf("month tag = %v, want 2026-02", spikes[0].Data["month"])
	}
}

func TestGenerateSpikeNeedsPriorSpend(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	cat := db.AddCategory(domain.Category{LedgerID: ledger.ID, Name: "Dining"})

	// No prior-month spend: new categories never count as a spike.
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-10", "500.00", &cat.ID, nil)
	addTxn(t, db, ledger.ID, domain.TxnIncome, "2026-02-01", "3000.00", nil, nil)

	res, err := newEngine(db).Generate(context.Background(), editor(), ledger.ID, month(t, "2026-02"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n := len(byType(res.Insights, TypeCategorySpike)); n != 0 {
		t.Errorf("spikes = %d, want 0", n)
	}
}

func TestGenerateCategoryDrop(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	big := db.AddCategory(domain.Category{LedgerID: ledger.ID, Name: "Travel"})
	small := db.AddCategory(domain.Category{LedgerID: ledger.ID, Name: "Snacks"})

	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-01-05", "200.00", &big.ID, nil)
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-05", "40.00", &big.ID, nil)
	// Below the $50 prior-spend floor: halving it is not reportable.
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-01-06", "40.00", &small.ID, nil)
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-06", "5.00", &small.ID, nil)
	addTxn(t, db, ledger.ID, domain.TxnIncome, "2026-02-01", "3000.00", nil, nil)

	res, err := newEngine(db).Generate(context.Background(), editor(), ledger.ID, month(t, "2026-02"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	drops := byType(res.Insights, TypeCategorySavings)
	if len(drops) != 1 {
		t.Fatalf("drops = %d, want 1", len(drops))
	}
	if drops[0].Title != "Travel spending down 80%" {
		t.Errorf("title = %q", drops[0].Title)
	}
}

func TestGenerateSubscriptionCreep(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	db.AddSubscription(domain.Subscription{
		LedgerID: ledger.ID, AccountID: "acct", Name: "Streaming",
		Amount: dec("300.00"), CurrencyCode: "USD",
		Interval: domain.IntervalMonthly, NextDueDate: testNow, IsActive: true,
	})
	db.AddSubscription(domain.Subscription{
		LedgerID: ledger.ID, AccountID: "acct", Name: "Gym",
		Amount: dec("100.00"), CurrencyCode: "USD",
		Interval: domain.IntervalMonthly, NextDueDate: testNow, IsActive: true,
	})
	addTxn(t, db, ledger.ID, domain.TxnIncome, "2026-02-01", "2000.00", nil, nil)

	res, err := newEngine(db).Generate(context.Background(), editor(), ledger.ID, month(t, "2026-02"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	creeps := byType(res.Insights, TypeSubscriptionCreep)
	if len(creeps) != 1 {
		t.Fatalf("creeps = %d, want 1", len(creeps))
	}
	if creeps[0].Title != "Subscriptions are 20% of income" {
		t.Errorf("title = %q", creeps[0].Title)
	}
	if creeps[0].Data["count"] != 2 {
		t.Errorf("count = %v, want 2", creeps[0].Data["count"])
	}
}

func TestGenerateSubscriptionCreepSkippedWithoutIncome(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	db.AddSubscription(domain.Subscription{
		LedgerID: ledger.ID, AccountID: "acct", Name: "Streaming",
		Amount: dec("300.00"), CurrencyCode: "USD",
		Interval: domain.IntervalMonthly, NextDueDate: testNow, IsActive: true,
	})
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-05", "10.00", nil, nil)

	res, err := newEngine(db).Generate(context.Background(), editor(), ledger.ID, month(t, "2026-02"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n := len(byType(res.Insights, TypeSubscriptionCreep)); n != 0 {
		t.Errorf("creeps = %d, want 0 with zero income", n)
	}
}

func TestGenerateTopMerchantChange(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	grocer := "merch-grocer"
	airline := "merch-airline"

	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-01-10", "300.00", nil, &grocer)
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-01-11", "50.00", nil, &airline)
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-10", "100.00", nil, &grocer)
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-11", "800.00", nil, &airline)
	addTxn(t, db, ledger.ID, domain.TxnIncome, "2026-02-01", "3000.00", nil, nil)

	res, err := newEngine(db).Generate(context.Background(), editor(), ledger.ID, month(t, "2026-02"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n := len(byType(res.Insights, TypeTopMerchantChange)); n != 1 {
		t.Fatalf("merchant changes = %d, want 1", n)
	}
}

func TestGenerateMissingIncome(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-05", "25.00", nil, nil)

	res, err := newEngine(db).Generate(context.Background(), editor(), ledger.ID, month(t, "2026-02"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	missing := byType(res.Insights, TypeMissingIncome)
	if len(missing) != 1 {
		t.Fatalf("missing-income = %d, want 1", len(missing))
	}
	if missing[0].Data["transaction_count"] != 1 {
		t.Errorf("transaction_count = %v, want 1", missing[0].Data["transaction_count"])
	}
}

func TestGenerateIsIdempotentReplace(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	cat := db.AddCategory(domain.Category{LedgerID: ledger.ID, Name: "Dining"})
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-01-10", "100.00", &cat.ID, nil)
	addTxn(t, db, ledger.ID, domain.TxnExpense, "2026-02-10", "200.00", &cat.ID, nil)

	engine := newEngine(db)
	ctx := context.Background()
	if _, err := engine.Generate(ctx, editor(), ledger.ID, month(t, "2026-02")); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	first := len(db.InsightsByMonth(ledger.ID, "2026-02"))
	if _, err := engine.Generate(ctx, editor(), ledger.ID, month(t, "2026-02")); err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	second := len(db.InsightsByMonth(ledger.ID, "2026-02"))

	if first == 0 || first != second {
		t.Errorf("rows after reruns = %d then %d, want identical non-zero counts", first, second)
	}
}

func TestGenerateRequiresWriteRole(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	viewer := domain.Actor{UserID: "u", Role: domain.RoleViewer}
	_, err := newEngine(db).Generate(context.Background(), viewer, ledger.ID, month(t, "2026-02"))
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}
