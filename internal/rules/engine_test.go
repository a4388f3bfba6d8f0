package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/store"
	"github.com/ledgerly/ledgerly/internal/store/memory"
)

var testNow = time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)

func editor() domain.Actor {
	return domain.Actor{UserID: "11111111-1111-1111-1111-111111111111", Role: domain.RoleEditor}
}

func seedTxn(db *memory.Store, ledgerID, desc, notes string, txnType domain.TxnType, daysAgo int) domain.Transaction {
	txn := domain.Transaction{
		LedgerID:     ledgerID,
		AccountID:    "aaaaaaaa-0000-0000-0000-000000000001",
		TxnType:      txnType,
		Amount:       decimal.RequireFromString("10.00"),
		CurrencyCode: "USD",
		Date:         domain.DateOnly(testNow.AddDate(0, 0, -daysAgo)),
		Description:  desc,
		Notes:        notes,
	}
	if err := db.InsertTransaction(context.Background(), &txn); err != nil {
		panic(err)
	}
	return txn
}

func strptr(s string) *string { return &s }

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"AMZN%", "AMZN Marketplace", true},
		{"%coffee%", "Blue Bottle COFFEE #12", true},
		{"UBER _RIP", "UBER TRIP", true},
		{"UBER _RIP", "UBER TRRIP", false},
		{"netflix", "NETFLIX.COM", true},
		{"1.99", "199", false}, // dot is literal, not a regex wildcard
	}
	for _, tt := range tests {
		re, err := CompilePattern(tt.pattern)
		if err != nil {
			t.Fatalf("CompilePattern(%q): %v", tt.pattern, err)
		}
		if got := re.MatchString(tt.input); got != tt.want {
			t.Errorf("pattern %q against %q = %v, want %v", tt.pattern, tt.input, got, tt.want)
		}
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	db := memory.New()
	ledgerID := "ledger-1"
	txn := seedTxn(db, ledgerID, "Spotify Premium", "", domain.TxnExpense, 3)

	highCat := strptr("cat-music")
	lowCat := strptr("cat-entertainment")
	db.AddRule(domain.ClassificationRule{
		LedgerID: ledgerID, MatchField: domain.MatchDescription,
		MatchPattern: "%spotify%", CategoryID: highCat, Priority: 10, IsActive: true,
	})
	db.AddRule(domain.ClassificationRule{
		LedgerID: ledgerID, MatchField: domain.MatchDescription,
		MatchPattern: "%premium%", CategoryID: lowCat, Priority: 5, IsActive: true,
	})

	engine := New(db, db, db).WithClock(func() time.Time { return testNow })
	res, err := engine.Evaluate(context.Background(), editor(), ledgerID, 30, ModeApply)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Matched != 1 || res.Applied != 1 {
		t.Fatalf("matched=%d applied=%d, want 1/1", res.Matched, res.Applied)
	}

	got, err := db.FindTransaction(context.Background(), txn.ID)
	if err != nil {
		t.Fatalf("FindTransaction: %v", err)
	}
	if got.CategoryID == nil || *got.CategoryID != *highCat {
		t.Errorf("category = %v, want priority-10 rule's %q", got.CategoryID, *highCat)
	}
}

func TestEvaluateTestModeWritesNothing(t *testing.T) {
	db := memory.New()
	ledgerID := "ledger-1"
	txn := seedTxn(db, ledgerID, "AMZN Marketplace", "", domain.TxnExpense, 1)
	db.AddRule(domain.ClassificationRule{
		LedgerID: ledgerID, MatchField: domain.MatchDescription,
		MatchPattern: "AMZN%", CategoryID: strptr("cat-shopping"), Priority: 1, IsActive: true,
	})

	engine := New(db, db, db).WithClock(func() time.Time { return testNow })
	res, err := engine.Evaluate(context.Background(), editor(), ledgerID, 30, ModeTest)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Matched != 1 || res.Applied != 0 {
		t.Fatalf("matched=%d applied=%d, want 1/0", res.Matched, res.Applied)
	}
	if len(res.Samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(res.Samples))
	}

	got, _ := db.FindTransaction(context.Background(), txn.ID)
	if got.CategoryID != nil {
		t.Errorf("test mode wrote category %q", *got.CategoryID)
	}
	if len(db.Audits()) != 0 {
		t.Errorf("test mode wrote %d audit entries, want 0", len(db.Audits()))
	}
}

func TestEvaluateApplyKeepsUnsetFields(t *testing.T) {
	db := memory.New()
	ledgerID := "ledger-1"
	txn := seedTxn(db, ledgerID, "Corner Bakery", "", domain.TxnExpense, 2)
	existingMerchant := strptr("merch-bakery")
	if err := db.ApplyClassification(context.Background(), txn.ID, store.ClassificationUpdate{MerchantID: existingMerchant}); err != nil {
		t.Fatalf("seeding merchant: %v", err)
	}

	// The rule sets only a category; the existing merchant must survive.
	db.AddRule(domain.ClassificationRule{
		LedgerID: ledgerID, MatchField: domain.MatchDescription,
		MatchPattern: "%bakery%", CategoryID: strptr("cat-food"), Priority: 1, IsActive: true,
	})

	engine := New(db, db, db).WithClock(func() time.Time { return testNow })
	if _, err := engine.Evaluate(context.Background(), editor(), ledgerID, 30, ModeApply); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	got, _ := db.FindTransaction(context.Background(), txn.ID)
	if got.MerchantID == nil || *got.MerchantID != *existingMerchant {
		t.Errorf("merchant = %v, want untouched %q", got.MerchantID, *existingMerchant)
	}
	if got.CategoryID == nil || *got.CategoryID != "cat-food" {
		t.Errorf("category = %v, want cat-food", got.CategoryID)
	}
}

func TestEvaluateSkipsEmptyTargetField(t *testing.T) {
	db := memory.New()
	ledgerID := "ledger-1"
	seedTxn(db, ledgerID, "Anything", "", domain.TxnExpense, 1)
	db.AddRule(domain.ClassificationRule{
		LedgerID: ledgerID, MatchField: domain.MatchNotes,
		MatchPattern: "%", CategoryID: strptr("cat-x"), Priority: 1, IsActive: true,
	})

	engine := New(db, db, db).WithClock(func() time.Time { return testNow })
	res, err := engine.Evaluate(context.Background(), editor(), ledgerID, 30, ModeTest)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Matched != 0 {
		t.Errorf("matched = %d, want 0 for empty notes field", res.Matched)
	}
}

func TestEvaluateIgnoresTransactionsOutsideLookback(t *testing.T) {
	db := memory.New()
	ledgerID := "ledger-1"
	seedTxn(db, ledgerID, "Netflix", "", domain.TxnExpense, 45)
	db.AddRule(domain.ClassificationRule{
		LedgerID: ledgerID, MatchField: domain.MatchDescription,
		MatchPattern: "netflix%", CategoryID: strptr("cat-tv"), Priority: 1, IsActive: true,
	})

	engine := New(db, db, db).WithClock(func() time.Time { return testNow })
	res, err := engine.Evaluate(context.Background(), editor(), ledgerID, 30, ModeTest)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.TotalConsidered != 0 {
		t.Errorf("considered = %d, want 0 outside the 30-day window", res.TotalConsidered)
	}
}

func TestEvaluateApplyWritesAuditEntry(t *testing.T) {
	db := memory.New()
	ledgerID := "ledger-1"
	seedTxn(db, ledgerID, "Uber Trip", "", domain.TxnExpense, 1)
	db.AddRule(domain.ClassificationRule{
		LedgerID: ledgerID, MatchField: domain.MatchDescription,
		MatchPattern: "uber%", CategoryID: strptr("cat-transport"), Priority: 1, IsActive: true,
	})

	engine := New(db, db, db).WithClock(func() time.Time { return testNow })
	if _, err := engine.Evaluate(context.Background(), editor(), ledgerID, 30, ModeApply); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	audits := db.Audits()
	if len(audits) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audits))
	}
	if audits[0].Action != "BULK_CLASSIFY" {
		t.Errorf("audit action = %q, want BULK_CLASSIFY", audits[0].Action)
	}
	if audits[0].AfterData["applied"] != 1 {
		t.Errorf("audit applied = %v, want 1", audits[0].AfterData["applied"])
	}
}

// failingTxnRepo refuses classification writes for one transaction id.
type failingTxnRepo struct {
	store.TransactionRepository
	failID string
}

func (f *failingTxnRepo) ApplyClassification(ctx context.Context, txnID string, upd store.ClassificationUpdate) error {
	if txnID == f.failID {
		return errors.New("write refused")
	}
	return f.TransactionRepository.ApplyClassification(ctx, txnID, upd)
}

func TestEvaluateApplyContinuesPastRowFailure(t *testing.T) {
	db := memory.New()
	ledgerID := "ledger-1"
	bad := seedTxn(db, ledgerID, "Uber Trip", "", domain.TxnExpense, 1)
	good := seedTxn(db, ledgerID, "Uber Eats", "", domain.TxnExpense, 2)
	db.AddRule(domain.ClassificationRule{
		LedgerID: ledgerID, MatchField: domain.MatchDescription,
		MatchPattern: "uber%", CategoryID: strptr("cat-transport"), Priority: 1, IsActive: true,
	})

	txns := &failingTxnRepo{TransactionRepository: db, failID: bad.ID}
	engine := New(txns, db, db).WithClock(func() time.Time { return testNow })
	res, err := engine.Evaluate(context.Background(), editor(), ledgerID, 30, ModeApply)
	if err != nil {
		t.Fatalf("Evaluate returned %v, want nil despite the row failure", err)
	}
	if res.Matched != 2 {
		t.Fatalf("matched = %d, want 2", res.Matched)
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1 (failed row must not count)", res.Applied)
	}

	got, _ := db.FindTransaction(context.Background(), good.ID)
	if got.CategoryID == nil || *got.CategoryID != "cat-transport" {
		t.Errorf("surviving row category = %v, want cat-transport", got.CategoryID)
	}
	failed, _ := db.FindTransaction(context.Background(), bad.ID)
	if failed.CategoryID != nil {
		t.Errorf("failed row category = %q, want untouched", *failed.CategoryID)
	}
}

func TestEvaluateApplyRequiresWriteRole(t *testing.T) {
	db := memory.New()
	engine := New(db, db, db)
	viewer := domain.Actor{UserID: "u1", Role: domain.RoleViewer}

	if _, err := engine.Evaluate(context.Background(), viewer, "ledger-1", 30, ModeApply); err != domain.ErrForbidden {
		t.Errorf("Evaluate as viewer = %v, want ErrForbidden", err)
	}
	// Test mode is read-only and stays open to viewers.
	if _, err := engine.Evaluate(context.Background(), viewer, "ledger-1", 30, ModeTest); err != nil {
		t.Errorf("Evaluate test mode as viewer: %v", err)
	}
}
