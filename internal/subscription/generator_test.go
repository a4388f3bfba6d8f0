package subscription

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

var testNow = time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func editor() domain.Actor {
	return domain.Actor{UserID: "33333333-3333-3333-3333-333333333333", Role: domain.RoleEditor}
}

func newGenerator(db *memory.Store) *Generator {
	return New(db, db).WithClock(func() time.Time { return testNow })
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func addSub(db *memory.Store, ledgerID string, interval domain.SubInterval, nextDue time.Time) domain.Subscription {
	return db.AddSubscription(domain.Subscription{
		LedgerID:     ledgerID,
		AccountID:    "aaaaaaaa-0000-0000-0000-000000000001",
		Name:         "Streaming",
		Amount:       dec("15.99"),
		CurrencyCode: "USD",
		Interval:     interval,
		NextDueDate:  nextDue,
		IsActive:     true,
	})
}

func listGenerated(t *testing.T, db *memory.Store, ledgerID string) []domain.Transaction {
	t.Helper()
	txns, err := db.ListTransactions(context.Background(), ledgerID, store.TransactionFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	return txns
}

func TestGenerateWeeklyOccurrencesWithinHorizon(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	sub := addSub(db, ledger.ID, domain.IntervalWeekly, date(t, "2026-02-21"))

	// Horizon ends 2026-03-07: occurrences 02-21, 02-28 and 03-07 are due.
	res, err := newGenerator(db).Generate(context.Background(), editor(), ledger.ID, 15)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Processed != 1 || res.Created != 3 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want processed=1 created=3 skipped=0", res)
	}

	txns := listGenerated(t, db, ledger.ID)
	if len(txns) != 3 {
		t.Fatalf("transactions = %d, want 3", len(txns))
	}
	wantDates := []string{"2026-02-21", "2026-02-28", "2026-03-07"}
	for i, txn := range txns {
		if got := txn.Date.Format("2006-01-02"); got != wantDates[i] {
			t.Errorf("txn[%d] date = %s, want %s", i, got, wantDates[i])
		}
		if txn.TxnType != domain.TxnExpense {
			t.Errorf("txn[%d] type = %s, want expense", i, txn.TxnType)
		}
		if txn.Description != "Subscription: Streaming" {
			t.Errorf("txn[%d] description = %q", i, txn.Description)
		}
		wantExt := "sub_" + sub.ID + "_" + wantDates[i]
		if txn.ExternalID == nil || *txn.ExternalID != wantExt {
			t.Errorf("txn[%d] external id = %v, want %s", i, txn.ExternalID, wantExt)
		}
	}

	// Next due resumes at the first occurrence beyond the horizon.
	subs, err := db.ListActiveSubscriptions(context.Background(), ledger.ID)
	if err != nil {
		t.Fatalf("ListActiveSubscriptions: %v", err)
	}
	if got := subs[0].NextDueDate.Format("2006-01-02"); got != "2026-03-14" {
		t.Errorf("next due = %s, want 2026-03-14", got)
	}
}

func TestGenerateSecondRunCreatesNothing(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	addSub(db, ledger.ID, domain.IntervalMonthly, date(t, "2026-03-01"))
	// A second subscription on the same schedule shape.
	addSub(db, ledger.ID, domain.IntervalWeekly, date(t, "2026-02-25"))

	gen := newGenerator(db)
	ctx := context.Background()

	first, err := gen.Generate(ctx, editor(), ledger.ID, DefaultHorizonDays)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if first.Created == 0 {
		t.Fatal("first run created nothing")
	}

	second, err := gen.Generate(ctx, editor(), ledger.ID, DefaultHorizonDays)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if second.Created != 0 {
		t.Errorf("second run created = %d, want 0", second.Created)
	}
	if len(listGenerated(t, db, ledger.ID)) != first.Created {
		t.Errorf("transactions = %d, want %d", len(listGenerated(t, db, ledger.ID)), first.Created)
	}
}

func TestGenerateSkipsPastDueDatesWithoutCreating(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	// Due date months in the past; the walk advances over stale occurrences
	// and only materializes today-or-later ones.
	addSub(db, ledger.ID, domain.IntervalMonthly, date(t, "2025-11-05"))

	res, err := newGenerator(db).Generate(context.Background(), editor(), ledger.ID, 30)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// 2025-11-05, 12-05, 2026-01-05 and 02-05 are stale; 03-05 is due.
	if res.Created != 1 {
		t.Fatalf("created = %d, want 1", res.Created)
	}
	txns := listGenerated(t, db, ledger.ID)
	if got := txns[0].Date.Format("2006-01-02"); got != "2026-03-05" {
		t.Errorf("materialized date = %s, want 2026-03-05", got)
	}
}

func TestGenerateLeavesFarFutureScheduleUntouched(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	addSub(db, ledger.ID, domain.IntervalYearly, date(t, "2026-09-01"))

	res, err := newGenerator(db).Generate(context.Background(), editor(), ledger.ID, 45)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Created != 0 || res.Skipped != 0 {
		t.Errorf("result = %+v, want nothing materialized", res)
	}
	subs, _ := db.ListActiveSubscriptions(context.Background(), ledger.ID)
	if got := subs[0].NextDueDate.Format("2006-01-02"); got != "2026-09-01" {
		t.Errorf("next due = %s, want unchanged 2026-09-01", got)
	}
}

func TestGenerateDefaultHorizon(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	addSub(db, ledger.ID, domain.IntervalMonthly, date(t, "2026-03-01"))

	res, err := newGenerator(db).Generate(context.Background(), editor(), ledger.ID, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.HorizonDays != DefaultHorizonDays {
		t.Errorf("horizon = %d, want %d", res.HorizonDays, DefaultHorizonDays)
	}
	// Horizon ends 2026-04-06: 03-01 and 04-01 are due.
	if res.Created != 2 {
		t.Errorf("created = %d, want 2", res.Created)
	}
}

func TestGenerateRequiresWriteRole(t *testing.T) {
	db := memory.New()
	ledger := db.AddLedger(domain.Ledger{Name: "Household", CurrencyCode: "USD"})
	viewer := domain.Actor{UserID: "u", Role: domain.RoleViewer}
	_, err := newGenerator(db).Generate(context.Background(), viewer, ledger.ID, 45)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}
