// Package reconcile recomputes an account's balance from its transaction
// history and compares it against a user-supplied statement balance, writing
// an immutable snapshot row on every call.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/store"
)

// tolerance is the reconciliation threshold: |difference| < 0.01 counts as
// balanced.
var tolerance = decimal.New(1, -2)

// Result is the outcome of one reconciliation call.
type Result struct {
	SnapshotID          string          `json:"snapshot_id"`
	AccountName         string          `json:"account_name"`
	SnapshotDate        time.Time       `json:"snapshot_date"`
	StatementBalance    decimal.Decimal `json:"statement_balance"`
	ComputedBalance     decimal.Decimal `json:"computed_balance"`
	Difference          decimal.Decimal `json:"difference"`
	IsReconciled        bool            `json:"is_reconciled"`
	TransactionsChecked int             `json:"transactions_checked"`
	TransactionsMarked  int             `json:"transactions_marked"`
}

// Engine replays account history against statement balances.
type Engine struct {
	accounts  store.AccountRepository
	txns      store.TransactionRepository
	snapshots store.SnapshotRepository
	audit     store.AuditRepository
	now       func() time.Time
}

// New creates a reconciliation engine.
func New(accounts store.AccountRepository, txns store.TransactionRepository, snapshots store.SnapshotRepository, audit store.AuditRepository) *Engine {
	return &Engine{accounts: accounts, txns: txns, snapshots: snapshots, audit: audit, now: time.Now}
}

// WithClock overrides the engine clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Reconcile replays every transaction on the account dated on or before
// snapshotDate and compares the result to statementBalance. On a match, all
// unreconciled transactions up to that date are flagged reconciled; on a
// mismatch no transaction state changes. Either way a new snapshot row and
// one audit entry are appended.
func (e *Engine) Reconcile(ctx context.Context, actor domain.Actor, ledgerID, accountID string, snapshotDate time.Time, statementBalance decimal.Decimal) (*Result, error) {
	if err := actor.RequireWrite(); err != nil {
		return nil, err
	}
	account, err := e.accounts.FindAccount(ctx, ledgerID, accountID)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: account %s: %w", accountID, err)
	}

	day := domain.DateOnly(snapshotDate)
	history, err := e.txns.ListTransactions(ctx, ledgerID, store.TransactionFilter{
		AccountID:   accountID,
		DateThrough: &day,
	})
	if err != nil {
		return nil, fmt.Errorf("Reconcile: listing history: %w", err)
	}

	computed := ComputeBalance(history)
	difference := statementBalance.Sub(computed).Round(2)
	reconciled := difference.Abs().LessThan(tolerance)

	snapshot := &domain.ReconciliationSnapshot{
		LedgerID:         ledgerID,
		AccountID:        accountID,
		SnapshotDate:     day,
		StatementBalance: statementBalance,
		ComputedBalance:  computed,
		Difference:       difference,
		IsReconciled:     reconciled,
		ReconciledBy:     actor.UserID,
	}
	if reconciled {
		snapshot.Notes = "Balances match"
	} else {
		snapshot.Notes = fmt.Sprintf("Discrepancy: %s", difference.Abs().StringFixed(2))
	}
	if err := e.snapshots.InsertSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("Reconcile: inserting snapshot: %w", err)
	}

	marked := 0
	if reconciled {
		marked, err = e.txns.MarkTransactionsReconciled(ctx, ledgerID, accountID, day, e.now())
		if err != nil {
			// The snapshot already stands; flagging is best-effort.
			log := logger.FromContext(ctx)
			log.Warn().
				Str("account_id", accountID).
				Err(err).
				Msg("reconcile: marking transactions failed")
		}
	}

	if err := e.audit.AppendAudit(ctx, &domain.AuditEntry{
		LedgerID:  ledgerID,
		TableName: "reconciliation_snapshots",
		RecordID:  snapshot.ID,
		Action:    "RECONCILE",
		ActorID:   actor.UserID,
		AfterData: map[string]any{
			"account_id":        accountID,
			"snapshot_date":     day.Format("2006-01-02"),
			"statement_balance": statementBalance.String(),
			"computed_balance":  computed.String(),
			"difference":        difference.String(),
			"is_reconciled":     reconciled,
			"txn_count":         len(history),
		},
	}); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("reconcile: audit append failed")
	}

	return &Result{
		SnapshotID:          snapshot.ID,
		AccountName:         account.Name,
		SnapshotDate:        day,
		StatementBalance:    statementBalance,
		ComputedBalance:     computed,
		Difference:          difference,
		IsReconciled:        reconciled,
		TransactionsChecked: len(history),
		TransactionsMarked:  marked,
	}, nil
}

// ComputeBalance replays a slice of one account's transactions: income and
// refund add, expense subtracts, adjustment adds its signed amount directly.
// Transfer legs ride along in each account's history slice but are balance
// neutral in the replay, matching how statement balances are booked.
func ComputeBalance(history []domain.Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, t := range history {
		switch t.TxnType {
		case domain.TxnIncome, domain.TxnRefund:
			balance = balance.Add(t.Amount)
		case domain.TxnExpense:
			balance = balance.Sub(t.Amount)
		case domain.TxnAdjustment:
			// The one type allowed to correct balance directly; the amount
			// carries its own sign.
			balance = balance.Add(t.Amount)
		}
	}
	return balance
}
