// Package ledger provides transaction creation paths with linked semantics:
// two-legged transfers and refunds tied to an original expense.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/store"
)

// TransferInput describes a move of funds between two accounts of the same
// ledger. Description applies to both legs when set; otherwise each leg gets
// a direction-specific default.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	CurrencyCode  string
	Date          time.Time
	Description   string
}

// RefundInput describes a refund row tied to an original expense.
type RefundInput struct {
	AccountID    string
	Amount       decimal.Decimal
	CurrencyCode string
	Date         time.Time
	Description  string
}

// Service creates linked transaction rows.
type Service struct {
	accounts store.AccountRepository
	txns     store.TransactionRepository
}

func New(accounts store.AccountRepository, txns store.TransactionRepository) *Service {
	return &Service{accounts: accounts, txns: txns}
}

// CreateTransfer inserts two transfer rows, one per account, each carrying
// the other's id as its peer. Both legs share the amount and date, so replay
// of either account's history stays balance-neutral at the ledger level.
func (s *Service) CreateTransfer(ctx context.Context, actor domain.Actor, ledgerID string, in TransferInput) (*domain.Transaction, *domain.Transaction, error) {
	if err := actor.RequireWrite(); err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: %w", err)
	}
	if err := validateMovement(in.Amount, in.CurrencyCode, in.Date); err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: %w", err)
	}
	if in.FromAccountID == in.ToAccountID {
		return nil, nil, fmt.Errorf("CreateTransfer: %w", domain.Validationf("to_account_id", "from and to accounts must differ"))
	}
	if _, err := s.accounts.FindAccount(ctx, ledgerID, in.FromAccountID); err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: resolving source account: %w", err)
	}
	if _, err := s.accounts.FindAccount(ctx, ledgerID, in.ToAccountID); err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: resolving destination account: %w", err)
	}

	fromID := uuid.NewString()
	toID := uuid.NewString()
	outDesc, inDesc := in.Description, in.Description
	if in.Description == "" {
		outDesc, inDesc = "Transfer out", "Transfer in"
	}

	out := domain.Transaction{
		ID:             fromID,
		LedgerID:       ledgerID,
		AccountID:      in.FromAccountID,
		TxnType:        domain.TxnTransfer,
		Amount:         in.Amount,
		CurrencyCode:   in.CurrencyCode,
		Date:           domain.DateOnly(in.Date),
		Description:    outDesc,
		TransferPeerID: &toID,
		CreatedBy:      actor.UserID,
	}
	into := domain.Transaction{
		ID:             toID,
		LedgerID:       ledgerID,
		AccountID:      in.ToAccountID,
		TxnType:        domain.TxnTransfer,
		Amount:         in.Amount,
		CurrencyCode:   in.CurrencyCode,
		Date:           domain.DateOnly(in.Date),
		Description:    inDesc,
		TransferPeerID: &fromID,
		CreatedBy:      actor.UserID,
	}

	if err := s.txns.InsertTransaction(ctx, &out); err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: inserting source leg: %w", err)
	}
	if err := s.txns.InsertTransaction(ctx, &into); err != nil {
		return nil, nil, fmt.Errorf("CreateTransfer: inserting destination leg: %w", err)
	}
	return &out, &into, nil
}

// CreateRefund inserts a refund row linked to an original expense. Refunding
// anything other than an expense is rejected.
func (s *Service) CreateRefund(ctx context.Context, actor domain.Actor, ledgerID, originalTxnID string, in RefundInput) (*domain.Transaction, error) {
	if err := actor.RequireWrite(); err != nil {
		return nil, fmt.Errorf("CreateRefund: %w", err)
	}
	if err := validateMovement(in.Amount, in.CurrencyCode, in.Date); err != nil {
		return nil, fmt.Errorf("CreateRefund: %w", err)
	}

	original, err := s.txns.FindTransaction(ctx, originalTxnID)
	if err != nil {
		return nil, fmt.Errorf("CreateRefund: resolving original: %w", err)
	}
	if original.LedgerID != ledgerID {
		return nil, fmt.Errorf("CreateRefund: resolving original: %w", domain.ErrNotFound)
	}
	if original.TxnType != domain.TxnExpense {
		return nil, fmt.Errorf("CreateRefund: %w", domain.Validationf("original_txn_id", "only expense transactions can be refunded"))
	}

	txn := domain.Transaction{
		LedgerID:     ledgerID,
		AccountID:    in.AccountID,
		CategoryID:   original.CategoryID,
		MerchantID:   original.MerchantID,
		TxnType:      domain.TxnRefund,
		Amount:       in.Amount,
		CurrencyCode: in.CurrencyCode,
		Date:         domain.DateOnly(in.Date),
		Description:  in.Description,
		RefundOfID:   &originalTxnID,
		CreatedBy:    actor.UserID,
	}
	if err := s.txns.InsertTransaction(ctx, &txn); err != nil {
		return nil, fmt.Errorf("CreateRefund: inserting refund: %w", err)
	}
	return &txn, nil
}

func validateMovement(amount decimal.Decimal, currency string, date time.Time) error {
	if !amount.IsPositive() {
		return domain.Validationf("amount", "must be positive")
	}
	if len(currency) != 3 {
		return domain.Validationf("currency_code", "must be a 3-letter code")
	}
	if date.IsZero() {
		return domain.Validationf("date", "is required")
	}
	return nil
}
