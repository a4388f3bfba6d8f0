package domain

// TxnType classifies a transaction row. Amounts are stored non-negative;
// direction is derived from the type when balances are replayed.
type TxnType string

const (
	TxnIncome     TxnType = "income"
	TxnExpense    TxnType = "expense"
	TxnTransfer   TxnType = "transfer"
	TxnRefund     TxnType = "refund"
	TxnAdjustment TxnType = "adjustment"
)

// IsValid reports whether t is one of the known transaction types.
func (t TxnType) IsValid() bool {
	switch t {
	case TxnIncome, TxnExpense, TxnTransfer, TxnRefund, TxnAdjustment:
		return true
	}
	return false
}

// BudgetPeriod is the recurrence window of a budget definition.
type BudgetPeriod string

const (
	PeriodWeekly    BudgetPeriod = "weekly"
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodYearly    BudgetPeriod = "yearly"
)

// SubInterval is the recurrence step of a subscription.
type SubInterval string

const (
	IntervalDaily     SubInterval = "daily"
	IntervalWeekly    SubInterval = "weekly"
	IntervalMonthly   SubInterval = "monthly"
	IntervalQuarterly SubInterval = "quarterly"
	IntervalYearly    SubInterval = "yearly"
)

// IsValid reports whether i is one of the known subscription intervals.
func (i SubInterval) IsValid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalQuarterly, IntervalYearly:
		return true
	}
	return false
}

// MatchField names the transaction text field a classification rule runs against.
type MatchField string

const (
	MatchDescription MatchField = "description"
	MatchNotes       MatchField = "notes"
)

// LedgerRole is a user's membership role within a ledger.
type LedgerRole string

const (
	RoleOwner  LedgerRole = "owner"
	RoleAdmin  LedgerRole = "admin"
	RoleEditor LedgerRole = "editor"
	RoleViewer LedgerRole = "viewer"
)

// CanWrite reports whether the role permits write operations on the ledger.
// Viewers can read derived state but never trigger engine writes.
func (r LedgerRole) CanWrite() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleEditor
}
