// Package rules is the classification rule engine. It matches transaction
// text against user-defined SQL-LIKE wildcard patterns and assigns category
// and/or merchant with first-match-wins semantics per transaction.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/store"
)

// Mode selects between a dry run and an applying run.
type Mode string

const (
	// ModeTest evaluates rules without writing anything.
	ModeTest Mode = "test"
	// ModeApply updates matched transactions and records an audit entry.
	ModeApply Mode = "apply"
)

// DefaultLookbackDays is the candidate window when the caller passes none.
const DefaultLookbackDays = 30

// maxSamples caps the matches echoed back in test mode.
const maxSamples = 20

// Sample is one would-be classification, returned in test mode.
type Sample struct {
	TransactionID string  `json:"transaction_id"`
	Description   string  `json:"description"`
	RuleID        string  `json:"rule_id"`
	Pattern       string  `json:"pattern"`
	CategoryID    *string `json:"new_category_id,omitempty"`
	MerchantID    *string `json:"new_merchant_id,omitempty"`
}

// Result summarizes one evaluation pass. Batch callers always get counts
// back, never a bare failure, so partial success is displayable.
type Result struct {
	Mode            Mode     `json:"mode"`
	TotalConsidered int      `json:"total_considered"`
	RulesEvaluated  int      `json:"rules_evaluated"`
	Matched         int      `json:"matched"`
	Applied         int      `json:"applied"`
	Samples         []Sample `json:"samples,omitempty"`
}

// Engine evaluates a ledger's classification rules.
type Engine struct {
	txns  store.TransactionRepository
	rules store.RuleRepository
	audit store.AuditRepository
	now   func() time.Time
}

// New creates a rule engine.
func New(txns store.TransactionRepository, rules store.RuleRepository, audit store.AuditRepository) *Engine {
	return &Engine{txns: txns, rules: rules, audit: audit, now: time.Now}
}

// WithClock overrides the engine clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// compiledRule pairs a rule with its translated pattern. Patterns compile
// once per evaluation pass, not once per transaction.
type compiledRule struct {
	rule domain.ClassificationRule
	re   *regexp.Regexp
}

// Evaluate runs the ledger's active rules over income and expense
// transactions inside the lookback window. In test mode nothing is written;
// in apply mode matched transactions receive the rule's category/merchant
// (only the fields the rule sets) and one audit entry summarizes the run.
func (e *Engine) Evaluate(ctx context.Context, actor domain.Actor, ledgerID string, lookbackDays int, mode Mode) (*Result, error) {
	if mode != ModeTest && mode != ModeApply {
		return nil, domain.Validationf("mode", "want %q or %q, got %q", ModeTest, ModeApply, mode)
	}
	if mode == ModeApply {
		if err := actor.RequireWrite(); err != nil {
			return nil, err
		}
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	ruleRows, err := e.rules.ListActiveRules(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("Evaluate: listing rules: %w", err)
	}
	result := &Result{Mode: mode, RulesEvaluated: len(ruleRows)}
	if len(ruleRows) == 0 {
		return result, nil
	}

	compiled := make([]compiledRule, 0, len(ruleRows))
	for _, r := range ruleRows {
		re, err := CompilePattern(r.MatchPattern)
		if err != nil {
			// A malformed pattern disables the rule for this pass only.
			log := logger.FromContext(ctx)
			log.Warn().
				Str("rule_id", r.ID).
				Str("pattern", r.MatchPattern).
				Err(err).
				Msg("rules: skipping uncompilable pattern")
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, re: re})
	}

	cutoff := domain.DateOnly(e.now().AddDate(0, 0, -lookbackDays))
	candidates, err := e.txns.ListTransactions(ctx, ledgerID, store.TransactionFilter{
		Types:    []domain.TxnType{domain.TxnIncome, domain.TxnExpense},
		DateFrom: &cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("Evaluate: listing transactions: %w", err)
	}
	result.TotalConsidered = len(candidates)

	var matches []Sample
	for _, txn := range candidates {
		for _, cr := range compiled {
			target := txn.Description
			if cr.rule.MatchField == domain.MatchNotes {
				target = txn.Notes
			}
			if target == "" {
				continue
			}
			if !cr.re.MatchString(target) {
				continue
			}
			matches = append(matches, Sample{
				TransactionID: txn.ID,
				Description:   txn.Description,
				RuleID:        cr.rule.ID,
				Pattern:       cr.rule.MatchPattern,
				CategoryID:    cr.rule.CategoryID,
				MerchantID:    cr.rule.MerchantID,
			})
			break // first match wins
		}
	}
	result.Matched = len(matches)

	if mode == ModeTest {
		if len(matches) > maxSamples {
			result.Samples = matches[:maxSamples]
		} else {
			result.Samples = matches
		}
		return result, nil
	}

	log := logger.FromContext(ctx)
	for _, m := range matches {
		upd := store.ClassificationUpdate{CategoryID: m.CategoryID, MerchantID: m.MerchantID}
		if upd.CategoryID == nil && upd.MerchantID == nil {
			continue
		}
		if err := e.txns.ApplyClassification(ctx, m.TransactionID, upd); err != nil {
			// Per-row failures never abort the batch; they just don't count.
			log.Warn().
				Str("transaction_id", m.TransactionID).
				Err(err).
				Msg("rules: apply failed for transaction")
			continue
		}
		result.Applied++
	}

	if err := e.audit.AppendAudit(ctx, &domain.AuditEntry{
		LedgerID:  ledgerID,
		TableName: "transactions",
		RecordID:  "00000000-0000-0000-0000-000000000000",
		Action:    "BULK_CLASSIFY",
		ActorID:   actor.UserID,
		AfterData: map[string]any{
			"rules_evaluated": result.RulesEvaluated,
			"matched":         result.Matched,
			"applied":         result.Applied,
			"lookback_days":   lookbackDays,
		},
	}); err != nil {
		log.Warn().Err(err).Msg("rules: audit append failed")
	}

	return result, nil
}

// CompilePattern translates a SQL-LIKE-style wildcard pattern into a
// case-insensitive regexp: % matches any run, _ matches any single character,
// everything else is literal. Matching is unanchored, so a plain word pattern
// hits anywhere inside the field.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return regexp.Compile(b.String())
}
