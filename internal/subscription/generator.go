// Package subscription materializes recurring subscriptions into dated
// expense transactions, walking each schedule up to a horizon.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/store"
)

// DefaultHorizonDays is how far ahead occurrences are materialized when the
// caller does not say otherwise.
const DefaultHorizonDays = 45

// Result reports one generation run.
type Result struct {
	Processed   int `json:"subscriptions_processed"`
	Created     int `json:"transactions_created"`
	Skipped     int `json:"transactions_skipped"`
	HorizonDays int `json:"horizon_days"`
}

// Generator walks active subscriptions and inserts one expense per due
// occurrence, deduplicated by a derived external id so reruns over the same
// horizon create nothing new.
type Generator struct {
	subs store.SubscriptionRepository
	txns store.TransactionRepository
	now  func() time.Time
}

func New(subs store.SubscriptionRepository, txns store.TransactionRepository) *Generator {
	return &Generator{subs: subs, txns: txns, now: time.Now}
}

// WithClock overrides the generator's notion of "today". Used in tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate materializes every occurrence due within horizonDays of today.
// Occurrences already past are advanced over without creating transactions;
// occurrences already materialized (matching external id) count as skipped.
// Zero or negative horizonDays means DefaultHorizonDays.
func (g *Generator) Generate(ctx context.Context, actor domain.Actor, ledgerID string, horizonDays int) (*Result, error) {
	if err := actor.RequireWrite(); err != nil {
		return nil, fmt.Errorf("Generate: %w", err)
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	today := domain.DateOnly(g.now())
	horizon := today.AddDate(0, 0, horizonDays)

	subs, err := g.subs.ListActiveSubscriptions(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("Generate: listing subscriptions: %w", err)
	}

	res := &Result{Processed: len(subs), HorizonDays: horizonDays}
	for _, sub := range subs {
		if err := g.walkSubscription(ctx, actor, &sub, today, horizon, res); err != nil {
			return nil, fmt.Errorf("Generate: subscription %s: %w", sub.ID, err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("ledger_id", ledgerID).
		Int("processed", res.Processed).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Msg("subscription instances generated")
	return res, nil
}

func (g *Generator) walkSubscription(ctx context.Context, actor domain.Actor, sub *domain.Subscription, today, horizon time.Time, res *Result) error {
	due := domain.DateOnly(sub.NextDueDate)
	start := due

	for !due.After(horizon) {
		if due.Before(today) {
			due = advance(due, sub.Interval)
			continue
		}

		externalID := fmt.Sprintf("sub_%s_%s", sub.ID, due.Format("2006-01-02"))
		_, err := g.txns.FindTransactionByExternalID(ctx, sub.LedgerID, externalID)
		switch {
		case err == nil:
			res.Skipped++
		case errors.Is(err, domain.ErrNotFound):
			txn := domain.Transaction{
				LedgerID:     sub.LedgerID,
				AccountID:    sub.AccountID,
				CategoryID:   sub.CategoryID,
				MerchantID:   sub.MerchantID,
				TxnType:      domain.TxnExpense,
				Amount:       sub.Amount,
				CurrencyCode: sub.CurrencyCode,
				Date:         due,
				Description:  "Subscription: " + sub.Name,
				Notes:        fmt.Sprintf("Auto-generated from subscription %s", sub.ID),
				ExternalID:   &externalID,
				CreatedBy:    actor.UserID,
			}
			if err := g.txns.InsertTransaction(ctx, &txn); err != nil {
				return fmt.Errorf("inserting occurrence %s: %w", externalID, err)
			}
			res.Created++
		default:
			return fmt.Errorf("checking occurrence %s: %w", externalID, err)
		}

		due = advance(due, sub.Interval)
	}

	// due now sits on the first occurrence beyond the horizon; persisting it
	// means the next run resumes without re-walking materialized dates.
	if due.After(start) {
		if err := g.subs.UpdateNextDueDate(ctx, sub.ID, due); err != nil {
			return fmt.Errorf("advancing next due date: %w", err)
		}
	}
	return nil
}

func advance(date time.Time, interval domain.SubInterval) time.Time {
	switch interval {
	case domain.IntervalDaily:
		return date.AddDate(0, 0, 1)
	case domain.IntervalWeekly:
		return date.AddDate(0, 0, 7)
	case domain.IntervalMonthly:
		return date.AddDate(0, 1, 0)
	case domain.IntervalQuarterly:
		return date.AddDate(0, 3, 0)
	case domain.IntervalYearly:
		return date.AddDate(1, 0, 0)
	default:
		// Unknown intervals jump a month so the walk always terminates.
		return date.AddDate(0, 1, 0)
	}
}
