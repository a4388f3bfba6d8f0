package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerly/ledgerly/internal/aggregate"
	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/insight"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/store"
	"github.com/ledgerly/ledgerly/internal/subscription"
)

// Runner dispatches queued recompute jobs to the owning engine.
type Runner struct {
	members       store.LedgerRepository
	aggregator    *aggregate.Engine
	insights      *insight.Engine
	subscriptions *subscription.Generator
	now           func() time.Time
}

func NewRunner(members store.LedgerRepository, aggregator *aggregate.Engine, insights *insight.Engine, subscriptions *subscription.Generator) *Runner {
	return &Runner{
		members:       members,
		aggregator:    aggregator,
		insights:      insights,
		subscriptions: subscriptions,
		now:           time.Now,
	}
}

// WithClock overrides the runner's notion of the current month. Used in tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Handle executes one job. It satisfies the Handler signature, so a returned
// error means the queue will retry the job.
func (r *Runner) Handle(ctx context.Context, job *RecomputeJob) error {
	actor, err := r.resolveActor(ctx, job)
	if err != nil {
		return fmt.Errorf("Handle: %w", err)
	}

	month, err := r.resolveMonth(job)
	if err != nil {
		return fmt.Errorf("Handle: %w", err)
	}

	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("job_type", string(job.Type)).
		Str("ledger_id", job.LedgerID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	switch job.Type {
	case JobTypeAggregateSummaries:
		_, err = r.aggregator.Aggregate(ctx, actor, job.LedgerID, month, job.BackfillMonths)
	case JobTypeGenerateInsights:
		_, err = r.insights.Generate(ctx, actor, job.LedgerID, month)
	case JobTypeGenerateSubscriptions:
		_, err = r.subscriptions.Generate(ctx, actor, job.LedgerID, job.HorizonDays)
	default:
		return fmt.Errorf("Handle: unknown job type %q", job.Type)
	}
	if err != nil {
		return fmt.Errorf("Handle: %s: %w", job.Type, err)
	}
	log.Info().Msg("recompute job completed")
	return nil
}

// resolveActor maps the job's actor id to a ledger role. Jobs with no actor
// were scheduled by the worker itself and run with admin rights.
func (r *Runner) resolveActor(ctx context.Context, job *RecomputeJob) (domain.Actor, error) {
	if job.ActorID == "" {
		return domain.Actor{Role: domain.RoleAdmin}, nil
	}
	role, err := r.members.FindMemberRole(ctx, job.LedgerID, job.ActorID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("resolving actor role: %w", err)
	}
	return domain.Actor{UserID: job.ActorID, Role: role}, nil
}

// resolveMonth parses the job's target month, defaulting to the current one.
func (r *Runner) resolveMonth(job *RecomputeJob) (domain.YearMonth, error) {
	if job.Month == "" {
		return domain.YearMonthOf(r.now()), nil
	}
	ym, err := domain.ParseYearMonth(job.Month)
	if err != nil {
		return domain.YearMonth{}, fmt.Errorf("parsing month %q: %w", job.Month, err)
	}
	return ym, nil
}
