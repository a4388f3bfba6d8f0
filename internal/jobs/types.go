// Package jobs defines the asynchronous recompute jobs the worker runs:
// summary aggregation, insight generation and subscription materialization.
package jobs

import (
	"context"
	"time"
)

// JobType selects which engine a recompute job drives.
type JobType string

const (
	// JobTypeAggregateSummaries recomputes monthly summaries for a ledger.
	JobTypeAggregateSummaries JobType = "aggregate_summaries"
	// JobTypeGenerateInsights regenerates a month's insights for a ledger.
	JobTypeGenerateInsights JobType = "generate_insights"
	// JobTypeGenerateSubscriptions materializes due subscription instances.
	JobTypeGenerateSubscriptions JobType = "generate_subscriptions"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// RecomputeJob is one queued engine invocation. Month, BackfillMonths and
// HorizonDays are interpreted per job type; unused fields stay zero.
type RecomputeJob struct {
	JobID    string  `json:"job_id"`
	Type     JobType `json:"type"`
	LedgerID string  `json:"ledger_id"`
	ActorID  string  `json:"actor_id"`

	// Month (YYYY-MM) targets aggregation and insight jobs.
	Month string `json:"month,omitempty"`
	// BackfillMonths extends aggregation jobs backwards from Month.
	BackfillMonths int `json:"backfill_months,omitempty"`
	// HorizonDays bounds subscription materialization jobs.
	HorizonDays int `json:"horizon_days,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// Publisher enqueues recompute jobs. Implementations may be in-memory or a
// real broker; callers only see this interface.
type Publisher interface {
	Publish(ctx context.Context, job *RecomputeJob) error
	Close() error
}

// Consumer delivers queued jobs to a handler until stopped.
type Consumer interface {
	// Start begins consuming; the handler runs once per delivered job.
	Start(ctx context.Context, handler Handler) error
	// Stop drains in-flight jobs before returning.
	Stop(ctx context.Context) error
}

// Handler processes one job. A returned error marks the job for retry.
type Handler func(ctx context.Context, job *RecomputeJob) error

// JobStore tracks job state so callers can poll progress.
type JobStore interface {
	SaveJob(ctx context.Context, job *RecomputeJob) error
	GetJob(ctx context.Context, jobID string) (*RecomputeJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*RecomputeJob, error)
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	LedgerID string
	Type     JobType
	Status   JobStatus
	Limit    int
	Offset   int
}
