package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerly/ledgerly/internal/aggregate"
	"github.com/ledgerly/ledgerly/internal/config"
	"github.com/ledgerly/ledgerly/internal/domain"
	"github.com/ledgerly/ledgerly/internal/fx"
	"github.com/ledgerly/ledgerly/internal/insight"
	"github.com/ledgerly/ledgerly/internal/jobs"
	"github.com/ledgerly/ledgerly/internal/jobs/inmemory"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/store/postgres"
	"github.com/ledgerly/ledgerly/internal/subscription"
)

// The worker sweeps every active ledger on an interval: it rolls monthly
// summaries forward, regenerates the current month's insights and
// materializes due subscription instances.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	interval := flag.Duration("interval", 6*time.Hour, "time between recompute sweeps")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New("ledgerly-worker", "release")
		boot.Fatal().Err(err).Msg("loading config failed")
	}
	log := logger.New("ledgerly-worker", cfg.Server.Mode)

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database failed")
	}

	converter := fx.New(db, fx.NewHTTPSource(cfg.FX.BaseURL, cfg.FX.FetchTimeout), fx.Options{
		CacheTTL:       cfg.FX.CacheTTL,
		PersistTimeout: cfg.FX.PersistTimeout,
	})

	aggregator := aggregate.New(db, db, db, converter)
	insights := insight.New(db, db, db, db, db, converter)
	subscriptions := subscription.New(db, db)
	runner := jobs.NewRunner(db, aggregator, insights, subscriptions)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.QueueSize, cfg.Jobs.Workers, jobStore)

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	if err := jobQueue.Start(ctx, runner.Handle); err != nil {
		log.Fatal().Err(err).Msg("starting job consumer failed")
	}
	log.Info().Dur("interval", *interval).Msg("worker started")

	go sweepLoop(ctx, log, db, jobQueue, *interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("stopping job queue failed")
	}
	log.Info().Msg("worker exited")
}

type ledgerLister interface {
	ListActiveLedgers(ctx context.Context) ([]domain.Ledger, error)
}

func sweepLoop(ctx context.Context, log zerolog.Logger, db ledgerLister, publisher jobs.Publisher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One sweep at startup so a fresh deployment catches up immediately.
	sweep(ctx, log, db, publisher)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, log, db, publisher)
		}
	}
}

// sweep enqueues the recompute jobs for every active ledger. Jobs carry no
// actor id: the runner executes them with system rights.
func sweep(ctx context.Context, log zerolog.Logger, db ledgerLister, publisher jobs.Publisher) {
	ledgers, err := db.ListActiveLedgers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("listing ledgers for sweep failed")
		return
	}

	month := domain.YearMonthOf(time.Now()).String()
	for _, l := range ledgers {
		for _, job := range []*jobs.RecomputeJob{
			{Type: jobs.JobTypeAggregateSummaries, LedgerID: l.ID, Month: month, BackfillMonths: 1},
			{Type: jobs.JobTypeGenerateInsights, LedgerID: l.ID, Month: month},
			{Type: jobs.JobTypeGenerateSubscriptions, LedgerID: l.ID},
		} {
			if err := publisher.Publish(ctx, job); err != nil {
				log.Error().Err(err).Str("ledger_id", l.ID).Str("job_type", string(job.Type)).Msg("enqueue failed")
			}
		}
	}
	log.Info().Int("ledgers", len(ledgers)).Str("month", month).Msg("recompute sweep enqueued")
}
