package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerly/ledgerly/internal/aggregate"
	"github.com/ledgerly/ledgerly/internal/api"
	"github.com/ledgerly/ledgerly/internal/api/handlers"
	"github.com/ledgerly/ledgerly/internal/budget"
	"github.com/ledgerly/ledgerly/internal/config"
	"github.com/ledgerly/ledgerly/internal/fx"
	"github.com/ledgerly/ledgerly/internal/insight"
	"github.com/ledgerly/ledgerly/internal/jobs"
	"github.com/ledgerly/ledgerly/internal/jobs/inmemory"
	"github.com/ledgerly/ledgerly/internal/ledger"
	"github.com/ledgerly/ledgerly/internal/logger"
	"github.com/ledgerly/ledgerly/internal/reconcile"
	"github.com/ledgerly/ledgerly/internal/rules"
	"github.com/ledgerly/ledgerly/internal/store/postgres"
	"github.com/ledgerly/ledgerly/internal/subscription"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	migrate := flag.Bool("migrate", false, "run schema migration on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New("ledgerly-api", "release")
		boot.Fatal().Err(err).Msg("loading config failed")
	}
	log := logger.New("ledgerly-api", cfg.Server.Mode)

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database failed")
	}
	if *migrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal().Err(err).Msg("schema migration failed")
		}
		log.Info().Msg("schema migration completed")
	}

	converter := fx.New(db, fx.NewHTTPSource(cfg.FX.BaseURL, cfg.FX.FetchTimeout), fx.Options{
		CacheTTL:       cfg.FX.CacheTTL,
		PersistTimeout: cfg.FX.PersistTimeout,
	})

	aggregator := aggregate.New(db, db, db, converter)
	insights := insight.New(db, db, db, db, db, converter)
	subscriptions := subscription.New(db, db)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.QueueSize, cfg.Jobs.Workers, jobStore)
	runner := jobs.NewRunner(db, aggregator, insights, subscriptions)

	// The queue runs in-process; a multi-instance deployment would move the
	// consumer behind a broker and keep this binary as enqueue-only.
	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancelWorker()
	if err := jobQueue.Start(workerCtx, runner.Handle); err != nil {
		log.Fatal().Err(err).Msg("starting job consumer failed")
	}

	router := api.NewRouter(cfg.Server.Mode, log, db, handlers.Engines{
		FX:            converter,
		Rules:         rules.New(db, db, db),
		Reconciler:    reconcile.New(db, db, db, db),
		Aggregator:    aggregator,
		Budgets:       budget.New(db, db, db, converter),
		Insights:      insights,
		Subscriptions: subscriptions,
		Ledger:        ledger.New(db, db),
		Publisher:     jobQueue,
		JobStore:      jobStore,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("stopping job queue failed")
	}
	log.Info().Msg("server exited")
}
