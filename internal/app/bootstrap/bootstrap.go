package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	votingengine "ideajar/contexts/group-decision/voting-engine"
	votingmessaging "ideajar/contexts/group-decision/voting-engine/adapters/messaging"
	postgresadapter "ideajar/contexts/group-decision/voting-engine/adapters/postgres"
	"ideajar/internal/platform/config"
	"ideajar/internal/platform/db"
	"ideajar/internal/platform/httpserver"
	"ideajar/internal/platform/messaging"
	"ideajar/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	database *db.Database
	logger   *slog.Logger
}

type WorkerApp struct {
	database     *db.Database
	bus          *messaging.Kafka
	module       votingengine.Module
	sweepEnabled bool
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI(cfg config.Config) (*APIApp, error) {
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	database, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	module, _, err := buildModule(cfg, database, registry, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	server := httpserver.New(module, registry, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		database: database,
		logger:   logger,
	}, nil
}

func BuildWorker(cfg config.Config) (*WorkerApp, error) {
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	database, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	module, bus, err := buildModule(cfg, database, nil, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	pollInterval := cfg.WorkerPollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &WorkerApp{
		database:     database,
		bus:          bus,
		module:       module,
		sweepEnabled: cfg.EnableDeadlineSweep,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

// Migrate creates or updates the schema and exits.
func Migrate(cfg config.Config) error {
	logger := slog.Default().With("service", cfg.ServiceName, "process", "migrate")
	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()
	return database.Migrate(postgresadapter.AutoMigrate, logger)
}

func connect(cfg config.Config) (*db.Database, error) {
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, errors.New(config.EnvPrefix + "_DATABASE_DSN is required")
	}
	return db.Connect(cfg.DBDriver, cfg.DatabaseDSN)
}

func buildModule(
	cfg config.Config,
	database *db.Database,
	registry prometheus.Registerer,
	logger *slog.Logger,
) (votingengine.Module, *messaging.Kafka, error) {
	bus, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return votingengine.Module{}, nil, err
	}
	votingMetrics := metrics.NewVotingMetrics()
	if err := votingMetrics.Register(registry); err != nil {
		return votingengine.Module{}, nil, err
	}

	repo := postgresadapter.NewRepository(database.DB, logger)
	clock := postgresadapter.SystemClock{}
	ids := postgresadapter.UUIDGenerator{}
	module := votingengine.NewModule(votingengine.Dependencies{
		Repository:  repo,
		Ideas:       repo,
		Members:     repo,
		Idempotency: repo,
		Dedup:       repo,
		Selection:   repo,
		Notifier: votingmessaging.BusNotifier{
			Publisher: votingmessaging.OutboxPublisher{Outbox: repo},
			IDGen:     ids,
			Clock:     clock,
			Logger:    logger,
		},
		Publisher:            bus,
		Subscriber:           bus,
		Metrics:              votingMetrics,
		Clock:                clock,
		IDGen:                ids,
		Random:               postgresadapter.RuntimeRandom{},
		IdempotencyTTL:       cfg.IdempotencyTTL,
		DedupTTL:             cfg.DedupTTL,
		ExtendMinutes:        cfg.ExtendMinutes,
		CandidateCount:       cfg.CandidateCount,
		OutboxBatchSize:      cfg.OutboxBatchSize,
		SweepBatchSize:       cfg.SweepBatchSize,
		DisableWinnerHandoff: !cfg.EnableWinnerHandoff,
		Logger:               logger,
	})
	return module, bus, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(a.server.Start)
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (a *APIApp) Close() error {
	if a.database != nil {
		return a.database.Close()
	}
	return nil
}

// Run starts the winner hand-off consumer and then polls the outbox relay and
// the deadline sweeper until ctx is cancelled.
func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.module.WinnerHandoff.Start(ctx); err != nil {
		return err
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"deadline_sweep", w.sweepEnabled,
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return poll(ctx, w.pollInterval, func(ctx context.Context) error {
			_, err := w.module.OutboxRelay.RunOnce(ctx)
			return err
		})
	})
	if w.sweepEnabled {
		group.Go(func() error {
			return poll(ctx, w.pollInterval, func(ctx context.Context) error {
				_, err := w.module.Sweeper.RunOnce(ctx)
				return err
			})
		})
	}
	err := group.Wait()
	w.bus.Wait()
	return err
}

func (w *WorkerApp) Close() error {
	if w.database != nil {
		return w.database.Close()
	}
	return nil
}

// poll runs fn immediately and then on every tick. Cycle errors are already
// logged by the workers and are retried on the next tick.
func poll(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_ = fn(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
