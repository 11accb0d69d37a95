package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/progressreports/internal/config"
	"example.com/progressreports/internal/logging"
	"example.com/progressreports/internal/outbox"
	"example.com/progressreports/internal/persistence/postgres"
	"example.com/progressreports/internal/scheduler"
	httptransport "example.com/progressreports/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	once := flag.Bool("once", false, "run the due-check and retention immediately, then exit")
	job := flag.String("job", "all", "with -once: which job to run (due, retention, all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New("progress-report-scheduler", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dailyAt, err := scheduler.ParseTimeOfDay(cfg.Scheduler.DailyAt)
	if err != nil {
		logger.Fatal("invalid SCHEDULER_DAILY_AT", zap.Error(err))
	}
	weekday, err := scheduler.ParseWeekday(cfg.Scheduler.RetentionWeekday)
	if err != nil {
		logger.Fatal("invalid SCHEDULER_RETENTION_WEEKDAY", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithLocation(cfg.Timezone),
		scheduler.WithJobExpiry(cfg.Jobs.ScheduledExpiry),
	}
	runner := scheduler.NewRunner(
		scheduler.NewDueCheck(postgres.NewSettingsRepository(pool), outbox.NewQueue(pool, cfg.ReportJobsTopic), opts...),
		scheduler.NewRetention(postgres.NewReportRepository(pool), opts...),
		scheduler.RunnerConfig{DailyAt: dailyAt, RetentionWeekday: weekday, RetentionKeep: cfg.Scheduler.RetentionKeep},
		opts...,
	)

	if *once {
		runOnce(ctx, logger, runner, *job)
		return
	}

	manager := outbox.NewDLQManager(pool, cfg.DLQ.MaxRetries, cfg.DLQ.BaseDelay, outbox.WithLogger(logger))
	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := runner.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		replayDeadLetters(gctx, logger, manager, cfg.DLQ.PollInterval)
		return nil
	})
	g.Go(func() error {
		return httptransport.Serve(gctx, metricsSrv, 10*time.Second, logger.Named("metrics"))
	})

	logger.Info("scheduler started",
		zap.String("daily_at", cfg.Scheduler.DailyAt),
		zap.Stringer("retention_weekday", weekday),
		zap.Duration("dlq_interval", cfg.DLQ.PollInterval),
	)
	if err := g.Wait(); err != nil {
		logger.Error("scheduler stopped with error", zap.Error(err))
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, runner *scheduler.Runner, job string) {
	switch job {
	case "due", "all", "retention":
	default:
		logger.Fatal("unknown job", zap.String("job", job))
	}
	if job == "due" || job == "all" {
		s := runner.RunDueCheckNow(ctx)
		logger.Info("due-check finished", zap.Int("processed", s.Processed), zap.Int("succeeded", s.Succeeded), zap.Int("failed", s.Failed), zap.Error(s.Err))
	}
	if job == "retention" || job == "all" {
		s := runner.RunRetentionNow(ctx)
		logger.Info("retention finished", zap.Int("processed", s.Processed), zap.Int("removed", s.Removed), zap.Int("failed", s.Failed), zap.Error(s.Err))
	}
}

func replayDeadLetters(ctx context.Context, logger *zap.Logger, manager *outbox.DLQManager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				logger.Warn("dlq replay error", zap.Error(err))
			} else if processed > 0 {
				logger.Info("dlq replay processed entries", zap.Int("processed", processed))
			}
		}
	}
}
