package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/progressreports/internal/aggregator"
	"example.com/progressreports/internal/config"
	"example.com/progressreports/internal/consumer"
	"example.com/progressreports/internal/events"
	"example.com/progressreports/internal/generation"
	"example.com/progressreports/internal/logging"
	"example.com/progressreports/internal/outbox"
	"example.com/progressreports/internal/persistence/postgres"
	"example.com/progressreports/internal/report"
	httptransport "example.com/progressreports/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New("progress-report-worker", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	generator, err := generation.NewOpenAIGenerator(cfg.Generation.APIKey, cfg.Generation.Model,
		generation.WithBaseURL(cfg.Generation.BaseURL),
		generation.WithLogger(logger.Named("generation")),
	)
	if err != nil {
		logger.Fatal("failed to configure generation backend", zap.Error(err))
	}

	reports := postgres.NewReportRepository(pool)
	settings := postgres.NewSettingsRepository(pool)
	activity := postgres.NewActivityRepository(pool)

	orchestrator := report.NewOrchestrator(reports, settings,
		aggregator.New(activity, aggregator.WithLogger(logger), aggregator.WithLocation(cfg.Timezone)),
		generator,
		report.WithLogger(logger),
		report.WithGenerationTimeout(cfg.Generation.Timeout),
		report.WithLocation(cfg.Timezone),
	)

	policy := consumer.RetryPolicy{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		BaseDelay:   cfg.Jobs.RetryBaseDelay,
		MaxDelay:    consumer.DefaultRetryPolicy.MaxDelay,
	}
	router := consumer.NewRouter(logger).
		Route(events.TypeReportRequested, consumer.NewReportJobHandler(orchestrator, policy, logger)).
		Route(events.TypeProfileUpdated, consumer.NewProfileHandler(activity, logger))

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithLogger(logger))
	defer func() { _ = producer.Close() }()
	dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithLogger(logger))

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return httptransport.Serve(gctx, metricsSrv, 10*time.Second, logger.Named("metrics"))
	})

	if _, err := consumer.CheckPartitions(ctx, cfg.KafkaBrokers, cfg.ReportJobsTopic, cfg.WorkerConcurrency, logger); err != nil {
		logger.Warn("could not inspect report job partitions", zap.Error(err))
	}

	topics := make([]string, 0, cfg.WorkerConcurrency+1)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		topics = append(topics, cfg.ReportJobsTopic)
	}
	topics = append(topics, cfg.ProfileEventsTopic)

	for i, topic := range topics {
		topic := topic
		reader := newReader(cfg, topic)
		proc := consumer.NewProcessor(reader, router, consumer.WithLogger(logger.With(zap.Int("reader", i))))
		g.Go(func() error {
			defer func() { _ = reader.Close() }()
			logger.Info("consumer started", zap.String("topic", topic), zap.String("group", cfg.ConsumerGroupID))
			if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	dispatcher.Wait()
}

func newReader(cfg config.Config, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           topic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
}
