package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/progressreports/internal/api"
	"example.com/progressreports/internal/auth"
	"example.com/progressreports/internal/config"
	"example.com/progressreports/internal/domain"
	"example.com/progressreports/internal/foodlookup"
	"example.com/progressreports/internal/logging"
	"example.com/progressreports/internal/outbox"
	"example.com/progressreports/internal/persistence/postgres"
	"example.com/progressreports/internal/tokencache"
	httptransport "example.com/progressreports/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New("progress-report-api", cfg.LogLevel, cfg.LogFormat)
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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	service := domain.NewService(
		postgres.NewReportRepository(pool),
		postgres.NewSettingsRepository(pool),
		outbox.NewQueue(pool, cfg.ReportJobsTopic),
		domain.WithLocation(cfg.Timezone),
		domain.WithManualJobExpiry(cfg.Jobs.ManualExpiry),
	)

	opts := []api.Option{api.WithLogger(logger)}
	foods := foodlookup.New(foodlookup.Config{
		BaseURL:      cfg.FoodLookup.BaseURL,
		TokenURL:     cfg.FoodLookup.TokenURL,
		ClientID:     cfg.FoodLookup.ClientID,
		ClientSecret: cfg.FoodLookup.ClientSecret,
		Scope:        cfg.FoodLookup.Scope,
	}, tokencache.NewRedisCache(rdb, "progress-reports:"), foodlookup.WithLogger(logger))
	if foods.Configured() {
		opts = append(opts, api.WithFoodSearch(foods))
	} else {
		logger.Info("food lookup disabled: credentials not configured")
	}

	mux := http.NewServeMux()
	api.NewHandler(service, opts...).RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths("/healthz"), logger)
	handler := httptransport.RequestLogger(logger)(httptransport.CORS(cfg.CORSOrigin)(authMiddleware.Wrap(mux)))

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, handler)
	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Serve(gctx, server, serverCfg.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		return httptransport.Serve(gctx, metricsSrv, serverCfg.ShutdownTimeout, logger.Named("metrics"))
	})

	logger.Info("progress-report-api started", zap.String("addr", cfg.HTTPAddress))
	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
	}
}
