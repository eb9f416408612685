package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencommercesearch/relevancy-engine/internal/api"
	"github.com/opencommercesearch/relevancy-engine/internal/events"
	"github.com/opencommercesearch/relevancy-engine/internal/rollup"
	"github.com/opencommercesearch/relevancy-engine/internal/scoring"
	"github.com/opencommercesearch/relevancy-engine/internal/search"
	"github.com/opencommercesearch/relevancy-engine/internal/snapshot"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
	"github.com/opencommercesearch/relevancy-engine/pkg/health"
	"github.com/opencommercesearch/relevancy-engine/pkg/kafka"
	"github.com/opencommercesearch/relevancy-engine/pkg/logger"
	"github.com/opencommercesearch/relevancy-engine/pkg/metrics"
	"github.com/opencommercesearch/relevancy-engine/pkg/middleware"
	"github.com/opencommercesearch/relevancy-engine/pkg/postgres"
	pkgredis "github.com/opencommercesearch/relevancy-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting rollup service", "port", cfg.Server.Port)

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	relevancyStore := store.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
	slog.Info("relevancy store connected", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.KeyPrefix)

	var snapshotStore api.SnapshotStore
	var builder *snapshot.Builder
	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		pgClient = nil
	} else {
		defer pgClient.Close()
		snapshotStore = snapshot.NewPGStore(pgClient)
		builder = snapshot.NewBuilder(relevancyStore, m)
		slog.Info("snapshot store connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scorer := scoring.NewQueryScorer(relevancyStore, cfg.Scoring, m)
	coordinator := rollup.NewCoordinator(relevancyStore, scorer, cfg, m)

	changeProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryChanged)
	defer changeProducer.Close()
	notifier := events.NewNotifier(changeProducer, 1024)
	notifier.Start(ctx)
	defer notifier.Close()

	searchClient := search.NewClient(cfg.Search, cfg.Scoring, m)
	refresher := search.NewRefresher(relevancyStore, searchClient, coordinator, notifier, cfg.Rollup.MaxConcurrent)

	changeConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryChanged, events.HandleQueryChanged(coordinator))
	go func() {
		if err := changeConsumer.Start(ctx); err != nil {
			slog.Error("query-changed consumer error", "error", err)
		}
	}()
	sweepConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SweepRequested, events.HandleSweepRequested(coordinator))
	go func() {
		if err := sweepConsumer.Start(ctx); err != nil {
			slog.Error("sweep-requested consumer error", "error", err)
		}
	}()
	slog.Info("change consumers started",
		"query_changed_topic", cfg.Kafka.Topics.QueryChanged,
		"sweep_requested_topic", cfg.Kafka.Topics.SweepRequested,
	)

	checker := health.NewChecker()
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if pgClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pgClient.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := api.New(relevancyStore, coordinator, refresher, builder, snapshotStore)

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("rollup service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("rollup service stopped")
}
