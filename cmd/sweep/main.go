// Command sweep runs a one-shot full recompute of every stored score,
// optionally re-fetching result lists from the search API first. It exits
// non-zero when any item failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencommercesearch/relevancy-engine/internal/rollup"
	"github.com/opencommercesearch/relevancy-engine/internal/scoring"
	"github.com/opencommercesearch/relevancy-engine/internal/search"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
	"github.com/opencommercesearch/relevancy-engine/pkg/logger"
	pkgredis "github.com/opencommercesearch/relevancy-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	refresh := flag.Bool("refresh", false, "re-fetch result lists from the search API before scoring")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	relevancyStore := store.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scorer := scoring.NewQueryScorer(relevancyStore, cfg.Scoring, nil)
	coordinator := rollup.NewCoordinator(relevancyStore, scorer, cfg, nil)

	var report *rollup.Report
	if *refresh {
		client := search.NewClient(cfg.Search, cfg.Scoring, nil)
		refresher := search.NewRefresher(relevancyStore, client, coordinator, nil, cfg.Rollup.MaxConcurrent)
		report, err = refresher.RefreshAll(ctx)
	} else {
		report, err = coordinator.Sweep(ctx)
	}
	if err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("swept %d queries, %d cases, %d sites in %s\n",
		report.Queries, report.Cases, report.Sites, report.Duration)
	if report.Partial() {
		fmt.Printf("%d items failed:\n", len(report.Errors))
		for _, item := range report.Errors {
			fmt.Printf("  [%s] %s: %v\n", item.Phase, item.Key, item.Err)
		}
		os.Exit(1)
	}
}
