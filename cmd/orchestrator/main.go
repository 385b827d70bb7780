// Command orchestrator runs the odds collection/normalization/alerting/
// publication cycle loop: flag-or-env config path, slog setup,
// SIGINT/SIGTERM -> context cancellation, background HTTP server
// shut down on ctx.Done(), and a single long-running process loop
// driving the orchestrator's fixed state machine over a set of
// Source/Store/ObjectStore implementations chosen by config.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kairosodds/pulse/internal/alerts"
	"github.com/kairosodds/pulse/internal/catalog"
	"github.com/kairosodds/pulse/internal/normalizer"
	"github.com/kairosodds/pulse/internal/objectstore"
	"github.com/kairosodds/pulse/internal/orchestrator"
	"github.com/kairosodds/pulse/internal/pkg/config"
	"github.com/kairosodds/pulse/internal/pkg/health"
	"github.com/kairosodds/pulse/internal/pkg/logging"
	"github.com/kairosodds/pulse/internal/publish"
	"github.com/kairosodds/pulse/internal/resolver"
	"github.com/kairosodds/pulse/internal/sources"
	"github.com/kairosodds/pulse/internal/sources/reference"
	"github.com/kairosodds/pulse/internal/store"
	"github.com/kairosodds/pulse/internal/store/postgres"
)

const defaultConfigPath = "configs/production.yaml"

func main() {
	var configPath string
	var once bool

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = defaultConfigPath
	}
	flag.StringVar(&configPath, "config", defaultPath, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.BoolVar(&once, "once", false, "Run a single cycle and exit (smoke/CI mode)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("orchestrator: failed to load config: %v", err)
	}
	if once {
		cfg.Cycle.RunOnce = true
	}

	logger := logging.Setup(cfg.Logging, "orchestrator")

	pgStore, err := postgres.Open(cfg.Store.PostgresDSN)
	if err != nil {
		log.Fatalf("orchestrator: failed to open postgres: %v", err)
	}
	if err := postgres.Migrate(cfg.Store.PostgresDSN); err != nil {
		log.Fatalf("orchestrator: failed to migrate schema: %v", err)
	}
	defer pgStore.Close()
	var st store.Store = pgStore

	var rdb *redis.Client
	if cfg.Store.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
	}

	objStore := objectstore.NewFilesystem(cfg.Publish.BucketPath)

	cat := catalog.New(st, logger)
	res := resolver.New(cat, st, logger, cfg.Cycle.PrimaryBookmaker)
	norm := normalizer.New(cat, res, st, logger, cfg.Cycle.PrimaryBookmaker)
	det := alerts.New(st, logger, alerts.Thresholds{
		ArbitrageThreshold: cfg.Alerts.ArbitrageThreshold,
		ValueBetThreshold:  cfg.Alerts.ValueBetThreshold,
	})
	pub := publish.New(st, objStore, rdb, logger)

	srcs := buildSources(cfg)
	orch := orchestrator.New(cat, res, norm, det, pub, st, srcs, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("orchestrator: received shutdown signal")
		cancel()
	}()

	healthSrv := health.New(cfg.Health.Addr, logger)
	healthSrv.Run(ctx)

	orch.SetupSources(ctx)
	defer orch.TeardownSources(context.Background())

	logger.Info("orchestrator: starting cycle loop", "interval", cfg.Cycle.Interval(), "run_once", cfg.Cycle.RunOnce)

	for {
		summary := orch.RunCycle(ctx)
		healthSrv.SetLastCycleSummary(summary)

		if cfg.Cycle.RunOnce {
			logger.Info("orchestrator: single cycle complete, exiting", "duration", summary.Duration)
			return
		}

		select {
		case <-ctx.Done():
			logger.Info("orchestrator: shutting down")
			return
		case <-time.After(cfg.Cycle.Interval()):
		}
	}
}

// buildSources wires the bundled reference HTTP Source adapter; a real
// deployment would register one Source per bookmaker feed here instead.
func buildSources(cfg *config.Config) []sources.Source {
	_ = cfg
	if feedURL := os.Getenv("REFERENCE_FEED_URL"); feedURL != "" {
		return []sources.Source{
			reference.New("reference", cfg.Cycle.PrimaryBookmaker, feedURL, 15*time.Second),
		}
	}
	return nil
}
