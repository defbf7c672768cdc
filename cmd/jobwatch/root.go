package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jobwatch/jobwatch/internal/config"
	"github.com/jobwatch/jobwatch/internal/detect"
	"github.com/jobwatch/jobwatch/internal/fetch"
	"github.com/jobwatch/jobwatch/internal/model"
	"github.com/jobwatch/jobwatch/internal/monitor"
	"github.com/jobwatch/jobwatch/internal/notify"
	"github.com/jobwatch/jobwatch/internal/queue"
	"github.com/jobwatch/jobwatch/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobwatch",
	Short: "Job posting monitor — snapshot, diff, notify",
	Long:  "Jobwatch tracks externally hosted job postings, detects content changes, and routes them to subscribers.",
	// Default to `start` so that `jobwatch` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBWATCH_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBWATCH_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBWATCH_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// buildFetcher assembles the default HTTP fetcher with its rate-limit and
// retry decorators, per the fetcher config.
func buildFetcher(cfg *config.Config, logger *slog.Logger) model.Fetcher {
	httpClient := &http.Client{Timeout: cfg.Fetcher.Timeout}

	var fetcher model.Fetcher = fetch.NewHTTPFetcher(httpClient, cfg.Fetcher.UserAgent)
	limiter := fetch.NewHostLimiter(cfg.Fetcher.RequestsPerSecond, cfg.Fetcher.Burst)
	fetcher = fetch.NewRateLimitedFetcher(fetcher, limiter)
	if cfg.Fetcher.MaxRetries > 0 {
		fetcher = fetch.NewRetryFetcher(fetcher, cfg.Fetcher.MaxRetries, cfg.Fetcher.RetryBaseDelay, logger)
	}
	return fetcher
}

func buildQueue(cfg *config.Config, st *store.SQLiteStore) *queue.Queue {
	weights := queue.Weights{
		Staleness:        cfg.Monitoring.StalenessWeight,
		Volatility:       cfg.Monitoring.VolatilityWeight,
		VolatilityWindow: cfg.Monitoring.VolatilityWindow,
		OverrideBonus:    make(map[model.PriorityBucket]float64),
	}
	for bucket, bonus := range cfg.Monitoring.OverrideBonus {
		weights.OverrideBonus[model.PriorityBucket(bucket)] = bonus
	}
	return queue.New(st, weights)
}

// buildScheduler wires one scheduler instance. dryRun swaps in a no-op
// delivery log so dispatch never records deliveries.
func buildScheduler(cfg *config.Config, st *store.SQLiteStore, logger *slog.Logger, dryRun bool) (*monitor.Scheduler, *queue.Queue) {
	q := buildQueue(cfg, st)
	fetcher := buildFetcher(cfg, logger)
	detector := detect.New(cfg.Monitoring.SimilarityThreshold)

	httpClient := &http.Client{Timeout: cfg.Fetcher.Timeout}
	var deliveryLog model.DeliveryLog = st
	if dryRun {
		deliveryLog = store.NewNopDeliveryLog()
	}
	dispatcher := notify.NewDispatcher(cfg, deliveryLog, notify.DefaultSenders(httpClient, logger), logger)

	sched := monitor.NewScheduler(st, q, fetcher, detector, dispatcher, monitor.Config{
		BatchLimit:  cfg.Monitoring.BatchLimit,
		Concurrency: cfg.Monitoring.Concurrency,
	}, logger)
	return sched, q
}

func openStore(cfg *config.Config, logger *slog.Logger) *store.SQLiteStore {
	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	return st
}
