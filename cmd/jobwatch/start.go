package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jobwatch/jobwatch/internal/httpapi"
	"github.com/jobwatch/jobwatch/internal/metrics"
	"github.com/jobwatch/jobwatch/internal/monitor"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitoring daemon",
	Long:  "Runs monitoring on the configured interval and serves the status API; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"db", cfg.DatabasePath,
		"interval", cfg.Monitoring.Interval.String(),
		"batch_limit", cfg.Monitoring.BatchLimit,
		"concurrency", cfg.Monitoring.Concurrency,
		"subscribers", len(cfg.Subscribers),
	)

	// Only one process may execute runs against the database.
	lock, err := monitor.AcquireRunLock(cfg.DatabasePath)
	if err != nil {
		logger.Error("cannot start", "error", err)
		os.Exit(1)
	}
	defer lock.Unlock()

	st := openStore(cfg, logger)
	defer st.Close()

	sched, q := buildScheduler(cfg, st, logger, false)
	collector := metrics.NewCollector()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runOnce := func() {
		run, err := sched.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("run failed", "error", err)
		}
		if run != nil {
			collector.RecordRun(*run)
		}
		if depth, err := q.Depth(ctx, time.Now()); err == nil {
			collector.SetQueueDepth(depth)
		}
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", cfg.Monitoring.Interval)
	if _, err := c.AddFunc(spec, runOnce); err != nil {
		logger.Error("registering cron trigger", "spec", spec, "error", err)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()
	logger.Info("trigger started", "spec", spec)

	// Run immediately on startup so a fresh deployment catches up without
	// waiting for the first tick.
	go runOnce()

	var srv *http.Server
	if cfg.Server.Enabled {
		api := httpapi.NewServer(st, q, collector, logger)
		srv = &http.Server{
			Addr:         cfg.Server.ListenAddr,
			Handler:      api.Router(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			logger.Info("status API listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status API failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	logger.Info("goodbye")
	return nil
}
