package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobwatch/jobwatch/internal/monitor"
)

var runDry bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one monitoring run and exit",
	Long:  "Selects the due batch, checks each job, records the run summary, and prints it.",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "do not record notification deliveries")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// A one-shot run must not race the daemon through a job's
	// read-check-commit window.
	lock, err := monitor.AcquireRunLock(cfg.DatabasePath)
	if err != nil {
		logger.Error("cannot run now", "error", err)
		os.Exit(1)
	}
	defer lock.Unlock()

	st := openStore(cfg, logger)
	defer st.Close()

	sched, _ := buildScheduler(cfg, st, logger, runDry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := sched.RunOnce(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("run %s\n", run.ID)
	fmt.Printf("  eligible:  %d\n", run.TotalJobsEligible)
	fmt.Printf("  checked:   %d\n", run.JobsChecked)
	fmt.Printf("  updated:   %d\n", run.JobsUpdated)
	fmt.Printf("  errors:    %d\n", run.ErrorsEncountered)
	fmt.Printf("  next run needed: %v\n", run.NextRunNeeded)
	return nil
}
