package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest monitoring run and queue depth",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	ctx := context.Background()

	run, err := st.LatestRun(ctx)
	if err != nil {
		logger.Error("reading latest run", "error", err)
		os.Exit(1)
	}
	if run == nil {
		fmt.Println("No monitoring run has executed yet.")
	} else {
		fmt.Printf("Latest run:      %s\n", run.ID)
		fmt.Printf("  started:       %s\n", run.StartedAt.Local().Format(time.RFC1123))
		if run.CompletedAt.IsZero() {
			fmt.Printf("  completed:     (in progress)\n")
		} else {
			fmt.Printf("  completed:     %s (%s)\n",
				run.CompletedAt.Local().Format(time.RFC1123),
				run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}
		fmt.Printf("  eligible:      %d\n", run.TotalJobsEligible)
		fmt.Printf("  checked:       %d\n", run.JobsChecked)
		fmt.Printf("  updated:       %d\n", run.JobsUpdated)
		fmt.Printf("  errors:        %d\n", run.ErrorsEncountered)
		fmt.Printf("  next run due:  %v\n", run.NextRunNeeded)
		if run.Error != "" {
			fmt.Printf("  run error:     %s\n", run.Error)
		}
	}

	q := buildQueue(cfg, st)
	depth, err := q.Depth(ctx, time.Now())
	if err != nil {
		logger.Error("computing queue depth", "error", err)
		os.Exit(1)
	}
	fmt.Printf("\nQueue depth:     %d job(s) currently due\n", depth)
	return nil
}
