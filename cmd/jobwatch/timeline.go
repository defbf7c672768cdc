package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jobwatch/jobwatch/internal/timeline"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline <job-id>",
	Short: "Browse a job's snapshot and change history (TUI)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTimeline,
}

func init() {
	rootCmd.AddCommand(timelineCmd)
}

func runTimeline(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	ctx := context.Background()
	jobID := args[0]

	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("loading job", "job", jobID, "error", err)
		os.Exit(1)
	}
	if job == nil {
		fmt.Fprintf(os.Stderr, "no job with id %q\n", jobID)
		os.Exit(1)
	}

	snaps, err := st.SnapshotsByJob(ctx, jobID)
	if err != nil {
		logger.Error("loading snapshots", "job", jobID, "error", err)
		os.Exit(1)
	}
	changes, err := st.ChangesByJob(ctx, jobID)
	if err != nil {
		logger.Error("loading changes", "job", jobID, "error", err)
		os.Exit(1)
	}

	if len(snaps) == 0 && len(changes) == 0 {
		fmt.Printf("Job %s has no history yet; run `jobwatch run` first.\n", jobID)
		return nil
	}

	if err := timeline.Run(*job, snaps, changes); err != nil {
		logger.Error("timeline TUI failed", "error", err)
		os.Exit(1)
	}
	return nil
}
