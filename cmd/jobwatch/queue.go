package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var queueLimit int

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the jobs currently due for a re-check",
	Long:  "Prints the due jobs in the order the next run would check them.",
	RunE:  runQueue,
}

func init() {
	queueCmd.Flags().IntVar(&queueLimit, "limit", 20, "maximum number of jobs to print")
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	ctx := context.Background()
	now := time.Now()
	q := buildQueue(cfg, st)

	depth, err := q.Depth(ctx, now)
	if err != nil {
		logger.Error("computing queue depth", "error", err)
		os.Exit(1)
	}
	jobs, err := q.SelectDueJobs(ctx, now, queueLimit)
	if err != nil {
		logger.Error("selecting due jobs", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%d job(s) due", depth)
	if depth > len(jobs) {
		fmt.Printf(" (showing first %d)", len(jobs))
	}
	fmt.Println()
	if len(jobs) == 0 {
		return nil
	}

	fmt.Printf("%-14s %-25s %-9s %-10s %s\n", "ID", "Company", "Priority", "Staleness", "URL")
	fmt.Println(strings.Repeat("─", 80))
	for _, j := range jobs {
		priority := string(j.PriorityOverride)
		if priority == "" {
			priority = "-"
		}
		fmt.Printf("%-14s %-25s %-9s %-10s %s\n",
			clipText(j.ID, 14), clipText(j.Company, 25), priority,
			j.Staleness(now).Round(time.Minute), j.SourceURL)
	}
	return nil
}

func clipText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
