package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobwatch/jobwatch/internal/notify"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification to every enabled subscriber",
	Long:  "Builds each configured subscriber's channel and sends a sample change through it.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	senders := notify.DefaultSenders(httpClient, logger)

	subs, err := cfg.ActiveSubscribers(context.Background())
	if err != nil {
		logger.Error("failed to resolve subscribers", "error", err)
		os.Exit(1)
	}
	if len(subs) == 0 {
		logger.Warn("no enabled subscribers configured")
		return nil
	}

	failed := 0
	for _, sub := range subs {
		n, err := senders(sub)
		if err != nil {
			logger.Error("building channel", "subscriber", sub.ID, "channel", sub.Channel, "error", err)
			failed++
			continue
		}
		if err := notify.SendTestMessage(n); err != nil {
			logger.Error("test notification failed", "subscriber", sub.ID, "channel", sub.Channel, "error", err)
			failed++
			continue
		}
		logger.Info("test notification sent", "subscriber", sub.ID, "channel", sub.Channel)
	}
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}
