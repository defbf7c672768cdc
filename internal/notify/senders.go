package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

// DefaultSenders returns the standard channel factory: "log", "slack" and
// "webhook". The subscriber's Target is the webhook URL for the latter two.
func DefaultSenders(httpClient *http.Client, logger *slog.Logger) SenderFactory {
	return func(sub model.Subscriber) (model.Notifier, error) {
		switch sub.Channel {
		case "log", "":
			return NewLogNotifier(logger), nil
		case "slack":
			return NewSlackNotifier(sub.Target, httpClient, logger), nil
		case "webhook":
			return NewWebhookNotifier(sub.Target, httpClient), nil
		default:
			return nil, fmt.Errorf("unknown notification channel %q", sub.Channel)
		}
	}
}

// SendTestMessage sends a dummy change notification to verify a channel
// integration works.
func SendTestMessage(n model.Notifier) error {
	now := time.Now()
	job := model.Job{
		ID:        "test-001",
		Company:   "Jobwatch Test",
		SourceURL: "https://example.com/jobs/test-001",
		Status:    model.StatusActive,
	}
	change := model.Change{
		ID:         "test-change-001",
		JobID:      job.ID,
		Field:      "salary_max",
		OldValue:   "120000",
		NewValue:   "130000",
		Type:       model.ChangeSalary,
		Severity:   model.SeverityHigh,
		DetectedAt: now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return n.Notify(ctx, job, []model.Change{change})
}
