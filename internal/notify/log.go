package notify

import (
	"context"
	"log/slog"

	"github.com/jobwatch/jobwatch/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes change events to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each change via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each change with job, field, old/new values and severity. An
// empty change list is logged as a newly tracked job. Returns nil (stdout
// logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, job model.Job, changes []model.Change) error {
	if len(changes) == 0 {
		n.logger.Info("job tracked",
			"job_id", job.ID,
			"company", job.Company,
			"url", job.SourceURL,
		)
		return nil
	}
	for _, c := range changes {
		n.logger.Info("job changed",
			"job_id", job.ID,
			"company", job.Company,
			"field", c.Field,
			"old", c.OldValue,
			"new", c.NewValue,
			"type", string(c.Type),
			"severity", string(c.Severity),
		)
	}
	return nil
}
