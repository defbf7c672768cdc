package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

// Ensure WebhookNotifier implements model.Notifier.
var _ model.Notifier = (*WebhookNotifier)(nil)

// WebhookNotifier POSTs change events as JSON to an arbitrary endpoint. This
// is the hook downstream consumers (re-ranking, analytics, content
// generation) attach to.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier returns a notifier that posts a single JSON event per
// Notify call.
func NewWebhookNotifier(url string, httpClient *http.Client) *WebhookNotifier {
	return &WebhookNotifier{url: url, httpClient: httpClient}
}

// webhookEvent is the wire shape. Kind discriminates the payload so
// consumers can match exhaustively.
type webhookEvent struct {
	Kind    string          `json:"kind"` // "job_tracked" or "job_changed"
	At      time.Time       `json:"at"`
	Job     webhookJob      `json:"job"`
	Changes []webhookChange `json:"changes,omitempty"`
}

type webhookJob struct {
	ID        string `json:"id"`
	Company   string `json:"company"`
	SourceURL string `json:"source_url"`
	Status    string `json:"status"`
}

type webhookChange struct {
	ID       string `json:"id"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
}

// Notify posts the event. Any non-2xx response is an error.
func (n *WebhookNotifier) Notify(ctx context.Context, job model.Job, changes []model.Change) error {
	event := webhookEvent{
		Kind: "job_changed",
		At:   time.Now().UTC(),
		Job: webhookJob{
			ID:        job.ID,
			Company:   job.Company,
			SourceURL: job.SourceURL,
			Status:    string(job.Status),
		},
	}
	if len(changes) == 0 {
		event.Kind = "job_tracked"
	}
	for _, c := range changes {
		event.Changes = append(event.Changes, webhookChange{
			ID:       c.ID,
			Field:    c.Field,
			OldValue: c.OldValue,
			NewValue: c.NewValue,
			Type:     string(c.Type),
			Severity: string(c.Severity),
		})
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
