package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier sends change alerts to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts each change to Slack via
// webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends one Slack message per change (or one "tracked" message for an
// empty change list). Returns an error only if ALL messages fail; individual
// failures are logged.
func (s *SlackNotifier) Notify(ctx context.Context, job model.Job, changes []model.Change) error {
	payloads := buildPayloads(job, changes)

	failures := 0
	for i, p := range payloads {
		if i > 0 {
			time.Sleep(500 * time.Millisecond)
		}
		if err := s.sendMessage(ctx, p); err != nil {
			s.logger.Error("slack notification failed", "job_id", job.ID, "error", err)
			failures++
		}
	}

	if failures == len(payloads) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	return nil
}

func (s *SlackNotifier) sendMessage(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	resp, err := s.post(ctx, body)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		secs, _ := strconv.Atoi(retryAfter)
		if secs <= 0 {
			secs = 1
		}
		s.logger.Warn("slack rate limited, retrying", "retry_after_secs", secs)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(secs) * time.Second):
		}

		resp2, err := s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", resp2.StatusCode)
		}
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.httpClient.Do(req)
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style"`
}

var severityEmoji = map[model.Severity]string{
	model.SeverityLow:      "ℹ️",
	model.SeverityMedium:   "🟡",
	model.SeverityHigh:     "🟠",
	model.SeverityCritical: "🔴",
}

func buildPayloads(job model.Job, changes []model.Change) []slackPayload {
	if len(changes) == 0 {
		return []slackPayload{trackedPayload(job)}
	}
	payloads := make([]slackPayload, 0, len(changes))
	for _, c := range changes {
		payloads = append(payloads, changePayload(job, c))
	}
	return payloads
}

func trackedPayload(job model.Job) slackPayload {
	company := capitalize(job.Company)
	return slackPayload{Blocks: []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "👀 Now tracking: " + company},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Company:*\n" + company},
				{Type: "mrkdwn", Text: "*URL:*\n" + job.SourceURL},
			},
		},
	}}
}

func changePayload(job model.Job, c model.Change) slackPayload {
	company := capitalize(job.Company)
	emoji := severityEmoji[c.Severity]
	if emoji == "" {
		emoji = "🔔"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("%s %s: %s changed", emoji, company, c.Field)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Was:*\n" + orDash(c.OldValue)},
				{Type: "mrkdwn", Text: "*Now:*\n" + orDash(c.NewValue)},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Severity:*\n" + string(c.Severity)},
				{Type: "mrkdwn", Text: "*Detected:*\n" + c.DetectedAt.Format(time.RFC1123)},
			},
		},
		{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "View Posting"},
					URL:   job.SourceURL,
					Style: "primary",
				},
			},
		},
		{Type: "divider"},
	}
	return slackPayload{Blocks: blocks}
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	if len(s) > 300 {
		return s[:300] + "…"
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
