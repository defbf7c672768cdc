package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

func slackChanges(n int) []model.Change {
	var changes []model.Change
	for i := 0; i < n; i++ {
		changes = append(changes, model.Change{
			ID:         "c" + string(rune('1'+i)),
			JobID:      "job-1",
			Field:      "title",
			OldValue:   "Go Engineer",
			NewValue:   "Staff Go Engineer",
			Type:       model.ChangeTitle,
			Severity:   model.SeverityHigh,
			DetectedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		})
	}
	return changes
}

func TestSlackNotifyOneMessagePerChange(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var payload slackPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("unmarshal payload: %v", err)
		}
		if len(payload.Blocks) == 0 {
			t.Error("payload has no blocks")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, &http.Client{Timeout: 5 * time.Second}, discardLogger())
	if err := n.Notify(context.Background(), testJob(), slackChanges(2)); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("slack received %d messages, want 2", got)
	}
}

func TestSlackNotifyTrackedMessage(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, &http.Client{Timeout: 5 * time.Second}, discardLogger())
	if err := n.Notify(context.Background(), testJob(), nil); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if !strings.Contains(string(body), "Now tracking") {
		t.Errorf("tracked message = %s", body)
	}
}

func TestSlackNotifyAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, &http.Client{Timeout: 5 * time.Second}, discardLogger())
	if err := n.Notify(context.Background(), testJob(), slackChanges(2)); err == nil {
		t.Fatal("Notify() must fail when every message fails")
	}
}

func TestSlackNotifyPartialFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, &http.Client{Timeout: 5 * time.Second}, discardLogger())
	if err := n.Notify(context.Background(), testJob(), slackChanges(2)); err != nil {
		t.Fatalf("Notify() with one surviving message must not error, got %v", err)
	}
}

func TestSlackNotifyRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, &http.Client{Timeout: 5 * time.Second}, discardLogger())
	if err := n.Notify(context.Background(), testJob(), slackChanges(1)); err != nil {
		t.Fatalf("Notify() error after rate-limit retry: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("slack received %d requests, want 2 (original + retry)", got)
	}
}
