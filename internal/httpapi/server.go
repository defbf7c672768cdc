// Package httpapi serves the operational read surface: latest run summary,
// queue depth, per-job tracking timeline, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jobwatch/jobwatch/internal/metrics"
	"github.com/jobwatch/jobwatch/internal/model"
	"github.com/jobwatch/jobwatch/internal/queue"
)

// Store is the read-only persistence surface the API needs.
type Store interface {
	model.RunStore
	model.SnapshotStore
	model.ChangeStore
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// Server exposes monitoring state over HTTP. It never writes.
type Server struct {
	store     Store
	queue     *queue.Queue
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewServer wires the API with its dependencies.
func NewServer(store Store, q *queue.Queue, collector *metrics.Collector, logger *slog.Logger) *Server {
	return &Server{store: store, queue: q, collector: collector, logger: logger}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/queue", s.handleQueue)
	r.Get("/jobs/{id}/timeline", s.handleTimeline)
	if s.collector != nil {
		r.Method(http.MethodGet, "/metrics", s.collector.Handler())
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the latest run summary, suitable for a status endpoint.
type statusResponse struct {
	Run        *runView `json:"run"`
	QueueDepth int      `json:"queue_depth"`
}

type runView struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at,omitzero"`
	JobsChecked       int       `json:"jobs_checked"`
	JobsUpdated       int       `json:"jobs_updated"`
	ErrorsEncountered int       `json:"errors_encountered"`
	TotalJobsEligible int       `json:"total_jobs_eligible"`
	NextRunNeeded     bool      `json:"next_run_needed"`
	Error             string    `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, err := s.store.LatestRun(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	depth, err := s.queue.Depth(ctx, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := statusResponse{QueueDepth: depth}
	if run != nil {
		resp.Run = &runView{
			ID:                run.ID,
			StartedAt:         run.StartedAt,
			CompletedAt:       run.CompletedAt,
			JobsChecked:       run.JobsChecked,
			JobsUpdated:       run.JobsUpdated,
			ErrorsEncountered: run.ErrorsEncountered,
			TotalJobsEligible: run.TotalJobsEligible,
			NextRunNeeded:     run.NextRunNeeded,
			Error:             run.Error,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type queueResponse struct {
	Depth int        `json:"depth"`
	Next  []queueJob `json:"next"`
}

type queueJob struct {
	ID            string    `json:"id"`
	Company       string    `json:"company"`
	SourceURL     string    `json:"source_url"`
	LastCheckedAt time.Time `json:"last_checked_at,omitzero"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	depth, err := s.queue.Depth(ctx, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	due, err := s.queue.SelectDueJobs(ctx, now, 10)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := queueResponse{Depth: depth, Next: []queueJob{}}
	for _, j := range due {
		resp.Next = append(resp.Next, queueJob{
			ID:            j.ID,
			Company:       j.Company,
			SourceURL:     j.SourceURL,
			LastCheckedAt: j.LastCheckedAt,
		})
	}
	if s.collector != nil {
		s.collector.SetQueueDepth(depth)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// timelineResponse is the audit view: ordered snapshots plus changes.
type timelineResponse struct {
	Job       timelineJob        `json:"job"`
	Snapshots []timelineSnapshot `json:"snapshots"`
	Changes   []timelineChange   `json:"changes"`
}

type timelineJob struct {
	ID            string     `json:"id"`
	Company       string     `json:"company"`
	SourceURL     string     `json:"source_url"`
	Status        string     `json:"status"`
	LastCheckedAt time.Time  `json:"last_checked_at,omitzero"`
	LastChangedAt *time.Time `json:"last_changed_at,omitempty"`
}

type timelineSnapshot struct {
	ID          string    `json:"id"`
	TakenAt     time.Time `json:"taken_at"`
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	Location    string    `json:"location"`
	SalaryMin   int64     `json:"salary_min,omitempty"`
	SalaryMax   int64     `json:"salary_max,omitempty"`
}

type timelineChange struct {
	ID         string    `json:"id"`
	Field      string    `json:"field"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if job == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	snaps, err := s.store.SnapshotsByJob(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	changes, err := s.store.ChangesByJob(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := timelineResponse{
		Job: timelineJob{
			ID:            job.ID,
			Company:       job.Company,
			SourceURL:     job.SourceURL,
			Status:        string(job.Status),
			LastCheckedAt: job.LastCheckedAt,
			LastChangedAt: job.LastChangedAt,
		},
		Snapshots: []timelineSnapshot{},
		Changes:   []timelineChange{},
	}
	for _, sn := range snaps {
		resp.Snapshots = append(resp.Snapshots, timelineSnapshot{
			ID:          sn.ID,
			TakenAt:     sn.TakenAt,
			ContentHash: sn.ContentHash,
			Title:       sn.Fields.Title,
			Location:    sn.Fields.Location,
			SalaryMin:   sn.Fields.SalaryMin,
			SalaryMax:   sn.Fields.SalaryMax,
		})
	}
	for _, c := range changes {
		resp.Changes = append(resp.Changes, timelineChange{
			ID:         c.ID,
			Field:      c.Field,
			OldValue:   c.OldValue,
			NewValue:   c.NewValue,
			Type:       string(c.Type),
			Severity:   string(c.Severity),
			DetectedAt: c.DetectedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
