// Package monitor orchestrates one monitoring run: select a batch of due
// jobs, fetch each one, snapshot, diff, persist, and hand detected changes to
// the dispatcher.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jobwatch/jobwatch/internal/detect"
	"github.com/jobwatch/jobwatch/internal/model"
	"github.com/jobwatch/jobwatch/internal/queue"
	"github.com/jobwatch/jobwatch/internal/snapshot"
)

// Store is the persistence surface one run needs.
type Store interface {
	model.JobStore
	model.SnapshotStore
	model.RunStore
}

// Dispatcher routes detected changes to notification consumers. Dispatch
// failures are logged by the implementation and never abort a job's unit of
// work.
type Dispatcher interface {
	DispatchChanges(ctx context.Context, job model.Job, changes []model.Change) error
	DispatchBaseline(ctx context.Context, job model.Job, snap model.Snapshot) error
}

// Config holds the per-run knobs.
type Config struct {
	BatchLimit  int // max jobs per run, queue.DefaultLimit when <= 0
	Concurrency int // max in-flight job checks, 1 when <= 0
}

// Scheduler executes discrete, externally triggered monitoring runs. It holds
// no cross-run state beyond the per-job locks guarding overlapping runs.
type Scheduler struct {
	store      Store
	queue      *queue.Queue
	fetcher    model.Fetcher
	detector   *detect.Detector
	dispatcher Dispatcher // may be nil
	cfg        Config
	logger     *slog.Logger

	locks keyedLocks
	now   func() time.Time
}

// NewScheduler wires a scheduler with all its dependencies.
func NewScheduler(store Store, q *queue.Queue, fetcher model.Fetcher, detector *detect.Detector, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = queue.DefaultLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Scheduler{
		store:      store,
		queue:      q,
		fetcher:    fetcher,
		detector:   detector,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// runState accumulates counters across concurrent workers. Metrics live here
// and end up in the returned MonitoringRun, never in shared process state.
type runState struct {
	mu      sync.Mutex
	checked int
	updated int
	errors  int
}

func (st *runState) record(checked, updated, failed bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if checked {
		st.checked++
	}
	if updated {
		st.updated++
	}
	if failed {
		st.errors++
	}
}

// RunOnce executes one monitoring run and returns its finalized record.
// Per-job failures are counted, never propagated; the returned error is
// non-nil only for run-level failures (the queue or run record itself).
func (s *Scheduler) RunOnce(ctx context.Context) (*model.MonitoringRun, error) {
	started := s.now().UTC()
	run := model.MonitoringRun{ID: uuid.NewString(), StartedAt: started}
	if err := s.store.InsertRun(ctx, run); err != nil {
		return nil, err
	}

	eligible, err := s.queue.Depth(ctx, started)
	if err != nil {
		return s.failRun(ctx, run, err)
	}
	run.TotalJobsEligible = eligible

	batch, err := s.queue.SelectDueJobs(ctx, started, s.cfg.BatchLimit)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	s.logger.Info("run started",
		"run_id", run.ID,
		"eligible", eligible,
		"batch", len(batch),
		"concurrency", s.cfg.Concurrency,
	)

	var st runState
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, job := range batch {
		job := job
		g.Go(func() error {
			s.checkJob(ctx, job, &st)
			return nil
		})
	}
	_ = g.Wait()

	run.JobsChecked = st.checked
	run.JobsUpdated = st.updated
	run.ErrorsEncountered = st.errors
	run.NextRunNeeded = run.TotalJobsEligible > run.JobsChecked
	run.CompletedAt = s.now().UTC()

	if err := s.store.FinalizeRun(ctx, run); err != nil {
		return &run, err
	}

	s.logger.Info("run completed",
		"run_id", run.ID,
		"checked", run.JobsChecked,
		"updated", run.JobsUpdated,
		"errors", run.ErrorsEncountered,
		"next_run_needed", run.NextRunNeeded,
	)
	return &run, nil
}

// failRun finalizes a run that could not proceed at all.
func (s *Scheduler) failRun(ctx context.Context, run model.MonitoringRun, cause error) (*model.MonitoringRun, error) {
	run.Error = cause.Error()
	run.CompletedAt = s.now().UTC()
	if err := s.store.FinalizeRun(ctx, run); err != nil {
		s.logger.Error("finalizing failed run", "run_id", run.ID, "error", err)
	}
	return &run, cause
}

// checkJob is the fault-isolated unit of work for one job. Its writes commit
// together or not at all; on any failure the job's last_checked_at stays
// untouched so the job remains due and is retried on the next run.
func (s *Scheduler) checkJob(ctx context.Context, job model.Job, st *runState) {
	unlock := s.locks.lock(job.ID)
	defer unlock()

	if ctx.Err() != nil {
		// Run cut short: unprocessed jobs stay due, nothing to undo.
		return
	}

	// Defensive: the queue never selects these, but a stale batch could.
	if !job.MonitoringEnabled || job.FrequencyHours < 1 {
		s.logger.Warn("skipping misconfigured job",
			"job_id", job.ID,
			"enabled", job.MonitoringEnabled,
			"frequency_hours", job.FrequencyHours,
		)
		return
	}

	res, err := s.fetcher.Fetch(ctx, job.SourceURL)
	switch {
	case errors.Is(err, model.ErrNotFound):
		s.closeJob(ctx, job, st)
	case err != nil:
		// Transient: retried passively via re-selection next run.
		s.logger.Warn("fetch failed", "job_id", job.ID, "url", job.SourceURL, "error", err)
		st.record(false, false, true)
	default:
		s.captureJob(ctx, job, res, st)
	}
}

// closeJob marks a gone posting closed and records the status change.
func (s *Scheduler) closeJob(ctx context.Context, job model.Job, st *runState) {
	now := s.now().UTC()

	if job.Status == model.StatusClosed {
		// Already closed: just note the check, no duplicate change.
		job.LastCheckedAt = now
		if err := s.store.CommitCheck(ctx, job, nil, nil); err != nil {
			s.logger.Error("recording check of closed job", "job_id", job.ID, "error", err)
			st.record(false, false, true)
			return
		}
		st.record(true, false, false)
		return
	}

	prev, err := s.store.LatestSnapshot(ctx, job.ID)
	if err != nil {
		s.logger.Error("loading latest snapshot", "job_id", job.ID, "error", err)
		st.record(false, false, true)
		return
	}

	change := model.Change{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		Field:      "status",
		OldValue:   string(job.Status),
		NewValue:   string(model.StatusClosed),
		Type:       model.ChangeStatus,
		Severity:   model.SeverityCritical,
		DetectedAt: now,
	}
	if prev != nil {
		change.SnapshotID = prev.ID
		if prev.Fields.Status != "" {
			change.OldValue = prev.Fields.Status
		}
	}

	job.Status = model.StatusClosed
	job.LastCheckedAt = now
	job.LastChangedAt = &now

	if err := s.store.CommitCheck(ctx, job, nil, []model.Change{change}); err != nil {
		s.logger.Error("committing closed job", "job_id", job.ID, "error", err)
		st.record(false, false, true)
		return
	}
	st.record(true, true, false)
	s.logger.Info("posting gone, job closed", "job_id", job.ID, "url", job.SourceURL)

	s.dispatch(ctx, job, []model.Change{change})
}

// captureJob snapshots a successful fetch and diffs it against the previous
// capture.
func (s *Scheduler) captureJob(ctx context.Context, job model.Job, res *model.FetchResult, st *runState) {
	now := s.now().UTC()
	snap := snapshot.New(job.ID, *res, now)

	prev, err := s.store.LatestSnapshot(ctx, job.ID)
	if err != nil {
		s.logger.Error("loading latest snapshot", "job_id", job.ID, "error", err)
		st.record(false, false, true)
		return
	}

	job.LastCheckedAt = now
	if job.Status == model.StatusError {
		job.Status = model.StatusActive
	}

	var changes []model.Change
	if prev != nil && prev.ContentHash != snap.ContentHash {
		changes = s.detector.Diff(prev, &snap)
		if len(changes) > 0 {
			job.LastChangedAt = &now
		}
	}

	if err := s.store.CommitCheck(ctx, job, &snap, changes); err != nil {
		s.logger.Error("committing check", "job_id", job.ID, "error", err)
		st.record(false, false, true)
		return
	}
	st.record(true, len(changes) > 0, false)

	s.logger.Debug("job checked",
		"job_id", job.ID,
		"content_hash", snap.ContentHash,
		"changes", len(changes),
	)

	if prev == nil {
		s.dispatchBaseline(ctx, job, snap)
		return
	}
	if len(changes) > 0 {
		s.dispatch(ctx, job, changes)
	}
}

// dispatch hands changes to the dispatcher. Notification failures are logged
// only: the change records are already committed and must never be lost or
// re-detected because delivery failed.
func (s *Scheduler) dispatch(ctx context.Context, job model.Job, changes []model.Change) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.DispatchChanges(ctx, job, changes); err != nil {
		s.logger.Error("dispatching changes", "job_id", job.ID, "error", err)
	}
}

func (s *Scheduler) dispatchBaseline(ctx context.Context, job model.Job, snap model.Snapshot) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.DispatchBaseline(ctx, job, snap); err != nil {
		s.logger.Error("dispatching baseline", "job_id", job.ID, "error", err)
	}
}

// keyedLocks serializes work per job id: no two concurrent checks of the
// same job, full independence across different jobs.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *keyedLocks) lock(id string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	lk, ok := l.m[id]
	if !ok {
		lk = &sync.Mutex{}
		l.m[id] = lk
	}
	l.mu.Unlock()

	lk.Lock()
	return lk.Unlock
}
