package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobwatch.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testJob(id string) model.Job {
	return model.Job{
		ID:                id,
		SourceURL:         "https://example.com/jobs/" + id,
		CanonicalURL:      "https://example.com/jobs/" + id,
		Company:           "Acme",
		MonitoringEnabled: true,
		FrequencyHours:    24,
		Status:            model.StatusActive,
		CreatedAt:         time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	}
}

func testSnapshot(id, jobID string, takenAt time.Time) model.Snapshot {
	return model.Snapshot{
		ID:          id,
		JobID:       jobID,
		TakenAt:     takenAt,
		ContentHash: "hash-" + id,
		Fields: model.PostingFields{
			Title:     "Go Engineer",
			Company:   "Acme",
			Location:  "Remote",
			SalaryMin: 100000,
			SalaryMax: 140000,
			Currency:  "USD",
			Status:    "active",
		},
		ContentType: "application/json",
	}
}

func TestJobRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	changed := time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC)
	in := testJob("job-1")
	in.PriorityOverride = model.PriorityHigh
	in.LastCheckedAt = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
	in.LastChangedAt = &changed

	if err := st.UpsertJob(ctx, in); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	got, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetJob() = nil for existing job")
	}
	if got.Company != in.Company || got.PriorityOverride != in.PriorityOverride ||
		got.FrequencyHours != in.FrequencyHours || got.Status != in.Status {
		t.Errorf("GetJob() = %+v, want %+v", got, in)
	}
	if !got.LastCheckedAt.Equal(in.LastCheckedAt) {
		t.Errorf("LastCheckedAt = %v, want %v", got.LastCheckedAt, in.LastCheckedAt)
	}
	if got.LastChangedAt == nil || !got.LastChangedAt.Equal(changed) {
		t.Errorf("LastChangedAt = %v, want %v", got.LastChangedAt, changed)
	}
}

func TestGetJobMissing(t *testing.T) {
	st := newTestStore(t)
	got, err := st.GetJob(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got != nil {
		t.Errorf("GetJob() = %+v, want nil", got)
	}
}

func TestUpsertJobPreservesCheckState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := testJob("job-1")
	if err := st.UpsertJob(ctx, j); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	// Simulate a completed check.
	j.LastCheckedAt = time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	if err := st.CommitCheck(ctx, j, nil, nil); err != nil {
		t.Fatalf("CommitCheck() error: %v", err)
	}

	// Re-registering the job must not reset the check clock.
	update := testJob("job-1")
	update.FrequencyHours = 6
	if err := st.UpsertJob(ctx, update); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	got, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got.FrequencyHours != 6 {
		t.Errorf("FrequencyHours = %d, want 6", got.FrequencyHours)
	}
	if !got.LastCheckedAt.Equal(j.LastCheckedAt) {
		t.Errorf("LastCheckedAt reset to %v by upsert", got.LastCheckedAt)
	}
}

func TestUpsertJobDoesNotReopenClosedJob(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := testJob("job-1")
	if err := st.UpsertJob(ctx, j); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	// The posting went away and monitoring closed the job.
	j.Status = model.StatusClosed
	j.LastCheckedAt = time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	if err := st.CommitCheck(ctx, j, nil, nil); err != nil {
		t.Fatalf("CommitCheck() error: %v", err)
	}

	// Re-adding the same URL carries the registration default status.
	update := testJob("job-1")
	update.Company = "Acme Robotics"
	if err := st.UpsertJob(ctx, update); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	got, err := st.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got.Status != model.StatusClosed {
		t.Errorf("Status = %s after re-registration, want closed", got.Status)
	}
	if got.Company != "Acme Robotics" {
		t.Errorf("Company = %q, want configuration replaced", got.Company)
	}
}

func TestListEnabledJobs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := testJob("a")
	b := testJob("b")
	b.MonitoringEnabled = false
	c := testJob("c")
	for _, j := range []model.Job{c, a, b} {
		if err := st.UpsertJob(ctx, j); err != nil {
			t.Fatalf("UpsertJob(%s) error: %v", j.ID, err)
		}
	}

	got, err := st.ListEnabledJobs(ctx)
	if err != nil {
		t.Fatalf("ListEnabledJobs() error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("ListEnabledJobs() = %v, want [a c]", got)
	}
}

func TestCommitCheckWritesSnapshotAndChanges(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := testJob("job-1")
	if err := st.UpsertJob(ctx, j); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	now := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	snap := testSnapshot("s1", "job-1", now)
	change := model.Change{
		ID:             "c1",
		JobID:          "job-1",
		SnapshotID:     "s1",
		PrevSnapshotID: "s0",
		Field:          "salary_max",
		OldValue:       "130000",
		NewValue:       "140000",
		Type:           model.ChangeSalary,
		Severity:       model.SeverityHigh,
		DetectedAt:     now,
	}
	j.LastCheckedAt = now
	j.LastChangedAt = &now

	if err := st.CommitCheck(ctx, j, &snap, []model.Change{change}); err != nil {
		t.Fatalf("CommitCheck() error: %v", err)
	}

	latest, err := st.LatestSnapshot(ctx, "job-1")
	if err != nil {
		t.Fatalf("LatestSnapshot() error: %v", err)
	}
	if latest == nil || latest.ID != "s1" {
		t.Fatalf("LatestSnapshot() = %+v, want s1", latest)
	}
	if latest.Fields != snap.Fields {
		t.Errorf("snapshot fields = %+v, want %+v", latest.Fields, snap.Fields)
	}
	if !latest.TakenAt.Equal(now) {
		t.Errorf("TakenAt = %v, want %v", latest.TakenAt, now)
	}

	changes, err := st.ChangesByJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("ChangesByJob() error: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("ChangesByJob() = %d changes, want 1", len(changes))
	}
	got := changes[0]
	if got.Type != change.Type || got.Severity != change.Severity ||
		got.OldValue != change.OldValue || got.NewValue != change.NewValue {
		t.Errorf("change = %+v, want %+v", got, change)
	}
}

func TestCommitCheckChangeReplayIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := testJob("job-1")
	if err := st.UpsertJob(ctx, j); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	now := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	change := model.Change{
		ID: "c1", JobID: "job-1", SnapshotID: "s1", Field: "title",
		Type: model.ChangeTitle, Severity: model.SeverityHigh, DetectedAt: now,
	}
	for i := 0; i < 2; i++ {
		snap := testSnapshot("s"+string(rune('1'+i)), "job-1", now.Add(time.Duration(i)*time.Hour))
		if err := st.CommitCheck(ctx, j, &snap, []model.Change{change}); err != nil {
			t.Fatalf("CommitCheck() #%d error: %v", i, err)
		}
	}

	changes, err := st.ChangesByJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("ChangesByJob() error: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("replayed change stored %d times, want 1", len(changes))
	}
}

func TestLatestSnapshotEmpty(t *testing.T) {
	st := newTestStore(t)
	got, err := st.LatestSnapshot(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("LatestSnapshot() error: %v", err)
	}
	if got != nil {
		t.Errorf("LatestSnapshot() = %+v, want nil for uncaptured job", got)
	}
}

func TestSnapshotsByJobOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := testJob("job-1")
	if err := st.UpsertJob(ctx, j); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	base := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"s2", "s1", "s3"} {
		offsets := map[string]time.Duration{"s1": 0, "s2": time.Hour, "s3": 2 * time.Hour}
		snap := testSnapshot(id, "job-1", base.Add(offsets[id]))
		if err := st.CommitCheck(ctx, j, &snap, nil); err != nil {
			t.Fatalf("CommitCheck() #%d error: %v", i, err)
		}
	}

	snaps, err := st.SnapshotsByJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("SnapshotsByJob() error: %v", err)
	}
	if len(snaps) != 3 || snaps[0].ID != "s1" || snaps[2].ID != "s3" {
		t.Errorf("snapshots out of order: %v, %v, %v", snaps[0].ID, snaps[1].ID, snaps[2].ID)
	}

	latest, err := st.LatestSnapshot(ctx, "job-1")
	if err != nil {
		t.Fatalf("LatestSnapshot() error: %v", err)
	}
	if latest.ID != "s3" {
		t.Errorf("LatestSnapshot() = %s, want s3", latest.ID)
	}
}

func TestCountChangesSince(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	j := testJob("job-1")
	if err := st.UpsertJob(ctx, j); err != nil {
		t.Fatalf("UpsertJob() error: %v", err)
	}

	base := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		c := model.Change{
			ID: "c" + string(rune('1'+i)), JobID: "job-1", SnapshotID: "s1",
			Field: "title", Type: model.ChangeTitle, Severity: model.SeverityHigh,
			DetectedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if err := st.CommitCheck(ctx, j, nil, []model.Change{c}); err != nil {
			t.Fatalf("CommitCheck() error: %v", err)
		}
	}

	n, err := st.CountChangesSince(ctx, "job-1", base.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("CountChangesSince() error: %v", err)
	}
	if n != 2 {
		t.Errorf("CountChangesSince() = %d, want 2", n)
	}
}

func TestRunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	run := model.MonitoringRun{ID: "run-1", StartedAt: started}
	if err := st.InsertRun(ctx, run); err != nil {
		t.Fatalf("InsertRun() error: %v", err)
	}

	run.CompletedAt = started.Add(90 * time.Second)
	run.JobsChecked = 10
	run.JobsUpdated = 3
	run.ErrorsEncountered = 1
	run.TotalJobsEligible = 12
	run.NextRunNeeded = true
	if err := st.FinalizeRun(ctx, run); err != nil {
		t.Fatalf("FinalizeRun() error: %v", err)
	}

	got, err := st.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() error: %v", err)
	}
	if got == nil {
		t.Fatal("LatestRun() = nil after insert")
	}
	if got.JobsChecked != 10 || got.JobsUpdated != 3 || got.ErrorsEncountered != 1 ||
		got.TotalJobsEligible != 12 || !got.NextRunNeeded {
		t.Errorf("LatestRun() = %+v, want finalized counters", got)
	}
	if !got.CompletedAt.Equal(run.CompletedAt) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, run.CompletedAt)
	}
}

func TestLatestRunPicksNewest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2"} {
		run := model.MonitoringRun{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := st.InsertRun(ctx, run); err != nil {
			t.Fatalf("InsertRun(%s) error: %v", id, err)
		}
	}

	got, err := st.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() error: %v", err)
	}
	if got.ID != "run-2" {
		t.Errorf("LatestRun() = %s, want run-2", got.ID)
	}
}

func TestDeliveryLog(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sent, err := st.Delivered(ctx, "c1", "sub-1")
	if err != nil {
		t.Fatalf("Delivered() error: %v", err)
	}
	if sent {
		t.Fatal("Delivered() = true before any mark")
	}

	if err := st.MarkDelivered(ctx, "c1", "sub-1"); err != nil {
		t.Fatalf("MarkDelivered() error: %v", err)
	}
	// Re-marking the same pair must not error.
	if err := st.MarkDelivered(ctx, "c1", "sub-1"); err != nil {
		t.Fatalf("MarkDelivered() replay error: %v", err)
	}

	sent, err = st.Delivered(ctx, "c1", "sub-1")
	if err != nil {
		t.Fatalf("Delivered() error: %v", err)
	}
	if !sent {
		t.Error("Delivered() = false after mark")
	}

	// A different subscriber for the same change is still undelivered.
	sent, err = st.Delivered(ctx, "c1", "sub-2")
	if err != nil {
		t.Fatalf("Delivered() error: %v", err)
	}
	if sent {
		t.Error("Delivered() = true for a subscriber that was never sent")
	}
}
