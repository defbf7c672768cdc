package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jobwatch/jobwatch/internal/model"
)

func TestRecordRun(t *testing.T) {
	c := NewCollector()

	started := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	c.RecordRun(model.MonitoringRun{
		ID:                "run-1",
		StartedAt:         started,
		CompletedAt:       started.Add(90 * time.Second),
		JobsChecked:       10,
		JobsUpdated:       3,
		ErrorsEncountered: 2,
	})
	c.RecordRun(model.MonitoringRun{
		ID:        "run-2",
		StartedAt: started.Add(time.Hour),
		Error:     "queue read failed",
	})

	if got := testutil.ToFloat64(c.runsTotal); got != 2 {
		t.Errorf("runs_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.runsFailed); got != 1 {
		t.Errorf("runs_failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.jobsChecked); got != 10 {
		t.Errorf("jobs_checked = %v, want 10", got)
	}
	if got := testutil.ToFloat64(c.jobsUpdated); got != 3 {
		t.Errorf("jobs_updated = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.errorsCounted); got != 2 {
		t.Errorf("job_errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.lastRunDuration); got != 90 {
		t.Errorf("last_run_duration_seconds = %v, want 90", got)
	}
}

func TestSetQueueDepth(t *testing.T) {
	c := NewCollector()
	c.SetQueueDepth(7)
	if got := testutil.ToFloat64(c.queueDepth); got != 7 {
		t.Errorf("queue_depth = %v, want 7", got)
	}
}
