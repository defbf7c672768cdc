package model

import (
	"context"
	"time"
)

// MonitoringRun is the record of one batch execution. It is created at run
// start, finalized at run end, and never mutated afterwards.
type MonitoringRun struct {
	ID                string
	StartedAt         time.Time
	CompletedAt       time.Time
	JobsChecked       int
	JobsUpdated       int // jobs with at least one detected change
	ErrorsEncountered int
	TotalJobsEligible int
	NextRunNeeded     bool
	Error             string // run-level failure, empty on success
}

// RunStore persists monitoring run records.
type RunStore interface {
	InsertRun(ctx context.Context, run MonitoringRun) error
	FinalizeRun(ctx context.Context, run MonitoringRun) error
	// LatestRun returns the most recently started run, or (nil, nil) when
	// no run has ever executed.
	LatestRun(ctx context.Context) (*MonitoringRun, error)
}
