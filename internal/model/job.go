package model

import (
	"context"
	"time"
)

// JobStatus is the lifecycle state of a tracked posting.
type JobStatus string

const (
	StatusActive JobStatus = "active"
	StatusClosed JobStatus = "closed"
	StatusError  JobStatus = "error"
)

// PriorityBucket is the operator-set manual override for monitoring priority.
// An empty bucket means no override.
type PriorityBucket string

const (
	PriorityNone     PriorityBucket = ""
	PriorityLow      PriorityBucket = "low"
	PriorityMedium   PriorityBucket = "medium"
	PriorityHigh     PriorityBucket = "high"
	PriorityCritical PriorityBucket = "critical"
)

// Job is an externally hosted posting tracked by the monitoring engine.
type Job struct {
	ID           string
	SourceURL    string // URL handed to the fetcher
	CanonicalURL string // deduplicated canonical form, may equal SourceURL
	Company      string

	MonitoringEnabled bool
	FrequencyHours    int // minimum hours between checks, always >= 1
	PriorityOverride  PriorityBucket

	LastCheckedAt time.Time  // zero means never checked
	LastChangedAt *time.Time // nil until the first detected change
	Status        JobStatus
	CreatedAt     time.Time
}

// Due reports whether the job is eligible for a re-check at the given instant.
// A disabled job is never due; a never-checked job always is.
func (j Job) Due(now time.Time) bool {
	if !j.MonitoringEnabled {
		return false
	}
	if j.LastCheckedAt.IsZero() {
		return true
	}
	return now.Sub(j.LastCheckedAt) >= time.Duration(j.FrequencyHours)*time.Hour
}

// Staleness returns how long ago the job was last checked. For a never-checked
// job it counts from CreatedAt.
func (j Job) Staleness(now time.Time) time.Duration {
	if j.LastCheckedAt.IsZero() {
		return now.Sub(j.CreatedAt)
	}
	return now.Sub(j.LastCheckedAt)
}

// JobStore is the durable job state shared by the queue and the scheduler.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*Job, error)
	ListEnabledJobs(ctx context.Context) ([]Job, error)
	UpsertJob(ctx context.Context, job Job) error

	// CommitCheck atomically records the outcome of one per-job check:
	// the job row update, the new snapshot (nil when the posting is gone),
	// and any detected changes. Partial writes must not be visible.
	CommitCheck(ctx context.Context, job Job, snap *Snapshot, changes []Change) error
}
