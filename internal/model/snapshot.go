package model

import (
	"context"
	"time"
)

// PostingFields is the observable field set captured from a posting.
// Salary bounds of zero mean "not published".
type PostingFields struct {
	Title          string
	Company        string
	Location       string
	SalaryMin      int64
	SalaryMax      int64
	Currency       string
	EmploymentType string
	Status         string // posting status as displayed by the source
	Description    string
}

// Snapshot is an immutable capture of a job's observable state at a point in
// time. Snapshots are append-only and ordered by TakenAt; they are never
// mutated after insert.
type Snapshot struct {
	ID          string
	JobID       string
	TakenAt     time.Time
	ContentHash string // deterministic hash over the normalized field set
	Fields      PostingFields
	ContentType string
	RawRef      string // opaque reference to the raw artifact, may be empty
}

// FetchResult is what the external fetcher returns for a posting URL.
type FetchResult struct {
	Fields      PostingFields
	ContentType string
	RawRef      string
}

// Fetcher retrieves the current observable state of a posting.
// A gone posting is reported as ErrNotFound; transient failures as any other
// error (typically *HTTPError for HTTP-level ones).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// SnapshotStore is the durable snapshot history.
type SnapshotStore interface {
	// LatestSnapshot returns the most recent snapshot for the job, or
	// (nil, nil) when the job has never been captured.
	LatestSnapshot(ctx context.Context, jobID string) (*Snapshot, error)
	SnapshotsByJob(ctx context.Context, jobID string) ([]Snapshot, error)
}
