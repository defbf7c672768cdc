package model

import (
	"context"
	"time"
)

// ChangeType classifies a detected difference by field semantics.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
	ChangeStatus   ChangeType = "status_change"
	ChangeSalary   ChangeType = "salary_change"
	ChangeTitle    ChangeType = "title_change"
	ChangeLocation ChangeType = "location_change"
)

// Severity ranks how much a change matters to consumers.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity to a comparable level. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s meets the given minimum severity.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Change is a detected difference between two consecutive snapshots of the
// same job. PrevSnapshotID is empty only for changes synthesized without a
// fresh capture (a posting that disappeared).
type Change struct {
	ID             string
	JobID          string
	SnapshotID     string
	PrevSnapshotID string
	Field          string
	OldValue       string
	NewValue       string
	Type           ChangeType
	Severity       Severity
	DetectedAt     time.Time
}

// ChangeStore is the durable change history.
type ChangeStore interface {
	ChangesByJob(ctx context.Context, jobID string) ([]Change, error)
	// CountChangesSince returns how many changes were recorded for the job
	// after the given instant. Used for volatility-based priority scoring.
	CountChangesSince(ctx context.Context, jobID string, since time.Time) (int, error)
}
