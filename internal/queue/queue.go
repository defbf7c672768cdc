// Package queue ranks monitored jobs by re-check urgency and yields bounded
// batches of due jobs. Selection is a pure read: nothing is mutated.
package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

// DefaultLimit bounds a batch when the caller passes limit <= 0, protecting
// downstream fetch capacity.
const DefaultLimit = 50

// Weights is the priority scoring policy. The exact weighting is operator
// configuration, not a fixed algorithm.
type Weights struct {
	// Staleness is the score per day since the last check.
	Staleness float64
	// Volatility is the score per change recorded inside the volatility
	// window. Jobs whose postings change often get checked tighter.
	Volatility float64
	// VolatilityWindow is how far back changes count toward volatility.
	VolatilityWindow time.Duration
	// OverrideBonus is the flat score added per manual priority bucket.
	OverrideBonus map[model.PriorityBucket]float64
}

// DefaultWeights returns the documented default policy.
func DefaultWeights() Weights {
	return Weights{
		Staleness:        1,
		Volatility:       2,
		VolatilityWindow: 7 * 24 * time.Hour,
		OverrideBonus: map[model.PriorityBucket]float64{
			model.PriorityLow:      0,
			model.PriorityMedium:   10,
			model.PriorityHigh:     25,
			model.PriorityCritical: 50,
		},
	}
}

// Store is the read surface the queue needs.
type Store interface {
	ListEnabledJobs(ctx context.Context) ([]model.Job, error)
	CountChangesSince(ctx context.Context, jobID string, since time.Time) (int, error)
}

// Queue selects and orders due jobs.
type Queue struct {
	store   Store
	weights Weights
}

// New creates a queue over the given store with the given scoring policy.
func New(store Store, weights Weights) *Queue {
	if weights.VolatilityWindow <= 0 {
		weights.VolatilityWindow = DefaultWeights().VolatilityWindow
	}
	return &Queue{store: store, weights: weights}
}

// scored pairs a job with its recomputed priority for ordering.
type scored struct {
	job   model.Job
	score float64
}

// SelectDueJobs returns at most limit due jobs ordered by priority score
// descending, then staleness descending, then job id ascending. A job is due
// iff monitoring is enabled and now - last_checked_at >= frequency_hours.
func (q *Queue) SelectDueJobs(ctx context.Context, now time.Time, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	due, err := q.dueJobs(ctx, now)
	if err != nil {
		return nil, err
	}

	ranked := make([]scored, 0, len(due))
	for _, j := range due {
		score, err := q.Score(ctx, j, now)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, scored{job: j, score: score})
	}

	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		sa := ranked[a].job.Staleness(now)
		sb := ranked[b].job.Staleness(now)
		if sa != sb {
			return sa > sb
		}
		return ranked[a].job.ID < ranked[b].job.ID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	jobs := make([]model.Job, len(ranked))
	for i, r := range ranked {
		jobs[i] = r.job
	}
	return jobs, nil
}

// Depth returns how many jobs are currently due, for dashboards and for the
// scheduler's next_run_needed decision.
func (q *Queue) Depth(ctx context.Context, now time.Time) (int, error) {
	due, err := q.dueJobs(ctx, now)
	if err != nil {
		return 0, err
	}
	return len(due), nil
}

func (q *Queue) dueJobs(ctx context.Context, now time.Time) ([]model.Job, error) {
	jobs, err := q.store.ListEnabledJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading monitored jobs: %w", err)
	}

	var due []model.Job
	for _, j := range jobs {
		if j.FrequencyHours < 1 {
			// Defensive: invalid config, never selected.
			continue
		}
		if j.Due(now) {
			due = append(due, j)
		}
	}
	return due, nil
}

// Score recomputes the job's priority at the given instant. The score is
// derived on read and never persisted.
func (q *Queue) Score(ctx context.Context, j model.Job, now time.Time) (float64, error) {
	stalenessDays := j.Staleness(now).Hours() / 24
	score := q.weights.Staleness * stalenessDays

	if q.weights.Volatility != 0 {
		n, err := q.store.CountChangesSince(ctx, j.ID, now.Add(-q.weights.VolatilityWindow))
		if err != nil {
			return 0, fmt.Errorf("counting recent changes for %s: %w", j.ID, err)
		}
		score += q.weights.Volatility * float64(n)
	}

	score += q.weights.OverrideBonus[j.PriorityOverride]
	return score, nil
}
