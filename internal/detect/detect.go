// Package detect compares two snapshots of the same job and produces a
// classified, severity-ranked list of field changes. It is a pure function
// over snapshot values: no storage access, no clock, no mutation of inputs.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/jobwatch/jobwatch/internal/model"
)

// DefaultSimilarityThreshold is the description similarity at or above which
// an edit is treated as noise and suppressed.
const DefaultSimilarityThreshold = 0.9

// Detector diffs snapshots. The zero value uses DefaultSimilarityThreshold.
type Detector struct {
	similarityThreshold float64
}

// New returns a detector with the given description similarity threshold in
// [0, 1]. Values outside that range fall back to the default.
func New(similarityThreshold float64) *Detector {
	if similarityThreshold <= 0 || similarityThreshold > 1 {
		similarityThreshold = DefaultSimilarityThreshold
	}
	return &Detector{similarityThreshold: similarityThreshold}
}

func (d *Detector) threshold() float64 {
	if d.similarityThreshold <= 0 || d.similarityThreshold > 1 {
		return DefaultSimilarityThreshold
	}
	return d.similarityThreshold
}

// trackedField describes how one field is compared and classified.
type trackedField struct {
	name  string
	value func(model.PostingFields) string
	// semantic is the change type for a value-to-value edit. Fields without
	// one fall through to added/removed/modified.
	semantic model.ChangeType
}

// Field order is fixed: the diff output is deterministic and ordered.
var trackedFields = []trackedField{
	{"title", func(f model.PostingFields) string { return f.Title }, model.ChangeTitle},
	{"company", func(f model.PostingFields) string { return f.Company }, ""},
	{"location", func(f model.PostingFields) string { return f.Location }, model.ChangeLocation},
	{"salary_min", func(f model.PostingFields) string { return salary(f.SalaryMin) }, model.ChangeSalary},
	{"salary_max", func(f model.PostingFields) string { return salary(f.SalaryMax) }, model.ChangeSalary},
	{"currency", func(f model.PostingFields) string { return f.Currency }, ""},
	{"employment_type", func(f model.PostingFields) string { return f.EmploymentType }, ""},
	{"status", func(f model.PostingFields) string { return f.Status }, model.ChangeStatus},
	{"description", func(f model.PostingFields) string { return f.Description }, ""},
}

func salary(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

// Diff compares two consecutive snapshots of the same job. Identical
// snapshots yield an empty list. The result order follows the tracked field
// order; given the same inputs the output is always identical, including
// change IDs.
func (d *Detector) Diff(prev, cur *model.Snapshot) []model.Change {
	var changes []model.Change
	for _, tf := range trackedFields {
		oldVal := tf.value(prev.Fields)
		newVal := tf.value(cur.Fields)
		if oldVal == newVal {
			continue
		}

		if tf.name == "description" && similarity(oldVal, newVal) >= d.threshold() {
			// Near-identical description edit: noise, not a change.
			continue
		}

		changes = append(changes, model.Change{
			ID:             changeID(cur.JobID, prev.ID, cur.ID, tf.name),
			JobID:          cur.JobID,
			SnapshotID:     cur.ID,
			PrevSnapshotID: prev.ID,
			Field:          tf.name,
			OldValue:       oldVal,
			NewValue:       newVal,
			Type:           classify(tf, oldVal, newVal),
			Severity:       severity(tf.name, newVal),
			DetectedAt:     cur.TakenAt,
		})
	}
	return changes
}

// classify maps a field edit to its change type. Semantic fields keep their
// semantic type even when a value appears or disappears; generic fields
// report added/removed on empty transitions.
func classify(tf trackedField, oldVal, newVal string) model.ChangeType {
	if tf.semantic != "" {
		return tf.semantic
	}
	switch {
	case oldVal == "" && newVal != "":
		return model.ChangeAdded
	case oldVal != "" && newVal == "":
		return model.ChangeRemoved
	default:
		return model.ChangeModified
	}
}

func severity(field, newVal string) model.Severity {
	switch field {
	case "status":
		if newVal == string(model.StatusClosed) {
			return model.SeverityCritical
		}
		return model.SeverityHigh
	case "title", "salary_min", "salary_max":
		return model.SeverityHigh
	case "location", "employment_type":
		return model.SeverityMedium
	case "description":
		return model.SeverityLow
	default:
		return model.SeverityMedium
	}
}

// changeID derives a stable identifier from the snapshot pair and field, so
// re-diffing the same pair never mints a new identity. Delivery dedup relies
// on this.
func changeID(jobID, prevID, curID, field string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s\x00%s", jobID, prevID, curID, field)))
	return hex.EncodeToString(h[:16])
}

// similarity is the Jaccard similarity of the two texts' word sets, in
// [0, 1]. It is symmetric and deterministic; identical texts score 1.
func similarity(a, b string) float64 {
	aw := wordSet(a)
	bw := wordSet(b)
	if len(aw) == 0 && len(bw) == 0 {
		return 1
	}
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	inter := 0
	for w := range aw {
		if _, ok := bw[w]; ok {
			inter++
		}
	}
	union := len(aw) + len(bw) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}
