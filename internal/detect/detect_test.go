package detect

import (
	"reflect"
	"testing"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

var takenAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func snap(id string, f model.PostingFields) *model.Snapshot {
	return &model.Snapshot{
		ID:      id,
		JobID:   "job-1",
		TakenAt: takenAt,
		Fields:  f,
	}
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	f := model.PostingFields{Title: "Go Engineer", SalaryMax: 150000, Status: "active"}
	d := New(0)
	if got := d.Diff(snap("s1", f), snap("s2", f)); len(got) != 0 {
		t.Fatalf("Diff() of identical fields = %d changes, want 0", len(got))
	}
}

func TestDiffSalaryChange(t *testing.T) {
	prev := snap("s1", model.PostingFields{Title: "Go Engineer", SalaryMax: 140000, Status: "active"})
	cur := snap("s2", model.PostingFields{Title: "Go Engineer", SalaryMax: 155000, Status: "active"})

	changes := New(0).Diff(prev, cur)
	if len(changes) != 1 {
		t.Fatalf("Diff() = %d changes, want 1", len(changes))
	}
	c := changes[0]
	if c.Field != "salary_max" {
		t.Errorf("Field = %q, want salary_max", c.Field)
	}
	if c.Type != model.ChangeSalary {
		t.Errorf("Type = %q, want %q", c.Type, model.ChangeSalary)
	}
	if c.Severity != model.SeverityHigh {
		t.Errorf("Severity = %q, want %q", c.Severity, model.SeverityHigh)
	}
	if c.OldValue != "140000" || c.NewValue != "155000" {
		t.Errorf("values = %q -> %q, want 140000 -> 155000", c.OldValue, c.NewValue)
	}
	if !c.DetectedAt.Equal(takenAt) {
		t.Errorf("DetectedAt = %v, want snapshot TakenAt %v", c.DetectedAt, takenAt)
	}
}

func TestDiffStatusClosedIsCritical(t *testing.T) {
	prev := snap("s1", model.PostingFields{Status: "active"})
	cur := snap("s2", model.PostingFields{Status: "closed"})

	changes := New(0).Diff(prev, cur)
	if len(changes) != 1 {
		t.Fatalf("Diff() = %d changes, want 1", len(changes))
	}
	if changes[0].Type != model.ChangeStatus {
		t.Errorf("Type = %q, want %q", changes[0].Type, model.ChangeStatus)
	}
	if changes[0].Severity != model.SeverityCritical {
		t.Errorf("Severity = %q, want %q", changes[0].Severity, model.SeverityCritical)
	}
}

func TestDiffStatusReopenedIsHigh(t *testing.T) {
	prev := snap("s1", model.PostingFields{Status: "closed"})
	cur := snap("s2", model.PostingFields{Status: "active"})

	changes := New(0).Diff(prev, cur)
	if len(changes) != 1 || changes[0].Severity != model.SeverityHigh {
		t.Fatalf("reopening must be a single high-severity status change, got %+v", changes)
	}
}

func TestDiffAddedAndRemoved(t *testing.T) {
	tests := []struct {
		name     string
		prev     model.PostingFields
		cur      model.PostingFields
		wantType model.ChangeType
	}{
		{
			name:     "company appears",
			prev:     model.PostingFields{},
			cur:      model.PostingFields{Company: "Acme"},
			wantType: model.ChangeAdded,
		},
		{
			name:     "company disappears",
			prev:     model.PostingFields{Company: "Acme"},
			cur:      model.PostingFields{},
			wantType: model.ChangeRemoved,
		},
		{
			name:     "company renamed",
			prev:     model.PostingFields{Company: "Acme"},
			cur:      model.PostingFields{Company: "Acme Inc"},
			wantType: model.ChangeModified,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := New(0).Diff(snap("s1", tt.prev), snap("s2", tt.cur))
			if len(changes) != 1 {
				t.Fatalf("Diff() = %d changes, want 1", len(changes))
			}
			if changes[0].Type != tt.wantType {
				t.Errorf("Type = %q, want %q", changes[0].Type, tt.wantType)
			}
		})
	}
}

func TestDiffSemanticTypeOnEmptyTransition(t *testing.T) {
	// A salary that appears is still a salary_change, not a generic add.
	prev := snap("s1", model.PostingFields{})
	cur := snap("s2", model.PostingFields{SalaryMin: 90000})
	changes := New(0).Diff(prev, cur)
	if len(changes) != 1 || changes[0].Type != model.ChangeSalary {
		t.Fatalf("want one salary_change, got %+v", changes)
	}
}

func TestDiffDescriptionNoiseSuppressed(t *testing.T) {
	long := "We build distributed systems in Go and run them on Kubernetes across three regions with a strong on-call culture"
	prev := snap("s1", model.PostingFields{Description: long})
	cur := snap("s2", model.PostingFields{Description: long + " today"})

	if changes := New(0.5).Diff(prev, cur); len(changes) != 0 {
		t.Fatalf("near-identical description edit must be suppressed, got %+v", changes)
	}
}

func TestDiffDescriptionRewriteIsLow(t *testing.T) {
	prev := snap("s1", model.PostingFields{Description: "We build distributed systems in Go"})
	cur := snap("s2", model.PostingFields{Description: "Exciting frontend role working with React and design teams"})

	changes := New(0.9).Diff(prev, cur)
	if len(changes) != 1 {
		t.Fatalf("Diff() = %d changes, want 1", len(changes))
	}
	if changes[0].Field != "description" || changes[0].Severity != model.SeverityLow {
		t.Errorf("got %s/%s, want description/low", changes[0].Field, changes[0].Severity)
	}
}

func TestDiffMultipleChangesOrdered(t *testing.T) {
	prev := snap("s1", model.PostingFields{Title: "Go Engineer", Location: "NYC", SalaryMax: 140000, Status: "active"})
	cur := snap("s2", model.PostingFields{Title: "Staff Go Engineer", Location: "Remote", SalaryMax: 160000, Status: "active"})

	changes := New(0).Diff(prev, cur)
	var fields []string
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	want := []string{"title", "location", "salary_max"}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("field order = %v, want %v", fields, want)
	}
}

func TestDiffDeterministicIDs(t *testing.T) {
	prev := snap("s1", model.PostingFields{Title: "Go Engineer"})
	cur := snap("s2", model.PostingFields{Title: "Staff Engineer"})

	first := New(0).Diff(prev, cur)
	second := New(0).Diff(prev, cur)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("re-diffing the same snapshot pair must produce identical changes")
	}
	if first[0].ID == "" {
		t.Fatal("change id must be populated")
	}

	// A different snapshot pair gets a different identity.
	other := New(0).Diff(prev, snap("s3", model.PostingFields{Title: "Staff Engineer"}))
	if other[0].ID == first[0].ID {
		t.Error("different snapshot pairs must not share change ids")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "go engineer remote", "go engineer remote", 1},
		{"both empty", "", "", 1},
		{"one empty", "go engineer", "", 0},
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"half overlap", "a b c", "b c d", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := similarity(tt.a, tt.b); got != tt.want {
				t.Errorf("similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
