package snapshot

import (
	"testing"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   model.PostingFields
		want model.PostingFields
	}{
		{
			name: "collapses whitespace in short fields",
			in: model.PostingFields{
				Title:    "  Senior   Go\tEngineer ",
				Company:  " Acme  Corp ",
				Location: "New   York,  NY",
			},
			want: model.PostingFields{
				Title:    "Senior Go Engineer",
				Company:  "Acme Corp",
				Location: "New York, NY",
			},
		},
		{
			name: "canonicalizes enum-like fields",
			in: model.PostingFields{
				Currency:       " usd ",
				EmploymentType: "Full-Time",
				Status:         " Active",
			},
			want: model.PostingFields{
				Currency:       "USD",
				EmploymentType: "full-time",
				Status:         "active",
			},
		},
		{
			name: "description keeps internal layout",
			in: model.PostingFields{
				Description: "  line one\n\nline two  ",
			},
			want: model.PostingFields{
				Description: "line one\n\nline two",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHashDeterministic(t *testing.T) {
	f := model.PostingFields{
		Title:     "Backend Engineer",
		Company:   "Acme",
		Location:  "Remote",
		SalaryMin: 100000,
		SalaryMax: 140000,
		Currency:  "USD",
		Status:    "active",
	}
	if Hash(f) != Hash(f) {
		t.Fatal("Hash() is not deterministic for identical fields")
	}
}

func TestHashChangesWithAnyField(t *testing.T) {
	base := model.PostingFields{Title: "Backend Engineer", Status: "active"}
	variants := []model.PostingFields{
		{Title: "Staff Engineer", Status: "active"},
		{Title: "Backend Engineer", Status: "closed"},
		{Title: "Backend Engineer", Status: "active", SalaryMax: 1},
		{Title: "Backend Engineer", Status: "active", Description: "x"},
	}
	baseHash := Hash(base)
	for i, v := range variants {
		if Hash(v) == baseHash {
			t.Errorf("variant %d produced the same hash as base", i)
		}
	}
}

func TestHashFieldBoundaries(t *testing.T) {
	// "ab" + "c" must not collide with "a" + "bc".
	a := model.PostingFields{Title: "ab", Company: "c"}
	b := model.PostingFields{Title: "a", Company: "bc"}
	if Hash(a) == Hash(b) {
		t.Fatal("hash does not separate adjacent fields")
	}
}

func TestNewNormalizesBeforeHashing(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	messy := model.FetchResult{Fields: model.PostingFields{Title: "  Go   Engineer ", Status: "Active"}}
	clean := model.FetchResult{Fields: model.PostingFields{Title: "Go Engineer", Status: "active"}}

	s1 := New("job-1", messy, now)
	s2 := New("job-1", clean, now)

	if s1.ContentHash != s2.ContentHash {
		t.Errorf("equivalent fields hashed differently: %s vs %s", s1.ContentHash, s2.ContentHash)
	}
	if s1.Fields.Title != "Go Engineer" {
		t.Errorf("Fields.Title = %q, want normalized form", s1.Fields.Title)
	}
	if !s1.TakenAt.Equal(now) {
		t.Errorf("TakenAt = %v, want %v", s1.TakenAt, now)
	}
	if s1.ID == "" || s1.ID == s2.ID {
		t.Error("each snapshot must get its own id")
	}
}
