// Package snapshot normalizes captured posting fields and computes the
// deterministic content hash used for change detection.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jobwatch/jobwatch/internal/model"
)

// Normalize applies the documented normalization rules: leading/trailing
// whitespace is trimmed everywhere, internal whitespace runs collapse to a
// single space in short fields, and enum-like fields are lower-cased.
// Description keeps its internal layout; only the edges are trimmed.
func Normalize(f model.PostingFields) model.PostingFields {
	f.Title = collapse(f.Title)
	f.Company = collapse(f.Company)
	f.Location = collapse(f.Location)
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	f.EmploymentType = strings.ToLower(collapse(f.EmploymentType))
	f.Status = strings.ToLower(collapse(f.Status))
	f.Description = strings.TrimSpace(f.Description)
	return f
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Hash computes the SHA-256 content hash over the normalized field set.
// The serialization is fixed so the hash is stable across processes.
func Hash(f model.PostingFields) string {
	h := sha256.New()
	fmt.Fprintf(h, "title\x00%s\x00", f.Title)
	fmt.Fprintf(h, "company\x00%s\x00", f.Company)
	fmt.Fprintf(h, "location\x00%s\x00", f.Location)
	fmt.Fprintf(h, "salary_min\x00%d\x00", f.SalaryMin)
	fmt.Fprintf(h, "salary_max\x00%d\x00", f.SalaryMax)
	fmt.Fprintf(h, "currency\x00%s\x00", f.Currency)
	fmt.Fprintf(h, "employment_type\x00%s\x00", f.EmploymentType)
	fmt.Fprintf(h, "status\x00%s\x00", f.Status)
	fmt.Fprintf(h, "description\x00%s\x00", f.Description)
	return hex.EncodeToString(h.Sum(nil))
}

// New builds a snapshot from a fetch result, normalizing fields and hashing
// them. TakenAt is stored in UTC.
func New(jobID string, res model.FetchResult, now time.Time) model.Snapshot {
	fields := Normalize(res.Fields)
	return model.Snapshot{
		ID:          uuid.NewString(),
		JobID:       jobID,
		TakenAt:     now.UTC(),
		ContentHash: Hash(fields),
		Fields:      fields,
		ContentType: res.ContentType,
		RawRef:      res.RawRef,
	}
}
