// Package fetch provides the default HTTP implementation of the posting
// fetcher, plus the rate-limit and retry decorators wrapped around it.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jobwatch/jobwatch/internal/model"
)

// Ensure HTTPFetcher implements model.Fetcher.
var _ model.Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher retrieves a posting document over HTTP and maps it to the
// observable field set. The endpoint is expected to serve JSON; a 404/410 (or
// an explicit removed marker in the body) reports the posting as gone.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewHTTPFetcher returns a fetcher using the given client.
func NewHTTPFetcher(httpClient *http.Client, userAgent string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = "jobwatch/1.0"
	}
	return &HTTPFetcher{httpClient: httpClient, userAgent: userAgent}
}

// postingDoc is the wire shape of a posting endpoint response.
type postingDoc struct {
	Title          string `json:"title"`
	Company        string `json:"company"`
	Location       string `json:"location"`
	SalaryMin      int64  `json:"salary_min"`
	SalaryMax      int64  `json:"salary_max"`
	Currency       string `json:"currency"`
	EmploymentType string `json:"employment_type"`
	Status         string `json:"status"`
	Description    string `json:"description"`
	Removed        bool   `json:"removed"`
}

// Fetch retrieves the posting at url. Gone postings return model.ErrNotFound;
// HTTP-level failures return *model.HTTPError so retry logic can classify
// them.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*model.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, model.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", url, err)
	}

	var doc postingDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse posting from %s: %w", url, err)
	}
	if doc.Removed {
		return nil, model.ErrNotFound
	}

	return &model.FetchResult{
		Fields: model.PostingFields{
			Title:          doc.Title,
			Company:        doc.Company,
			Location:       doc.Location,
			SalaryMin:      doc.SalaryMin,
			SalaryMax:      doc.SalaryMax,
			Currency:       doc.Currency,
			EmploymentType: doc.EmploymentType,
			Status:         doc.Status,
			Description:    doc.Description,
		},
		ContentType: resp.Header.Get("Content-Type"),
		RawRef:      url,
	}, nil
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or
// unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
