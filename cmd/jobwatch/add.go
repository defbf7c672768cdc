package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobwatch/jobwatch/internal/model"
)

var (
	addCompany   string
	addFrequency int
	addPriority  string
	addDisabled  bool
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Track a job posting",
	Long:  "Registers a posting URL for monitoring. Re-adding the same URL updates its settings.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addCompany, "company", "", "company name")
	addCmd.Flags().IntVar(&addFrequency, "frequency", 24, "minimum hours between checks (>= 1)")
	addCmd.Flags().StringVar(&addPriority, "priority", "", "priority override: low, medium, high or critical")
	addCmd.Flags().BoolVar(&addDisabled, "disabled", false, "register without enabling monitoring")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if addFrequency < 1 {
		fmt.Fprintln(os.Stderr, "--frequency must be at least 1 hour")
		os.Exit(1)
	}
	priority := model.PriorityBucket(addPriority)
	switch priority {
	case model.PriorityNone, model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityCritical:
	default:
		fmt.Fprintf(os.Stderr, "unknown priority %q\n", addPriority)
		os.Exit(1)
	}

	canonical, err := canonicalURL(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid url: %v\n", err)
		os.Exit(1)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	ctx := context.Background()
	job := model.Job{
		ID:                jobID(canonical),
		SourceURL:         args[0],
		CanonicalURL:      canonical,
		Company:           addCompany,
		MonitoringEnabled: !addDisabled,
		FrequencyHours:    addFrequency,
		PriorityOverride:  priority,
		Status:            model.StatusActive,
		CreatedAt:         time.Now().UTC(),
	}

	existing, err := st.GetJob(ctx, job.ID)
	if err != nil {
		logger.Error("looking up job", "job", job.ID, "error", err)
		os.Exit(1)
	}
	if err := st.UpsertJob(ctx, job); err != nil {
		logger.Error("saving job", "job", job.ID, "error", err)
		os.Exit(1)
	}

	if existing != nil {
		fmt.Printf("Updated %s (%s)\n", job.ID, canonical)
	} else {
		fmt.Printf("Tracking %s (%s)\n", job.ID, canonical)
	}
	return nil
}

// canonicalURL normalizes a posting URL so that trivially different forms of
// the same link map to one job: host and scheme lowercased, fragment and
// tracking parameters dropped, remaining query sorted, trailing slash trimmed.
func canonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") || key == "ref" || key == "source" {
			q.Del(key)
		}
	}
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var enc strings.Builder
	for _, key := range keys {
		for _, v := range q[key] {
			if enc.Len() > 0 {
				enc.WriteByte('&')
			}
			enc.WriteString(url.QueryEscape(key))
			enc.WriteByte('=')
			enc.WriteString(url.QueryEscape(v))
		}
	}
	u.RawQuery = enc.String()

	return u.String(), nil
}

// jobID derives a stable short id from the canonical URL so re-adding a
// posting never creates a duplicate row.
func jobID(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return "job-" + hex.EncodeToString(sum[:])[:12]
}
