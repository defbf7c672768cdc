package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jobwatch/jobwatch/internal/model"
)

// SQLiteStore persists jobs, snapshots, changes, monitoring runs and the
// notification delivery log in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Timestamps are stored as RFC3339Nano UTC strings so reads round-trip
// exactly and comparisons stay lexicographic.
const timeLayout = time.RFC3339Nano

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id                 TEXT PRIMARY KEY,
		source_url         TEXT NOT NULL,
		canonical_url      TEXT NOT NULL DEFAULT '',
		company            TEXT NOT NULL DEFAULT '',
		monitoring_enabled INTEGER NOT NULL DEFAULT 1,
		frequency_hours    INTEGER NOT NULL DEFAULT 24,
		priority_override  TEXT NOT NULL DEFAULT '',
		last_checked_at    TEXT NOT NULL DEFAULT '',
		last_changed_at    TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'active',
		created_at         TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id              TEXT PRIMARY KEY,
		job_id          TEXT NOT NULL,
		taken_at        TEXT NOT NULL,
		content_hash    TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		company         TEXT NOT NULL DEFAULT '',
		location        TEXT NOT NULL DEFAULT '',
		salary_min      INTEGER NOT NULL DEFAULT 0,
		salary_max      INTEGER NOT NULL DEFAULT 0,
		currency        TEXT NOT NULL DEFAULT '',
		employment_type TEXT NOT NULL DEFAULT '',
		posting_status  TEXT NOT NULL DEFAULT '',
		description     TEXT NOT NULL DEFAULT '',
		content_type    TEXT NOT NULL DEFAULT '',
		raw_ref         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_job_taken ON snapshots (job_id, taken_at)`,
	`CREATE TABLE IF NOT EXISTS changes (
		id               TEXT PRIMARY KEY,
		job_id           TEXT NOT NULL,
		snapshot_id      TEXT NOT NULL,
		prev_snapshot_id TEXT NOT NULL DEFAULT '',
		field            TEXT NOT NULL,
		old_value        TEXT NOT NULL DEFAULT '',
		new_value        TEXT NOT NULL DEFAULT '',
		change_type      TEXT NOT NULL,
		severity         TEXT NOT NULL,
		detected_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_changes_job_detected ON changes (job_id, detected_at)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id                 TEXT PRIMARY KEY,
		started_at         TEXT NOT NULL,
		completed_at       TEXT NOT NULL DEFAULT '',
		jobs_checked       INTEGER NOT NULL DEFAULT 0,
		jobs_updated       INTEGER NOT NULL DEFAULT 0,
		errors_encountered INTEGER NOT NULL DEFAULT 0,
		total_eligible     INTEGER NOT NULL DEFAULT 0,
		next_run_needed    INTEGER NOT NULL DEFAULT 0,
		error              TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		delivery_key  TEXT NOT NULL,
		subscriber_id TEXT NOT NULL,
		delivered_at  TEXT NOT NULL,
		PRIMARY KEY (delivery_key, subscriber_id)
	)`,
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- jobs ---

// UpsertJob inserts the job or replaces its monitoring configuration.
// Check state (last checked/changed, status) and the snapshot and change
// history are untouched, so re-registering a closed job does not reopen it.
func (s *SQLiteStore) UpsertJob(ctx context.Context, j model.Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_url, canonical_url, company, monitoring_enabled,
			frequency_hours, priority_override, last_checked_at, last_changed_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_url = excluded.source_url,
			canonical_url = excluded.canonical_url,
			company = excluded.company,
			monitoring_enabled = excluded.monitoring_enabled,
			frequency_hours = excluded.frequency_hours,
			priority_override = excluded.priority_override`,
		j.ID, j.SourceURL, j.CanonicalURL, j.Company, j.MonitoringEnabled,
		j.FrequencyHours, string(j.PriorityOverride), fmtTime(j.LastCheckedAt),
		fmtTime(deref(j.LastChangedAt)), string(j.Status), fmtTime(j.CreatedAt))
	if err != nil {
		return &model.PersistenceError{Op: "upsert job", Err: err}
	}
	return nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

const jobColumns = `id, source_url, canonical_url, company, monitoring_enabled,
	frequency_hours, priority_override, last_checked_at, last_changed_at, status, created_at`

func scanJob(row interface{ Scan(...any) error }) (model.Job, error) {
	var (
		j                       model.Job
		override, status        string
		checked, changed, added string
	)
	err := row.Scan(&j.ID, &j.SourceURL, &j.CanonicalURL, &j.Company, &j.MonitoringEnabled,
		&j.FrequencyHours, &override, &checked, &changed, &status, &added)
	if err != nil {
		return model.Job{}, err
	}
	j.PriorityOverride = model.PriorityBucket(override)
	j.Status = model.JobStatus(status)
	j.LastCheckedAt = parseTime(checked)
	if t := parseTime(changed); !t.IsZero() {
		j.LastChangedAt = &t
	}
	j.CreatedAt = parseTime(added)
	return j, nil
}

// GetJob returns (nil, nil) when the job does not exist.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	return &j, nil
}

// ListEnabledJobs returns all jobs with monitoring enabled, ordered by id.
func (s *SQLiteStore) ListEnabledJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE monitoring_enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing enabled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CommitCheck records one per-job check outcome in a single transaction:
// the job row update, the new snapshot (nil when the posting is gone) and
// any detected changes. Either everything commits or nothing does.
func (s *SQLiteStore) CommitCheck(ctx context.Context, j model.Job, snap *model.Snapshot, changes []model.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.PersistenceError{Op: "begin check tx", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET last_checked_at = ?, last_changed_at = ?, status = ?
		WHERE id = ?`,
		fmtTime(j.LastCheckedAt), fmtTime(deref(j.LastChangedAt)), string(j.Status), j.ID)
	if err != nil {
		return &model.PersistenceError{Op: "update job", Err: err}
	}

	if snap != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshots (id, job_id, taken_at, content_hash, title, company,
				location, salary_min, salary_max, currency, employment_type,
				posting_status, description, content_type, raw_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.JobID, fmtTime(snap.TakenAt), snap.ContentHash,
			snap.Fields.Title, snap.Fields.Company, snap.Fields.Location,
			snap.Fields.SalaryMin, snap.Fields.SalaryMax, snap.Fields.Currency,
			snap.Fields.EmploymentType, snap.Fields.Status, snap.Fields.Description,
			snap.ContentType, snap.RawRef)
		if err != nil {
			return &model.PersistenceError{Op: "insert snapshot", Err: err}
		}
	}

	for _, c := range changes {
		// Re-processing the same snapshot pair derives the same change
		// IDs, so an idempotent insert makes replays harmless.
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO changes (id, job_id, snapshot_id, prev_snapshot_id,
				field, old_value, new_value, change_type, severity, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.JobID, c.SnapshotID, c.PrevSnapshotID, c.Field,
			c.OldValue, c.NewValue, string(c.Type), string(c.Severity), fmtTime(c.DetectedAt))
		if err != nil {
			return &model.PersistenceError{Op: "insert change", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &model.PersistenceError{Op: "commit check tx", Err: err}
	}
	return nil
}

// --- snapshots ---

const snapshotColumns = `id, job_id, taken_at, content_hash, title, company, location,
	salary_min, salary_max, currency, employment_type, posting_status, description,
	content_type, raw_ref`

func scanSnapshot(row interface{ Scan(...any) error }) (model.Snapshot, error) {
	var (
		sn    model.Snapshot
		taken string
	)
	err := row.Scan(&sn.ID, &sn.JobID, &taken, &sn.ContentHash,
		&sn.Fields.Title, &sn.Fields.Company, &sn.Fields.Location,
		&sn.Fields.SalaryMin, &sn.Fields.SalaryMax, &sn.Fields.Currency,
		&sn.Fields.EmploymentType, &sn.Fields.Status, &sn.Fields.Description,
		&sn.ContentType, &sn.RawRef)
	if err != nil {
		return model.Snapshot{}, err
	}
	sn.TakenAt = parseTime(taken)
	return sn, nil
}

// LatestSnapshot returns the most recent snapshot for the job, or (nil, nil)
// when the job has never been captured.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, jobID string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE job_id = ? ORDER BY taken_at DESC, id DESC LIMIT 1`, jobID)
	sn, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot for %s: %w", jobID, err)
	}
	return &sn, nil
}

// SnapshotsByJob returns the job's snapshots ordered oldest first.
func (s *SQLiteStore) SnapshotsByJob(ctx context.Context, jobID string) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE job_id = ? ORDER BY taken_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots for %s: %w", jobID, err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snaps = append(snaps, sn)
	}
	return snaps, rows.Err()
}

// PruneSnapshots deletes snapshots older than the given duration, keeping at
// least the latest one per job so diffing always has a baseline.
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, olderThan time.Duration) error {
	cutoff := fmtTime(time.Now().Add(-olderThan))
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE taken_at < ? AND id NOT IN (
			SELECT id FROM snapshots s2 WHERE s2.job_id = snapshots.job_id
			ORDER BY s2.taken_at DESC, s2.id DESC LIMIT 1
		)`, cutoff)
	if err != nil {
		return fmt.Errorf("pruning snapshots older than %v: %w", olderThan, err)
	}
	return nil
}

// --- changes ---

// ChangesByJob returns the job's changes ordered oldest first.
func (s *SQLiteStore) ChangesByJob(ctx context.Context, jobID string) ([]model.Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, snapshot_id, prev_snapshot_id, field, old_value, new_value,
			change_type, severity, detected_at
		FROM changes WHERE job_id = ? ORDER BY detected_at, field`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing changes for %s: %w", jobID, err)
	}
	defer rows.Close()

	var changes []model.Change
	for rows.Next() {
		var (
			c                  model.Change
			typ, sev, detected string
		)
		if err := rows.Scan(&c.ID, &c.JobID, &c.SnapshotID, &c.PrevSnapshotID,
			&c.Field, &c.OldValue, &c.NewValue, &typ, &sev, &detected); err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		c.Type = model.ChangeType(typ)
		c.Severity = model.Severity(sev)
		c.DetectedAt = parseTime(detected)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// CountChangesSince returns how many changes the job accumulated after the
// given instant.
func (s *SQLiteStore) CountChangesSince(ctx context.Context, jobID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM changes WHERE job_id = ? AND detected_at > ?`,
		jobID, fmtTime(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting changes for %s: %w", jobID, err)
	}
	return count, nil
}

// --- runs ---

// InsertRun records a freshly started run.
func (s *SQLiteStore) InsertRun(ctx context.Context, run model.MonitoringRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		run.ID, fmtTime(run.StartedAt))
	if err != nil {
		return &model.PersistenceError{Op: "insert run", Err: err}
	}
	return nil
}

// FinalizeRun writes the completed summary. A finalized run is never updated
// again.
func (s *SQLiteStore) FinalizeRun(ctx context.Context, run model.MonitoringRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET completed_at = ?, jobs_checked = ?, jobs_updated = ?,
			errors_encountered = ?, total_eligible = ?, next_run_needed = ?, error = ?
		WHERE id = ?`,
		fmtTime(run.CompletedAt), run.JobsChecked, run.JobsUpdated,
		run.ErrorsEncountered, run.TotalJobsEligible, run.NextRunNeeded, run.Error, run.ID)
	if err != nil {
		return &model.PersistenceError{Op: "finalize run", Err: err}
	}
	return nil
}

// LatestRun returns the most recently started run, or (nil, nil) when none
// exists.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.MonitoringRun, error) {
	var (
		run                model.MonitoringRun
		started, completed string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, jobs_checked, jobs_updated,
			errors_encountered, total_eligible, next_run_needed, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`).
		Scan(&run.ID, &started, &completed, &run.JobsChecked, &run.JobsUpdated,
			&run.ErrorsEncountered, &run.TotalJobsEligible, &run.NextRunNeeded, &run.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.CompletedAt = parseTime(completed)
	return &run, nil
}

// --- delivery log ---

// Delivered reports whether the (key, subscriber) pair was already sent.
func (s *SQLiteStore) Delivered(ctx context.Context, key, subscriberID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM deliveries WHERE delivery_key = ? AND subscriber_id = ?`,
		key, subscriberID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking delivery %s/%s: %w", key, subscriberID, err)
	}
	return true, nil
}

// MarkDelivered records the pair. Re-marking an existing pair is a no-op.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, key, subscriberID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (delivery_key, subscriber_id, delivered_at) VALUES (?, ?, ?)`,
		key, subscriberID, fmtTime(time.Now()))
	if err != nil {
		return &model.PersistenceError{Op: "mark delivered", Err: err}
	}
	return nil
}
