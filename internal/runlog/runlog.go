// Package runlog records ingestion runs in the ingestion_runs table.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	// StatusPartial means the run finished but at least one batch was rolled back.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

var (
	ErrNotFound = errors.New("run not found")
	// ErrNoTable is returned when ingestion_runs has not been created.
	ErrNoTable = errors.New("ingestion_runs table does not exist")
)

// Counts are the per-stage row counts of a run.
type Counts struct {
	TotalRows   int `json:"total_rows"`
	OrgRows     int `json:"org_rows"`
	Malformed   int `json:"malformed"`
	Transformed int `json:"transformed"`
	Duplicates  int `json:"duplicates"`
	Ambiguous   int `json:"ambiguous"`
	Missing     int `json:"missing"`
	Inserted    int `json:"inserted"`
	Conflicts   int `json:"conflicts"`
	Failed      int `json:"failed"`
}

type Run struct {
	ID          uuid.UUID  `json:"id"`
	Source      string     `json:"source"`
	FileName    string     `json:"file_name"`
	FileHash    string     `json:"file_hash"`
	Policy      string     `json:"duplicate_policy"`
	DryRun      bool       `json:"dry_run"`
	Status      Status     `json:"status"`
	Stage       string     `json:"stage"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ArtifactDir string     `json:"artifact_dir"`
	Error       string     `json:"error,omitempty"`
	Counts
}

// Recorder stores run history.
type Recorder interface {
	Start(ctx context.Context, run *Run) error
	Finish(ctx context.Context, run *Run) error
	Get(ctx context.Context, id uuid.UUID) (*Run, error)
	Recent(ctx context.Context, limit int) ([]Run, error)
	LastByHash(ctx context.Context, hash string) (*Run, error)
}

// DB is the subset of *sql.DB the store uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres Recorder.
type Store struct {
	db DB
}

func NewStore(db DB) *Store { return &Store{db: db} }

const runColumns = `id, source, file_name, file_hash, duplicate_policy, dry_run, status, stage,
	started_at, finished_at, artifact_dir, error,
	total_rows, org_rows, malformed, transformed, duplicates, ambiguous, missing, inserted, conflicts, failed`

func (s *Store) Start(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = StatusRunning
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, source, file_name, file_hash, duplicate_policy, dry_run, status, stage, started_at, artifact_dir)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID.String(), run.Source, run.FileName, run.FileHash, run.Policy, run.DryRun,
		string(run.Status), run.Stage, run.StartedAt, run.ArtifactDir)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", classify(err))
	}
	return nil
}

func (s *Store) Finish(ctx context.Context, run *Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	c := run.Counts
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs SET
			status = $2, stage = $3, finished_at = $4, error = $5,
			total_rows = $6, org_rows = $7, malformed = $8, transformed = $9, duplicates = $10,
			ambiguous = $11, missing = $12, inserted = $13, conflicts = $14, failed = $15
		WHERE id = $1`,
		run.ID.String(), string(run.Status), run.Stage, *run.FinishedAt, run.Error,
		c.TotalRows, c.OrgRows, c.Malformed, c.Transformed, c.Duplicates,
		c.Ambiguous, c.Missing, c.Inserted, c.Conflicts, c.Failed)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", classify(err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs WHERE id = $1`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, classify(err))
	}
	return run, nil
}

// LastByHash returns the most recent non-dry-run run of a file with the same
// content hash, or ErrNotFound.
func (s *Store) LastByHash(ctx context.Context, hash string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs
		WHERE file_hash = $1 AND NOT dry_run ORDER BY started_at DESC LIMIT 1`, hash)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up run by hash: %w", classify(err))
	}
	return run, nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", classify(err))
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		id       string
		status   string
		finished sql.NullTime
		errText  sql.NullString
	)
	err := sc.Scan(&id, &r.Source, &r.FileName, &r.FileHash, &r.Policy, &r.DryRun, &status, &r.Stage,
		&r.StartedAt, &finished, &r.ArtifactDir, &errText,
		&r.TotalRows, &r.OrgRows, &r.Malformed, &r.Transformed, &r.Duplicates,
		&r.Ambiguous, &r.Missing, &r.Inserted, &r.Conflicts, &r.Failed)
	if err != nil {
		return nil, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	r.Status = Status(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	r.Error = errText.String
	return &r, nil
}

// classify maps "undefined_table" to ErrNoTable so callers can run without
// history instead of failing.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", ErrNoTable, pqErr.Message)
	}
	return err
}
