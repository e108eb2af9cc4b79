package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/regdelta/regdelta/internal/db"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one execution of the pipeline against a document pair.
type Run struct {
	ID           string     `json:"id"`
	Scenario     string     `json:"scenario"`
	BaselinePath string     `json:"baseline_path"`
	NewPath      string     `json:"new_path"`
	State        Stage      `json:"state"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Failure      string     `json:"failure,omitempty"`
}

// Artifact is the immutable output of one stage of a run.
type Artifact struct {
	RunID        string          `json:"run_id"`
	Stage        Stage           `json:"stage"`
	InputDigest  string          `json:"input_digest"`
	OutputDigest string          `json:"output_digest"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store persists runs and their stage artifacts.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// CreateRun inserts a new run in the ingest state.
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, baseline_path, new_path, state)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Scenario, r.BaselinePath, r.NewPath, string(r.State),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	return nil
}

// SetState advances a run to the given stage.
func (s *Store) SetState(ctx context.Context, runID string, state Stage) error {
	res, err := s.db.ExecContext(ctx, "UPDATE runs SET state = ? WHERE id = ?", string(state), runID)
	if err != nil {
		return fmt.Errorf("updating run %s state: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// FinishRun marks a run done.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET state = ?, finished_at = datetime('now') WHERE id = ?",
		string(StageDone), runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return nil
}

// FailRun marks a run failed with the failure message.
func (s *Store) FailRun(ctx context.Context, runID, failure string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET state = 'failed', finished_at = datetime('now'), failure = ? WHERE id = ?",
		failure, runID)
	if err != nil {
		return fmt.Errorf("failing run %s: %w", runID, err)
	}
	return nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, baseline_path, new_path, state, started_at, finished_at, failure
		FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return r, err
}

// ListRuns returns runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, scenario, baseline_path, new_path, state, started_at, finished_at, failure
		FROM runs ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// SaveArtifact stores a stage artifact. The (run, stage) pair is the key;
// a second write for the same stage is a bug and fails on the primary key.
func (s *Store) SaveArtifact(ctx context.Context, a Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (run_id, stage, input_digest, output_digest, payload)
		VALUES (?, ?, ?, ?, ?)`,
		a.RunID, string(a.Stage), a.InputDigest, a.OutputDigest, string(a.Payload),
	)
	if err != nil {
		return fmt.Errorf("inserting artifact %s/%s: %w", a.RunID, a.Stage, err)
	}
	return nil
}

// GetArtifact loads the artifact for one stage of a run.
func (s *Store) GetArtifact(ctx context.Context, runID string, stage Stage) (*Artifact, error) {
	var (
		a       Artifact
		st      string
		payload string
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, stage, input_digest, output_digest, payload, created_at
		FROM artifacts WHERE run_id = ? AND stage = ?`, runID, string(stage)).
		Scan(&a.RunID, &st, &a.InputDigest, &a.OutputDigest, &payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s/%s: %w", runID, stage, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading artifact %s/%s: %w", runID, stage, err)
	}
	a.Stage = Stage(st)
	a.Payload = json.RawMessage(payload)
	if t, parseErr := time.Parse(time.DateTime, created); parseErr == nil {
		a.CreatedAt = t
	}
	return &a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                 Run
		state             string
		started           string
		finished, failure sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.Scenario, &r.BaselinePath, &r.NewPath, &state, &started, &finished, &failure); err != nil {
		return nil, err
	}
	r.State = Stage(state)
	if t, err := time.Parse(time.DateTime, started); err == nil {
		r.StartedAt = t
	}
	if finished.Valid {
		if t, err := time.Parse(time.DateTime, finished.String); err == nil {
			r.FinishedAt = &t
		}
	}
	if failure.Valid {
		r.Failure = failure.String
	}
	return &r, nil
}
