// Package review persists extracted obligations and mapping candidates
// and implements the reviewer override operation. An override is applied
// exactly once per mapping and is recorded as its own event; the automatic
// status stays on the mapping row as provenance.
package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/regdelta/regdelta/internal/db"
	"github.com/regdelta/regdelta/internal/extract"
	"github.com/regdelta/regdelta/internal/mapper"
)

// ErrAlreadyOverridden is returned when a mapping's status was already
// overridden once; a decision event is never silently replaced.
var ErrAlreadyOverridden = errors.New("mapping has already been overridden")

// ErrNotFound is returned when a mapping does not exist.
var ErrNotFound = errors.New("mapping not found")

// Store provides persistence for obligations, mappings and overrides.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// SaveObligations inserts the obligations extracted during a run.
func (s *Store) SaveObligations(ctx context.Context, runID string, obs []extract.Obligation) error {
	for _, o := range obs {
		citations, err := json.Marshal(o.Citations)
		if err != nil {
			return fmt.Errorf("marshalling citations: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO obligations (id, run_id, document_id, section_label, text, severity, modal_phrase, deadline, excerpt, citations)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, runID, o.DocumentID, o.SectionLabel, o.Text, string(o.Severity),
			o.ModalPhrase, o.Deadline, o.Excerpt, string(citations),
		)
		if err != nil {
			return fmt.Errorf("inserting obligation %s: %w", o.ID, err)
		}
	}
	return nil
}

// SaveMappings inserts the mapping candidates produced for a run.
func (s *Store) SaveMappings(ctx context.Context, runID string, all map[string][]mapper.Mapping) error {
	for _, maps := range all {
		for _, m := range maps {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO mappings (id, run_id, obligation_id, control_id, control_title, cosine_score, fuzzy_score, blended_score, status, auto_status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, runID, m.ObligationID, m.ControlID, m.ControlTitle,
				m.CosineScore, m.FuzzyScore, m.BlendedScore,
				string(m.Status), string(m.AutoStatus),
			)
			if err != nil {
				return fmt.Errorf("inserting mapping %s: %w", m.ID, err)
			}
		}
	}
	return nil
}

// Get returns a single mapping by ID.
func (s *Store) Get(ctx context.Context, id string) (*mapper.Mapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, obligation_id, control_id, control_title, cosine_score, fuzzy_score, blended_score, status, auto_status, reviewer, comment, created_at
		FROM mappings WHERE id = ?`, id)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping %s: %w", id, ErrNotFound)
	}
	return m, err
}

// Filter narrows List results.
type Filter struct {
	RunID  string
	Status mapper.Status
	Limit  int
}

// List returns mappings matching the filter, highest blended score first.
func (s *Store) List(ctx context.Context, f Filter) ([]mapper.Mapping, error) {
	query := `SELECT id, obligation_id, control_id, control_title, cosine_score, fuzzy_score, blended_score, status, auto_status, reviewer, comment, created_at FROM mappings`
	var clauses []string
	var args []any
	if f.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY blended_score DESC, control_id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer rows.Close()

	var out []mapper.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Override is the recorded reviewer decision for a mapping.
type Override struct {
	ID             string        `json:"id"`
	MappingID      string        `json:"mapping_id"`
	PreviousStatus mapper.Status `json:"previous_status"`
	NewStatus      mapper.Status `json:"new_status"`
	Reviewer       string        `json:"reviewer"`
	Comment        string        `json:"comment,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ApplyOverride changes a mapping's status exactly once. The previous
// status is captured in the override row; a second attempt returns
// ErrAlreadyOverridden regardless of the requested status.
func (s *Store) ApplyOverride(ctx context.Context, mappingID string, newStatus mapper.Status, reviewer, comment string) (*Override, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("invalid status %q", newStatus)
	}
	if reviewer == "" {
		return nil, fmt.Errorf("reviewer identity is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning override transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM mappings WHERE id = ?", mappingID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping %s: %w", mappingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading mapping %s: %w", mappingID, err)
	}

	var existing int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM overrides WHERE mapping_id = ?", mappingID).Scan(&existing); err != nil {
		return nil, fmt.Errorf("checking existing override: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("mapping %s: %w", mappingID, ErrAlreadyOverridden)
	}

	ov := &Override{
		ID:             uuid.New().String(),
		MappingID:      mappingID,
		PreviousStatus: mapper.Status(current),
		NewStatus:      newStatus,
		Reviewer:       reviewer,
		Comment:        comment,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO overrides (id, mapping_id, previous_status, new_status, reviewer, comment)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ov.ID, ov.MappingID, string(ov.PreviousStatus), string(ov.NewStatus), ov.Reviewer, ov.Comment,
	); err != nil {
		return nil, fmt.Errorf("inserting override: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE mappings SET status = ?, reviewer = ?, comment = ? WHERE id = ?`,
		string(ov.NewStatus), ov.Reviewer, ov.Comment, ov.MappingID,
	); err != nil {
		return nil, fmt.Errorf("updating mapping status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing override: %w", err)
	}
	return ov, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(sc scanner) (*mapper.Mapping, error) {
	var (
		m                 mapper.Mapping
		status, auto      string
		reviewer, comment sql.NullString
		created           string
	)
	err := sc.Scan(
		&m.ID, &m.ObligationID, &m.ControlID, &m.ControlTitle,
		&m.CosineScore, &m.FuzzyScore, &m.BlendedScore,
		&status, &auto, &reviewer, &comment, &created,
	)
	if err != nil {
		return nil, err
	}
	m.Status = mapper.Status(status)
	m.AutoStatus = mapper.Status(auto)
	if reviewer.Valid {
		m.Reviewer = reviewer.String
	}
	if comment.Valid {
		m.Comment = comment.String
	}
	if t, parseErr := time.Parse(time.DateTime, created); parseErr == nil {
		m.Timestamp = t
	}
	return &m, nil
}
