// Package decisions implements the append-only Decision Store: typed
// records for decisions, requirements, constraints, artifacts, pipeline
// runs, and token usage, built on the embedded SQL store.
package decisions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/johnplanow/substrate/internal/store"
)

// PipelineRunStatus is the lifecycle status of a PipelineRun.
type PipelineRunStatus string

const (
	RunStatusRunning   PipelineRunStatus = "running"
	RunStatusPaused    PipelineRunStatus = "paused"
	RunStatusCompleted PipelineRunStatus = "completed"
	RunStatusFailed    PipelineRunStatus = "failed"
	RunStatusStopped   PipelineRunStatus = "stopped"
)

// PipelineRun is one end-to-end execution of the phase state machine.
type PipelineRun struct {
	ID                 string
	Methodology        string
	CurrentPhase       string
	Status             PipelineRunStatus
	ConfigSnapshot     string
	TokenUsageSnapshot string
	ParentRunID        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Decision is an append-only typed record of a choice made during a
// pipeline run. "Updating" a decision means writing a new row and
// setting the old row's SupersededBy field.
type Decision struct {
	ID            string
	PipelineRunID string
	Phase         string
	Category      string
	Key           string
	Value         string
	Rationale     string
	SupersededBy  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Requirement is a functional or non-functional requirement captured
// during a phase.
type Requirement struct {
	ID            string
	PipelineRunID string
	Phase         string
	Text          string
	Kind          string
	CreatedAt     time.Time
}

// Constraint is a hard limit or rule captured during a phase.
type Constraint struct {
	ID            string
	PipelineRunID string
	Phase         string
	Text          string
	CreatedAt     time.Time
}

// Artifact is a produced output (document, diagram, task graph file)
// with an opaque path and a content hash for change detection.
type Artifact struct {
	ID            string
	PipelineRunID string
	Phase         string
	Type          string
	Path          string
	ContentHash   string
	CreatedAt     time.Time
}

// TokenUsage records input/output token counts attributed to a phase.
type TokenUsage struct {
	ID            string
	PipelineRunID string
	Phase         string
	InputTokens   int64
	OutputTokens  int64
	CreatedAt     time.Time
}

// Store is the typed API over the six append-only tables.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated *store.Store.
func New(s *store.Store) *Store {
	return &Store{db: s.DB()}
}

// CreatePipelineRun inserts a new pipeline run row.
func (s *Store) CreatePipelineRun(run *PipelineRun) error {
	now := time.Now()
	run.CreatedAt, run.UpdatedAt = now, now
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, methodology, current_phase, status, config_snapshot, token_usage_snapshot, parent_run_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Methodology, store.NullString(run.CurrentPhase), run.Status,
		store.NullString(run.ConfigSnapshot), store.NullString(run.TokenUsageSnapshot),
		store.NullString(run.ParentRunID), run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create pipeline run: %w", err)
	}
	return nil
}

// AdvancePhase updates a run's current phase and bumps updated_at.
func (s *Store) AdvancePhase(runID, phase string) error {
	_, err := s.db.Exec(`UPDATE pipeline_runs SET current_phase = ?, updated_at = ? WHERE id = ?`,
		phase, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("advance phase: %w", err)
	}
	return nil
}

// SetRunStatus transitions a pipeline run's status.
func (s *Store) SetRunStatus(runID string, status PipelineRunStatus) error {
	_, err := s.db.Exec(`UPDATE pipeline_runs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	return nil
}

// GetPipelineRun fetches a single run by id.
func (s *Store) GetPipelineRun(id string) (*PipelineRun, error) {
	var r PipelineRun
	var currentPhase, configSnap, tokenSnap, parentID sql.NullString
	err := s.db.QueryRow(`
		SELECT id, methodology, current_phase, status, config_snapshot, token_usage_snapshot, parent_run_id, created_at, updated_at
		FROM pipeline_runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Methodology, &currentPhase, &r.Status, &configSnap, &tokenSnap, &parentID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("pipeline run not found: %s", id)
		}
		return nil, fmt.Errorf("get pipeline run: %w", err)
	}
	r.CurrentPhase, r.ConfigSnapshot, r.TokenUsageSnapshot, r.ParentRunID =
		currentPhase.String, configSnap.String, tokenSnap.String, parentID.String
	return &r, nil
}

// CreateDecision inserts a new, non-superseded decision row.
func (s *Store) CreateDecision(d *Decision) error {
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := s.db.Exec(`
		INSERT INTO decisions (id, pipeline_run_id, phase, category, key, value, rationale, superseded_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, d.ID, store.NullString(d.PipelineRunID), d.Phase, d.Category, d.Key, d.Value,
		store.NullString(d.Rationale), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create decision: %w", err)
	}
	return nil
}

// SupersedeDecision sets oldID's superseded_by to newID. Idempotent if
// already pointing at the same target; returns an error if it already
// points elsewhere (a decision may only be superseded once).
func (s *Store) SupersedeDecision(oldID, newID string) error {
	var existing sql.NullString
	err := s.db.QueryRow(`SELECT superseded_by FROM decisions WHERE id = ?`, oldID).Scan(&existing)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("decision not found: %s", oldID)
		}
		return fmt.Errorf("read decision: %w", err)
	}
	if existing.Valid {
		if existing.String == newID {
			return nil // already superseded by the same target
		}
		return fmt.Errorf("decision %s already superseded by %s", oldID, existing.String)
	}

	_, err = s.db.Exec(`UPDATE decisions SET superseded_by = ?, updated_at = ? WHERE id = ?`,
		newID, time.Now(), oldID)
	if err != nil {
		return fmt.Errorf("supersede decision: %w", err)
	}
	return nil
}

// ActiveDecisions returns all non-superseded decisions for a run,
// optionally filtered to a phase, in insertion order.
func (s *Store) ActiveDecisions(runID, phase string) ([]*Decision, error) {
	var rows *sql.Rows
	var err error
	if phase == "" {
		rows, err = s.db.Query(`
			SELECT id, pipeline_run_id, phase, category, key, value, rationale, superseded_by, created_at, updated_at
			FROM decisions WHERE pipeline_run_id = ? AND superseded_by IS NULL ORDER BY created_at ASC
		`, runID)
	} else {
		rows, err = s.db.Query(`
			SELECT id, pipeline_run_id, phase, category, key, value, rationale, superseded_by, created_at, updated_at
			FROM decisions WHERE pipeline_run_id = ? AND phase = ? AND superseded_by IS NULL ORDER BY created_at ASC
		`, runID, phase)
	}
	if err != nil {
		return nil, fmt.Errorf("query active decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// LoadParentRunDecisions returns all non-superseded decisions from a
// parent run, in insertion order. Used by amendment runs.
func (s *Store) LoadParentRunDecisions(parentRunID string) ([]*Decision, error) {
	return s.ActiveDecisions(parentRunID, "")
}

func scanDecisions(rows *sql.Rows) ([]*Decision, error) {
	var out []*Decision
	for rows.Next() {
		var d Decision
		var runID, rationale, supersededBy sql.NullString
		if err := rows.Scan(&d.ID, &runID, &d.Phase, &d.Category, &d.Key, &d.Value,
			&rationale, &supersededBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.PipelineRunID, d.Rationale, d.SupersededBy = runID.String, rationale.String, supersededBy.String
		out = append(out, &d)
	}
	return out, rows.Err()
}

// CreateRequirement inserts a requirement row.
func (s *Store) CreateRequirement(r *Requirement) error {
	r.CreatedAt = time.Now()
	_, err := s.db.Exec(`
		INSERT INTO requirements (id, pipeline_run_id, phase, text, kind, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.PipelineRunID, r.Phase, r.Text, r.Kind, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create requirement: %w", err)
	}
	return nil
}

// CreateConstraint inserts a constraint row.
func (s *Store) CreateConstraint(c *Constraint) error {
	c.CreatedAt = time.Now()
	_, err := s.db.Exec(`
		INSERT INTO constraints (id, pipeline_run_id, phase, text, created_at) VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.PipelineRunID, c.Phase, c.Text, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create constraint: %w", err)
	}
	return nil
}

// RegisterArtifact inserts an artifact row.
func (s *Store) RegisterArtifact(a *Artifact) error {
	a.CreatedAt = time.Now()
	_, err := s.db.Exec(`
		INSERT INTO artifacts (id, pipeline_run_id, phase, type, path, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.PipelineRunID, a.Phase, a.Type, a.Path, a.ContentHash, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("register artifact: %w", err)
	}
	return nil
}

// GetLatestArtifact returns the most recently created artifact of a
// given phase and type, or nil if none exists.
func (s *Store) GetLatestArtifact(phase, artifactType string) (*Artifact, error) {
	var a Artifact
	err := s.db.QueryRow(`
		SELECT id, pipeline_run_id, phase, type, path, content_hash, created_at
		FROM artifacts WHERE phase = ? AND type = ? ORDER BY created_at DESC LIMIT 1
	`, phase, artifactType).Scan(&a.ID, &a.PipelineRunID, &a.Phase, &a.Type, &a.Path, &a.ContentHash, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest artifact: %w", err)
	}
	return &a, nil
}

// ArtifactFilter narrows a ListArtifacts query; zero-value fields are
// ignored.
type ArtifactFilter struct {
	PipelineRunID string
	Phase         string
	Type          string
}

// ListArtifacts returns artifacts matching the given filter, oldest first.
func (s *Store) ListArtifacts(f ArtifactFilter) ([]*Artifact, error) {
	query := `SELECT id, pipeline_run_id, phase, type, path, content_hash, created_at FROM artifacts WHERE 1=1`
	var args []interface{}
	if f.PipelineRunID != "" {
		query += " AND pipeline_run_id = ?"
		args = append(args, f.PipelineRunID)
	}
	if f.Phase != "" {
		query += " AND phase = ?"
		args = append(args, f.Phase)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.PipelineRunID, &a.Phase, &a.Type, &a.Path, &a.ContentHash, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// AddTokenUsage records a token usage entry for a phase.
func (s *Store) AddTokenUsage(u *TokenUsage) error {
	u.CreatedAt = time.Now()
	_, err := s.db.Exec(`
		INSERT INTO token_usage (id, pipeline_run_id, phase, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.PipelineRunID, u.Phase, u.InputTokens, u.OutputTokens, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("add token usage: %w", err)
	}
	return nil
}
