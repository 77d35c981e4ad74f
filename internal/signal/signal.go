// Package signal implements the session signal bus: a small table of
// pause/resume/cancel requests that lets a separate CLI invocation
// steer a running orchestrator process without any IPC between them.
package signal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/johnplanow/substrate/internal/store"
)

// Kind is one of the signals the bus understands.
type Kind string

const (
	Pause  Kind = "pause"
	Resume Kind = "resume"
	Cancel Kind = "cancel"
)

// Signal is one row of the session_signals table.
type Signal struct {
	ID          string
	SessionID   string
	Kind        Kind
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Store is the typed API over session_signals.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated *store.Store.
func New(s *store.Store) *Store {
	return &Store{db: s.DB()}
}

// Send inserts a new unprocessed signal for a session. This is all the
// pause/resume/cancel CLI commands do.
func (s *Store) Send(id, sessionID string, kind Kind) error {
	_, err := s.db.Exec(`
		INSERT INTO session_signals (id, session_id, signal, created_at, processed_at)
		VALUES (?, ?, ?, ?, NULL)
	`, id, sessionID, string(kind), time.Now())
	if err != nil {
		return fmt.Errorf("send signal: %w", err)
	}
	return nil
}

// Pending returns a session's unprocessed signals in the order they
// were created.
func (s *Store) Pending(sessionID string) ([]Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, signal, created_at, processed_at
		FROM session_signals
		WHERE session_id = ? AND processed_at IS NULL
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query pending signals: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var sig Signal
		var kind string
		var processedAt sql.NullTime
		if err := rows.Scan(&sig.ID, &sig.SessionID, &kind, &sig.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		sig.Kind = Kind(kind)
		if processedAt.Valid {
			t := processedAt.Time
			sig.ProcessedAt = &t
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}
	return out, nil
}

// MarkProcessed sets a signal's processed_at timestamp.
func (s *Store) MarkProcessed(id string) error {
	res, err := s.db.Exec(`UPDATE session_signals SET processed_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark signal processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("signal not found: %s", id)
	}
	return nil
}

// Effect is the control action an applied signal has on an
// orchestrator loop.
type Effect string

const (
	EffectPause  Effect = "pause"
	EffectResume Effect = "resume"
	EffectCancel Effect = "cancel"
)

// Controller is the minimal interface a signal apply loop needs from
// an orchestrator/engine (satisfied by *taskgraph.Engine).
type Controller interface {
	Pause()
	Resume()
	Cancel()
}

// ApplyPending drains a session's unprocessed signals in order,
// applies each to controller, and marks it processed. Intended to run
// between engine ticks. Returns the effects applied, in order.
func (s *Store) ApplyPending(sessionID string, controller Controller) ([]Effect, error) {
	pending, err := s.Pending(sessionID)
	if err != nil {
		return nil, err
	}

	var applied []Effect
	for _, sig := range pending {
		switch sig.Kind {
		case Pause:
			controller.Pause()
			applied = append(applied, EffectPause)
		case Resume:
			controller.Resume()
			applied = append(applied, EffectResume)
		case Cancel:
			controller.Cancel()
			applied = append(applied, EffectCancel)
		}
		if err := s.MarkProcessed(sig.ID); err != nil {
			return applied, err
		}
	}
	return applied, nil
}
