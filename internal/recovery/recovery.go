// Package recovery implements startup crash recovery: reconciling
// tasks that were left "running" when the process died, and cleaning
// up whatever worktrees they left behind.
package recovery

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/johnplanow/substrate/internal/store"
)

// Outcome summarizes what one reconciliation pass did.
type Outcome struct {
	Recovered []string // task ids returned to pending for a retry
	Failed    []string // task ids marked failed, retries exhausted
}

// WorktreeCleaner is the subset of *worktree.Manager recovery needs.
type WorktreeCleaner interface {
	CleanupAllWorktrees() (int, error)
}

// Manager reconciles the tasks/sessions tables against a fresh
// process start.
type Manager struct {
	db       *sql.DB
	cleaner  WorktreeCleaner
	onCleanupErr func(error)
}

// New wraps an already-migrated *store.Store. cleaner may be nil to
// skip worktree cleanup (e.g. in tests); onCleanupErr, if non-nil, is
// called with any error CleanupAllWorktrees reports — it is logged,
// never fatal.
func New(s *store.Store, cleaner WorktreeCleaner, onCleanupErr func(error)) *Manager {
	return &Manager{db: s.DB(), cleaner: cleaner, onCleanupErr: onCleanupErr}
}

// Reconcile finds every task still marked running — meaning the
// process died mid-dispatch — and either returns it to pending for a
// retry or marks it permanently failed, depending on retry budget.
// Idempotent: running it against an already-clean database is a no-op.
func (m *Manager) Reconcile() (Outcome, error) {
	outcome := Outcome{}

	rows, err := m.db.Query(`
		SELECT id, retry_count, max_retries FROM tasks WHERE status = 'running'
	`)
	if err != nil {
		return outcome, fmt.Errorf("query running tasks: %w", err)
	}
	type running struct {
		id                    string
		retryCount, maxRetries int
	}
	var found []running
	for rows.Next() {
		var r running
		if err := rows.Scan(&r.id, &r.retryCount, &r.maxRetries); err != nil {
			rows.Close()
			return outcome, fmt.Errorf("scan running task: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return outcome, fmt.Errorf("iterate running tasks: %w", err)
	}
	rows.Close()

	now := time.Now()
	for _, r := range found {
		if r.retryCount < r.maxRetries {
			_, err := m.db.Exec(`
				UPDATE tasks SET status = 'pending', retry_count = retry_count + 1,
					worker_id = NULL, updated_at = ? WHERE id = ?
			`, now, r.id)
			if err != nil {
				return outcome, fmt.Errorf("recover task %s: %w", r.id, err)
			}
			outcome.Recovered = append(outcome.Recovered, r.id)
			continue
		}

		_, err := m.db.Exec(`
			UPDATE tasks SET status = 'failed', error = ?, worker_id = NULL, updated_at = ?
			WHERE id = ?
		`, "crash + retries exhausted", now, r.id)
		if err != nil {
			return outcome, fmt.Errorf("fail task %s: %w", r.id, err)
		}
		outcome.Failed = append(outcome.Failed, r.id)
	}

	if m.cleaner != nil {
		go func() {
			if _, err := m.cleaner.CleanupAllWorktrees(); err != nil && m.onCleanupErr != nil {
				m.onCleanupErr(err)
			}
		}()
	}

	return outcome, nil
}

// FindInterruptedSession returns the most recently updated session
// still marked interrupted, or "", false if there is none.
func (m *Manager) FindInterruptedSession() (string, bool, error) {
	var id string
	err := m.db.QueryRow(`
		SELECT id FROM sessions WHERE status = 'interrupted' ORDER BY updated_at DESC LIMIT 1
	`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find interrupted session: %w", err)
	}
	return id, true, nil
}

// ArchiveSession marks a session abandoned.
func (m *Manager) ArchiveSession(id string) error {
	_, err := m.db.Exec(`UPDATE sessions SET status = 'abandoned', updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", id, err)
	}
	return nil
}
