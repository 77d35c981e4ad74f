package recovery

import (
	"testing"
	"time"

	"github.com/johnplanow/substrate/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	s, err := store.Open(":memory:", store.Migrations())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertSession(t *testing.T, s *store.Store, id, status string) {
	t.Helper()
	now := time.Now()
	_, err := s.DB().Exec(`
		INSERT INTO sessions (id, graph_file, status, base_branch, budget_usd, total_cost_usd, planning_cost_usd, created_at, updated_at)
		VALUES (?, 'graph.yaml', ?, 'main', 0, 0, 0, ?, ?)
	`, id, status, now, now)
	if err != nil {
		t.Fatalf("insertSession: %v", err)
	}
}

func insertTask(t *testing.T, s *store.Store, id, sessionID, status string, retryCount, maxRetries int) {
	t.Helper()
	now := time.Now()
	_, err := s.DB().Exec(`
		INSERT INTO tasks (id, session_id, name, prompt, status, worker_id, retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, 'T', 'p', ?, 'worker-1', ?, ?, ?, ?)
	`, id, sessionID, status, retryCount, maxRetries, now, now)
	if err != nil {
		t.Fatalf("insertTask: %v", err)
	}
}

type fakeCleaner struct {
	called chan struct{}
	err    error
}

func (f *fakeCleaner) CleanupAllWorktrees() (int, error) {
	if f.called != nil {
		close(f.called)
	}
	return 0, f.err
}

func TestReconcileRetriesBelowMax(t *testing.T) {
	s := setupTestStore(t)
	insertSession(t, s, "sess-1", "active")
	insertTask(t, s, "t1", "sess-1", "running", 0, 2)

	m := New(s, nil, nil)
	outcome, err := m.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(outcome.Recovered) != 1 || outcome.Recovered[0] != "t1" {
		t.Fatalf("Recovered = %v, want [t1]", outcome.Recovered)
	}
	if len(outcome.Failed) != 0 {
		t.Fatalf("Failed = %v, want none", outcome.Failed)
	}

	var status string
	var retryCount int
	var workerID *string
	if err := s.DB().QueryRow(`SELECT status, retry_count, worker_id FROM tasks WHERE id = 't1'`).
		Scan(&status, &retryCount, &workerID); err != nil {
		t.Fatalf("query task: %v", err)
	}
	if status != "pending" || retryCount != 1 || workerID != nil {
		t.Fatalf("task t1 = status=%s retry=%d worker=%v, want pending/1/nil", status, retryCount, workerID)
	}
}

func TestReconcileFailsExhaustedRetries(t *testing.T) {
	s := setupTestStore(t)
	insertSession(t, s, "sess-1", "active")
	insertTask(t, s, "t1", "sess-1", "running", 2, 2)

	m := New(s, nil, nil)
	outcome, err := m.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(outcome.Failed) != 1 || outcome.Failed[0] != "t1" {
		t.Fatalf("Failed = %v, want [t1]", outcome.Failed)
	}

	var status, errMsg string
	if err := s.DB().QueryRow(`SELECT status, error FROM tasks WHERE id = 't1'`).Scan(&status, &errMsg); err != nil {
		t.Fatalf("query task: %v", err)
	}
	if status != "failed" || errMsg != "crash + retries exhausted" {
		t.Fatalf("task t1 = status=%s error=%q, want failed/crash + retries exhausted", status, errMsg)
	}
}

func TestReconcileIsIdempotentOnCleanDB(t *testing.T) {
	s := setupTestStore(t)
	insertSession(t, s, "sess-1", "active")
	insertTask(t, s, "t1", "sess-1", "completed", 0, 2)

	m := New(s, nil, nil)
	outcome, err := m.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(outcome.Recovered) != 0 || len(outcome.Failed) != 0 {
		t.Fatalf("outcome = %+v, want no-op on an already-clean db", outcome)
	}
}

func TestReconcileTriggersAsyncWorktreeCleanup(t *testing.T) {
	s := setupTestStore(t)
	insertSession(t, s, "sess-1", "active")
	insertTask(t, s, "t1", "sess-1", "running", 0, 1)

	cleaner := &fakeCleaner{called: make(chan struct{})}
	m := New(s, cleaner, nil)
	if _, err := m.Reconcile(); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	select {
	case <-cleaner.called:
	case <-time.After(time.Second):
		t.Fatal("CleanupAllWorktrees() was not called within 1s")
	}
}

func TestFindInterruptedSessionPicksMostRecent(t *testing.T) {
	s := setupTestStore(t)
	insertSession(t, s, "sess-old", "interrupted")
	time.Sleep(2 * time.Millisecond)
	insertSession(t, s, "sess-new", "interrupted")

	m := New(s, nil, nil)
	id, ok, err := m.FindInterruptedSession()
	if err != nil {
		t.Fatalf("FindInterruptedSession() error = %v", err)
	}
	if !ok || id != "sess-new" {
		t.Fatalf("FindInterruptedSession() = (%q, %v), want sess-new", id, ok)
	}
}

func TestFindInterruptedSessionNoneFound(t *testing.T) {
	s := setupTestStore(t)
	insertSession(t, s, "sess-1", "active")

	m := New(s, nil, nil)
	_, ok, err := m.FindInterruptedSession()
	if err != nil {
		t.Fatalf("FindInterruptedSession() error = %v", err)
	}
	if ok {
		t.Fatal("FindInterruptedSession() ok = true, want false when none are interrupted")
	}
}

func TestArchiveSession(t *testing.T) {
	s := setupTestStore(t)
	insertSession(t, s, "sess-1", "interrupted")

	m := New(s, nil, nil)
	if err := m.ArchiveSession("sess-1"); err != nil {
		t.Fatalf("ArchiveSession() error = %v", err)
	}

	var status string
	if err := s.DB().QueryRow(`SELECT status FROM sessions WHERE id = 'sess-1'`).Scan(&status); err != nil {
		t.Fatalf("query session: %v", err)
	}
	if status != "abandoned" {
		t.Fatalf("session status = %q, want abandoned", status)
	}
}
