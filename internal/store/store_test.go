package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "substrate.db")
	s, err := Open(path, Migrations())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := setupTestStore(t)

	rows, err := s.DB().Query(`SELECT version, name FROM schema_migrations ORDER BY version`)
	if err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		var name string
		if err := rows.Scan(&v, &name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		versions = append(versions, v)
	}

	want := len(Migrations())
	if len(versions) != want {
		t.Fatalf("applied %d migrations, want %d", len(versions), want)
	}
	for i, v := range versions {
		if v != i+1 {
			t.Errorf("versions[%d] = %d, want %d", i, v, i+1)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "substrate.db")

	s1, err := Open(path, Migrations())
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	s1.Close()

	s2, err := Open(path, Migrations())
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if count != len(Migrations()) {
		t.Errorf("count = %d, want %d (re-running migrate should not duplicate rows)", count, len(Migrations()))
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)

	wantErr := sql.ErrNoRows
	err := s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO sessions (id, graph_file, created_at, updated_at) VALUES ('s1','g',CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("WithTx() error = %v, want %v", err, wantErr)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 0 {
		t.Errorf("sessions count = %d, want 0 (transaction should have rolled back)", count)
	}
}

func TestWALModeEnabled(t *testing.T) {
	s := setupTestStore(t)

	var mode string
	if err := s.DB().QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestNullStringAndNullTime(t *testing.T) {
	if ns := NullString(""); ns.Valid {
		t.Error("NullString(\"\") should be invalid")
	}
	if ns := NullString("x"); !ns.Valid || ns.String != "x" {
		t.Errorf("NullString(\"x\") = %+v", ns)
	}
	if nt := NullTime(time.Time{}); nt.Valid {
		t.Error("NullTime(zero) should be invalid")
	}
	if now := time.Now(); !NullTime(now).Valid {
		t.Errorf("NullTime(%v) should be valid", now)
	}
}
