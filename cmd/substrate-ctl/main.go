// Command substrate-ctl is a narrow control CLI for inspecting and
// nudging a substrate state database without going through the full
// orchestrator: finding an interrupted session, archiving one, or
// reporting a pipeline run's current phase and status.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/johnplanow/substrate/internal/decisions"
	"github.com/johnplanow/substrate/internal/recovery"
	"github.com/johnplanow/substrate/internal/store"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := flag.String("db", ".substrate/state.db", "path to the state database")
	action := flag.String("action", "", "action to perform: find-interrupted, archive-session, run-status, reconcile, force-fail-task")
	sessionID := flag.String("session", "", "session id (archive-session)")
	runID := flag.String("run-id", "", "pipeline run id (run-status)")
	taskID := flag.String("task", "", "task id (force-fail-task)")
	reason := flag.String("reason", "manual intervention", "failure reason (force-fail-task)")
	jsonOutput := flag.Bool("json", false, "output as JSON")
	flag.Parse()

	if *action == "" {
		fmt.Fprintln(os.Stderr, "usage: substrate-ctl -db <path> -action <find-interrupted|archive-session|run-status|reconcile|force-fail-task> [flags]")
		os.Exit(1)
	}

	if *action == "force-fail-task" {
		forceFailTask(*dbPath, *taskID, *reason)
		return
	}

	s, err := store.Open(*dbPath, store.Migrations())
	if err != nil {
		fail("open database: %v", err)
	}
	defer s.Close()

	switch *action {
	case "find-interrupted":
		findInterrupted(s, *jsonOutput)
	case "archive-session":
		archiveSession(s, *sessionID)
	case "run-status":
		runStatus(s, *runID, *jsonOutput)
	case "reconcile":
		reconcile(s)
	default:
		fail("unknown action %q", *action)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func findInterrupted(s *store.Store, jsonOut bool) {
	mgr := recovery.New(s, nil, nil)
	id, found, err := mgr.FindInterruptedSession()
	if err != nil {
		fail("find interrupted session: %v", err)
	}
	if jsonOut {
		json.NewEncoder(os.Stdout).Encode(map[string]interface{}{"found": found, "session_id": id})
		return
	}
	if !found {
		fmt.Println("no interrupted session found")
		return
	}
	fmt.Println(id)
}

func archiveSession(s *store.Store, sessionID string) {
	if sessionID == "" {
		fail("archive-session: -session is required")
	}
	mgr := recovery.New(s, nil, nil)
	if err := mgr.ArchiveSession(sessionID); err != nil {
		fail("archive session: %v", err)
	}
	fmt.Printf("session %s archived\n", sessionID)
}

func runStatus(s *store.Store, runID string, jsonOut bool) {
	if runID == "" {
		fail("run-status: -run-id is required")
	}
	ds := decisions.New(s)
	run, err := ds.GetPipelineRun(runID)
	if err != nil {
		fail("get pipeline run: %v", err)
	}
	if jsonOut {
		json.NewEncoder(os.Stdout).Encode(run)
		return
	}
	fmt.Printf("run %s: phase=%s status=%s\n", run.ID, run.CurrentPhase, run.Status)
}

func reconcile(s *store.Store) {
	mgr := recovery.New(s, nil, func(err error) { fmt.Fprintf(os.Stderr, "worktree cleanup: %v\n", err) })
	outcome, err := mgr.Reconcile()
	if err != nil {
		fail("reconcile: %v", err)
	}
	fmt.Printf("recovered: %v\nfailed: %v\n", outcome.Recovered, outcome.Failed)
}

// forceFailTask is an escape hatch for an operator to kill a stuck task
// directly, bypassing the signal bus. It opens the database through
// modernc.org/sqlite's pure-Go driver rather than mattn/go-sqlite3 —
// useful on a box where cgo isn't available, since this one operation
// is a single UPDATE with no need for the main store's migration
// machinery.
func forceFailTask(dbPath, taskID, reason string) {
	if taskID == "" {
		fail("force-fail-task: -task is required")
	}
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		fail("open database (modernc driver): %v", err)
	}
	defer db.Close()

	res, err := db.Exec(`UPDATE tasks SET status = 'failed', error = ?, worker_id = NULL WHERE id = ?`, reason, taskID)
	if err != nil {
		fail("force-fail task: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		fail("no task found with id %s", taskID)
	}
	fmt.Printf("task %s force-failed: %s\n", taskID, reason)
}
