package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test")
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644)
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestBranchNameFormat(t *testing.T) {
	m := New("/repo", "worktrees", "task")
	if got, want := m.BranchName("abc123"), "task/task-abc123"; got != want {
		t.Errorf("BranchName() = %q, want %q", got, want)
	}
}

func TestCreateAndCleanupWorktree(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	m := New(repo, "worktrees", "task")
	m.BaseBranch = "main"

	info, err := m.CreateWorktree("t1", "")
	if err != nil {
		t.Fatalf("CreateWorktree() error = %v", err)
	}
	if _, err := os.Stat(info.Path); err != nil {
		t.Fatalf("worktree path %q does not exist: %v", info.Path, err)
	}

	list, err := m.ListWorktrees()
	if err != nil {
		t.Fatalf("ListWorktrees() error = %v", err)
	}
	found := false
	for _, wt := range list {
		if wt.TaskID == "t1" {
			found = true
		}
	}
	if !found {
		t.Errorf("ListWorktrees() = %+v, want an entry for t1", list)
	}

	if err := m.CleanupWorktree("t1"); err != nil {
		t.Fatalf("CleanupWorktree() error = %v", err)
	}
	if _, err := os.Stat(info.Path); !os.IsNotExist(err) {
		t.Errorf("worktree path %q still exists after cleanup", info.Path)
	}
}

func TestCleanupWorktreeIsSafeOnMissingWorktree(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	m := New(repo, "worktrees", "task")

	if err := m.CleanupWorktree("never-created"); err != nil {
		t.Errorf("CleanupWorktree() on nonexistent task = %v, want nil (safe no-op)", err)
	}
}

func TestCleanupAllWorktreesCountsAndRemoves(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	m := New(repo, "worktrees", "task")

	if _, err := m.CreateWorktree("t1", ""); err != nil {
		t.Fatalf("CreateWorktree(t1) error = %v", err)
	}
	if _, err := m.CreateWorktree("t2", ""); err != nil {
		t.Fatalf("CreateWorktree(t2) error = %v", err)
	}

	count, err := m.CleanupAllWorktrees()
	if err != nil {
		t.Fatalf("CleanupAllWorktrees() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CleanupAllWorktrees() count = %d, want 2", count)
	}

	list, err := m.ListWorktrees()
	if err != nil {
		t.Fatalf("ListWorktrees() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListWorktrees() after cleanup = %+v, want empty", list)
	}
}

func TestDetectConflictsCleanMerge(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	m := New(repo, "worktrees", "task")

	if _, err := m.CreateWorktree("t1", ""); err != nil {
		t.Fatalf("CreateWorktree() error = %v", err)
	}
	os.WriteFile(filepath.Join(repo, "worktrees", "t1", "feature.txt"), []byte("feature"), 0o644)
	wtCmd := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = filepath.Join(repo, "worktrees", "t1")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	wtCmd("add", ".")
	wtCmd("commit", "-m", "add feature")

	report, err := m.DetectConflicts("t1", "main")
	if err != nil {
		t.Fatalf("DetectConflicts() error = %v", err)
	}
	if report.HasConflicts {
		t.Errorf("DetectConflicts() = %+v, want no conflicts for a clean addition", report)
	}
}

func TestMergeWorktreeMergesCleanChanges(t *testing.T) {
	requireGit(t)
	repo := initRepo(t)
	m := New(repo, "worktrees", "task")

	if _, err := m.CreateWorktree("t1", ""); err != nil {
		t.Fatalf("CreateWorktree() error = %v", err)
	}
	os.WriteFile(filepath.Join(repo, "worktrees", "t1", "feature.txt"), []byte("feature"), 0o644)
	wtCmd := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = filepath.Join(repo, "worktrees", "t1")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	wtCmd("add", ".")
	wtCmd("commit", "-m", "add feature")

	result, err := m.MergeWorktree("t1", "main")
	if err != nil {
		t.Fatalf("MergeWorktree() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("MergeWorktree() = %+v, want success", result)
	}

	if _, err := os.Stat(filepath.Join(repo, "feature.txt")); err != nil {
		t.Errorf("feature.txt not present in base repo after merge: %v", err)
	}
}

func TestVerifyGitVersion(t *testing.T) {
	requireGit(t)
	m := New("/repo", "worktrees", "task")
	version, err := m.VerifyGitVersion(2, 0)
	if err != nil {
		t.Fatalf("VerifyGitVersion() error = %v", err)
	}
	if version == "" {
		t.Error("VerifyGitVersion() returned empty version string")
	}
}
