// Package worktree manages per-task isolated git worktrees, one per
// running task, each on its own branch forked from the session's base
// branch.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Info describes one created worktree.
type Info struct {
	TaskID     string
	Path       string
	Branch     string
	BaseBranch string
}

// ConflictReport is the result of a merge-conflict simulation.
type ConflictReport struct {
	HasConflicts     bool
	ConflictingFiles []string
	TaskID           string
	TargetBranch     string
}

// MergeResult is the result of a real worktree merge.
type MergeResult struct {
	Success     bool
	MergedFiles []string
	Conflicts   *ConflictReport
}

// Manager roots every worktree at <ProjectRoot>/<WorktreesDir>/<taskId>
// and names branches <Prefix>/task-<taskId>.
type Manager struct {
	ProjectRoot  string
	WorktreesDir string
	Prefix       string
	BaseBranch   string
}

// New creates a Manager; worktreesDir is relative to projectRoot.
func New(projectRoot, worktreesDir, prefix string) *Manager {
	if prefix == "" {
		prefix = "task"
	}
	return &Manager{
		ProjectRoot:  projectRoot,
		WorktreesDir: worktreesDir,
		Prefix:       prefix,
		BaseBranch:   "main",
	}
}

// BranchName builds the <prefix>/task-<taskId> branch name for a task.
func (m *Manager) BranchName(taskID string) string {
	return fmt.Sprintf("%s/task-%s", m.Prefix, sanitizeTaskID(taskID))
}

func sanitizeTaskID(taskID string) string {
	reg := regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	return reg.ReplaceAllString(taskID, "-")
}

func (m *Manager) worktreePath(taskID string) string {
	return filepath.Join(m.ProjectRoot, m.WorktreesDir, taskID)
}

func (m *Manager) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = m.ProjectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output)), nil
}

// CreateWorktree creates a new branch off baseBranch (or the manager's
// default) and a new worktree checked out onto it.
func (m *Manager) CreateWorktree(taskID string, baseBranch string) (*Info, error) {
	if baseBranch == "" {
		baseBranch = m.BaseBranch
	}
	branch := m.BranchName(taskID)
	path := m.worktreePath(taskID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create worktrees dir: %w", err)
	}

	if _, err := m.run("worktree", "add", "-b", branch, path, baseBranch); err != nil {
		return nil, err
	}

	return &Info{TaskID: taskID, Path: path, Branch: branch, BaseBranch: baseBranch}, nil
}

// CleanupWorktree removes both the worktree and its branch. Safe to
// call on a partially-created worktree: each step's error is ignored
// if the resource is already gone.
func (m *Manager) CleanupWorktree(taskID string) error {
	path := m.worktreePath(taskID)
	branch := m.BranchName(taskID)

	if _, err := os.Stat(path); err == nil {
		if _, err := m.run("worktree", "remove", "--force", path); err != nil {
			return err
		}
	}

	if _, err := m.run("branch", "-D", branch); err != nil {
		if !strings.Contains(err.Error(), "not found") {
			return err
		}
	}

	return nil
}

// CleanupAllWorktrees scans the worktrees base directory and destroys
// every worktree registered there, returning the count destroyed. Used
// by crash recovery on startup.
func (m *Manager) CleanupAllWorktrees() (int, error) {
	base := filepath.Join(m.ProjectRoot, m.WorktreesDir)
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read worktrees dir: %w", err)
	}

	count := 0
	var firstErr error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := m.CleanupWorktree(entry.Name()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		count++
	}
	return count, firstErr
}

// DetectConflicts simulates a no-commit no-fast-forward merge of a
// task's branch into targetBranch (or the manager's default) from a
// scratch checkout of targetBranch, collects the conflicting file
// list, then aborts the simulated merge.
func (m *Manager) DetectConflicts(taskID string, targetBranch string) (*ConflictReport, error) {
	if targetBranch == "" {
		targetBranch = m.BaseBranch
	}
	branch := m.BranchName(taskID)
	report := &ConflictReport{TaskID: taskID, TargetBranch: targetBranch}

	current, err := m.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	if _, err := m.run("checkout", targetBranch); err != nil {
		return nil, err
	}
	defer m.run("checkout", current)

	_, mergeErr := m.run("merge", "--no-commit", "--no-ff", branch)
	if mergeErr != nil {
		files, _ := m.run("diff", "--name-only", "--diff-filter=U")
		report.HasConflicts = true
		report.ConflictingFiles = splitNonEmpty(files)
	}
	m.run("merge", "--abort")

	return report, nil
}

// MergeWorktree runs conflict detection first; if clean, performs a
// real no-fast-forward merge into targetBranch and returns the merged
// file list.
func (m *Manager) MergeWorktree(taskID string, targetBranch string) (*MergeResult, error) {
	if targetBranch == "" {
		targetBranch = m.BaseBranch
	}
	branch := m.BranchName(taskID)

	report, err := m.DetectConflicts(taskID, targetBranch)
	if err != nil {
		return nil, err
	}
	if report.HasConflicts {
		return &MergeResult{Success: false, Conflicts: report}, nil
	}

	if _, err := m.run("checkout", targetBranch); err != nil {
		return nil, err
	}
	beforeFiles, _ := m.run("diff", "--name-only", targetBranch, branch)
	if _, err := m.run("merge", "--no-ff", branch, "-m", fmt.Sprintf("Merge %s into %s", branch, targetBranch)); err != nil {
		return nil, fmt.Errorf("merge (post-detection): %w", err)
	}

	return &MergeResult{Success: true, MergedFiles: splitNonEmpty(beforeFiles)}, nil
}

// VerifyGitVersion asserts the git binary is on PATH and reports its
// parsed major.minor.patch version.
func (m *Manager) VerifyGitVersion(minMajor, minMinor int) (string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", fmt.Errorf("git not found on PATH: %w", err)
	}
	out, err := exec.Command("git", "--version").Output()
	if err != nil {
		return "", fmt.Errorf("git --version: %w", err)
	}
	versionPattern := regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)
	match := versionPattern.FindStringSubmatch(string(out))
	if match == nil {
		return "", fmt.Errorf("could not parse git version from %q", out)
	}
	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])
	if major < minMajor || (major == minMajor && minor < minMinor) {
		return match[0], fmt.Errorf("git version %s is older than required %d.%d", match[0], minMajor, minMinor)
	}
	return match[0], nil
}

// ListWorktrees returns the on-disk active worktree set, independent
// of any database bookkeeping.
func (m *Manager) ListWorktrees() ([]Info, error) {
	out, err := m.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var result []Info
	var current Info
	base := filepath.Join(m.ProjectRoot, m.WorktreesDir)
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current.Path != "" {
				result = append(result, current)
			}
			current = Info{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		}
	}
	if current.Path != "" {
		result = append(result, current)
	}

	filtered := result[:0]
	for _, wt := range result {
		if strings.HasPrefix(wt.Path, base) {
			wt.TaskID = filepath.Base(wt.Path)
			filtered = append(filtered, wt)
		}
	}
	return filtered, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
