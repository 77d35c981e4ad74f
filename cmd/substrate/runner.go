package main

import (
	"context"
	"fmt"
	"time"

	"github.com/johnplanow/substrate/internal/config"
	"github.com/johnplanow/substrate/internal/cost"
	"github.com/johnplanow/substrate/internal/dispatch"
	"github.com/johnplanow/substrate/internal/eventbus"
	"github.com/johnplanow/substrate/internal/gate"
	"github.com/johnplanow/substrate/internal/git"
	"github.com/johnplanow/substrate/internal/substratelog"
	"github.com/johnplanow/substrate/internal/taskgraph"
	"github.com/johnplanow/substrate/internal/worktree"
)

// gateForTaskType returns the quality-gate pipeline a task type runs
// through before its worktree is merged.
func gateForTaskType(registry *gate.Registry, taskType string) *gate.Pipeline {
	switch taskType {
	case "implementation":
		acGate, _ := registry.Build("ac-validation", "ac-validation", 2)
		testGate, _ := registry.Build("test-coverage", "test-coverage", 2)
		reviewGate, _ := registry.Build("code-review-verdict", "code-review-verdict", 1)
		return gate.NewPipeline(acGate, testGate, reviewGate)
	default:
		acGate, _ := registry.Build("ac-validation", "ac-validation", 1)
		return gate.NewPipeline(acGate)
	}
}

// sessionRunner adapts the dispatcher, worktree manager, gate registry
// and cost tracker into a taskgraph.Runner — the real wiring the
// engine's abstract Runner interface leaves to the caller.
type sessionRunner struct {
	sessionID  string
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	worktrees  *worktree.Manager
	gates      *gate.Registry
	bus        *eventbus.Bus
	log        *substratelog.Logger
	billing    cost.BillingMode
}

func newSessionRunner(sessionID string, cfg *config.Config, bus *eventbus.Bus) *sessionRunner {
	d := dispatch.New()
	d.AgentBinary = cfg.AgentBinary

	return &sessionRunner{
		sessionID:  sessionID,
		cfg:        cfg,
		dispatcher: d,
		worktrees:  worktree.New(cfg.ProjectRoot, cfg.WorktreesDir, "task"),
		gates:      gate.NewRegistry(),
		bus:        bus,
		log:        substratelog.New("runner"),
		billing:    cost.BillingAPI,
	}
}

// Run implements taskgraph.Runner: isolate the task in its own
// worktree, dispatch the agent, run its post-task quality gates, and
// merge on a clean pass.
func (r *sessionRunner) Run(taskID string, def taskgraph.TaskDef) taskgraph.RunOutcome {
	r.bus.Publish(eventbus.Frame{Kind: eventbus.KindTaskStarted, SessionID: r.sessionID, TaskID: taskID, CreatedAt: time.Now()})

	wt, err := r.worktrees.CreateWorktree(taskID, r.cfg.DefaultBranch)
	if err != nil {
		r.log.Errorf("create worktree for %s: %v", taskID, err)
		return taskgraph.RunOutcome{Success: false, Error: fmt.Sprintf("worktree: %v", err)}
	}

	timeout := time.Duration(def.TimeoutMs) * time.Millisecond
	result, err := r.dispatcher.Dispatch(context.Background(), dispatch.Input{
		Agent:    def.Agent,
		TaskType: def.Type,
		Prompt:   def.Prompt,
		Cwd:      wt.Path,
		Timeout:  timeout,
	})
	if err != nil {
		return taskgraph.RunOutcome{Success: false, Error: err.Error()}
	}

	estimate := cost.EstimateCost(r.cfg.AgentBinary(def.Agent), def.Model,
		int64(result.TokenEstimate.Input), int64(result.TokenEstimate.Output), r.billing)

	if result.Status != dispatch.StatusCompleted {
		return taskgraph.RunOutcome{Success: false, CostUSD: estimate.CostUSD, Error: string(result.Status)}
	}

	if err := r.commitIfDirty(wt.Path, taskID, def.Name); err != nil {
		return taskgraph.RunOutcome{Success: false, CostUSD: estimate.CostUSD, Error: fmt.Sprintf("commit: %v", err)}
	}

	pipeline := gateForTaskType(r.gates, def.Type)
	gateResult := pipeline.Run(result.Parsed)
	if gateResult.Action != gate.ActionProceed {
		return taskgraph.RunOutcome{Success: false, CostUSD: estimate.CostUSD, Error: fmt.Sprintf("gate %v", gateResult.Action)}
	}

	if _, err := r.worktrees.MergeWorktree(taskID, r.cfg.DefaultBranch); err != nil {
		return taskgraph.RunOutcome{Success: false, CostUSD: estimate.CostUSD, Error: fmt.Sprintf("merge: %v", err)}
	}
	_ = r.worktrees.CleanupWorktree(taskID)

	r.bus.Publish(eventbus.Frame{Kind: eventbus.KindTaskComplete, SessionID: r.sessionID, TaskID: taskID, CreatedAt: time.Now()})
	return taskgraph.RunOutcome{Success: true, CostUSD: estimate.CostUSD}
}

// commitIfDirty captures any work an agent left uncommitted in its
// worktree. Agents are expected to commit their own changes, but not
// every agent CLI does; without this the worktree's diff against the
// base branch would be empty and MergeWorktree would have nothing to
// merge.
func (r *sessionRunner) commitIfDirty(worktreePath, taskID, taskName string) error {
	g := git.New(worktreePath)
	dirty, err := g.HasUncommittedChanges()
	if err != nil {
		return fmt.Errorf("check worktree status: %w", err)
	}
	if !dirty {
		return nil
	}
	if err := g.Add("."); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	branch := git.BranchName(taskID, taskName)
	if err := g.Commit(fmt.Sprintf("%s: agent output", branch)); err != nil {
		return fmt.Errorf("commit changes: %w", err)
	}
	return nil
}
