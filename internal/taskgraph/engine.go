package taskgraph

import (
	"sort"
	"sync"
)

// RunOutcome is what a Runner reports for one dispatched task.
type RunOutcome struct {
	Success bool
	CostUSD float64
	Error   string
}

// Runner executes one task to completion. Production wiring dispatches
// through internal/workerpool and internal/dispatch; tests substitute
// a fake.
type Runner interface {
	Run(taskID string, def TaskDef) RunOutcome
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(taskID string, def TaskDef) RunOutcome

// Run implements Runner.
func (f RunnerFunc) Run(taskID string, def TaskDef) RunOutcome { return f(taskID, def) }

// Engine walks a validated graph in topological waves, bounded by a
// worker-pool-sized concurrency limit, enforcing a session budget cap.
type Engine struct {
	Tasks          map[string]*TaskState
	BudgetUSD      float64
	SpentUSD       float64
	MaxConcurrency int
	Deterministic  bool

	paused    bool
	cancelled bool
	budgetHit bool
}

// NewEngine builds an Engine's live task states from a validated
// GraphFile.
func NewEngine(gf *GraphFile, maxConcurrency int) *Engine {
	tasks := make(map[string]*TaskState, len(gf.Tasks))
	for id, def := range gf.Tasks {
		tasks[id] = &TaskState{ID: id, Def: def, Status: StatusPending}
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Engine{Tasks: tasks, BudgetUSD: gf.Session.BudgetUSD, MaxConcurrency: maxConcurrency}
}

// Pause marks the engine to stop dispatching new work on the next
// tick; in-flight tasks still complete.
func (e *Engine) Pause()  { e.paused = true }
func (e *Engine) Resume() { e.paused = false }
func (e *Engine) Cancel() { e.cancelled = true }

// Finished reports whether every task has reached a terminal status.
func (e *Engine) Finished() bool {
	for _, t := range e.Tasks {
		switch t.Status {
		case StatusCompleted, StatusFailed, StatusCancelled, StatusBlocked:
		default:
			return false
		}
	}
	return true
}

// ReadySet returns the ids of pending tasks whose dependencies have
// all reached a dependency-satisfying status (completed or
// cancelled). Tie-break order: fewer remaining dependents first, then
// lexicographic id — unless Deterministic is set, in which case the
// set is sorted by id only.
func (e *Engine) ReadySet() []string {
	var ready []string
	for id, t := range e.Tasks {
		if t.Status != StatusPending {
			continue
		}
		satisfied := true
		for _, dep := range t.Def.DependsOn {
			if dt, ok := e.Tasks[dep]; !ok || !dt.Status.satisfiesDependents() {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}

	if e.Deterministic {
		sort.Strings(ready)
		return ready
	}

	remainingDependents := e.remainingDependentCounts()
	sort.Slice(ready, func(i, j int) bool {
		di, dj := remainingDependents[ready[i]], remainingDependents[ready[j]]
		if di != dj {
			return di < dj
		}
		return ready[i] < ready[j]
	})
	return ready
}

func (e *Engine) remainingDependentCounts() map[string]int {
	counts := make(map[string]int, len(e.Tasks))
	for _, t := range e.Tasks {
		if t.Status == StatusCompleted || t.Status == StatusCancelled || t.Status == StatusFailed {
			continue
		}
		for _, dep := range t.Def.DependsOn {
			counts[dep]++
		}
	}
	return counts
}

// TickResult reports what one Tick accomplished.
type TickResult struct {
	Dispatched    []string
	Completed     []string
	Retried       []string
	Failed        []string
	BudgetExceeded bool
	Finished      bool
}

// Tick drains the ready set into available slots (bounded by
// MaxConcurrency), runs each dispatched task to completion via runner,
// and applies the retry/budget rules. Tick is synchronous: it blocks
// until every task dispatched this wave has finished, matching the
// spec's "await any worker completion" step collapsed over one batch
// at a time for a deterministic, testable unit of progress.
func (e *Engine) Tick(runner Runner) TickResult {
	result := TickResult{}

	if e.paused || e.cancelled {
		result.Finished = e.Finished()
		return result
	}

	availableSlots := e.MaxConcurrency - e.runningCount()
	ready := e.ReadySet()
	if availableSlots > len(ready) {
		availableSlots = len(ready)
	}
	dispatch := ready[:availableSlots]

	if len(dispatch) == 0 {
		result.Finished = e.Finished()
		return result
	}

	if e.BudgetUSD > 0 && e.SpentUSD >= e.BudgetUSD {
		e.budgetHit = true
		result.BudgetExceeded = true
		result.Finished = e.Finished()
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range dispatch {
		e.Tasks[id].Status = StatusRunning
		e.Tasks[id].WorkerID = "worker-" + id
		result.Dispatched = append(result.Dispatched, id)

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			outcome := runner.Run(id, e.Tasks[id].Def)

			mu.Lock()
			defer mu.Unlock()
			t := e.Tasks[id]
			t.WorkerID = ""
			if outcome.Success {
				t.Status = StatusCompleted
				t.CostUSD = outcome.CostUSD
				e.SpentUSD += outcome.CostUSD
				result.Completed = append(result.Completed, id)
				return
			}

			t.Error = outcome.Error
			maxRetries := t.Def.MaxRetries
			if t.RetryCount < maxRetries {
				t.RetryCount++
				t.Status = StatusPending
				result.Retried = append(result.Retried, id)
				return
			}
			t.Status = StatusFailed
			result.Failed = append(result.Failed, id)
		}(id)
	}
	wg.Wait()

	if e.BudgetUSD > 0 && e.SpentUSD >= e.BudgetUSD {
		e.budgetHit = true
		result.BudgetExceeded = true
	}
	result.Finished = e.Finished()
	return result
}

func (e *Engine) runningCount() int {
	count := 0
	for _, t := range e.Tasks {
		if t.Status == StatusRunning {
			count++
		}
	}
	return count
}

// Run drives Tick to completion (or until paused/cancelled/budget
// exceeded), returning the sequence of TickResults.
func (e *Engine) Run(runner Runner) []TickResult {
	var history []TickResult
	for {
		tr := e.Tick(runner)
		history = append(history, tr)
		if tr.Finished || tr.BudgetExceeded || e.paused || e.cancelled {
			break
		}
		if len(tr.Dispatched) == 0 {
			break
		}
	}
	return history
}
