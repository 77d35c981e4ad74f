// Package phase implements the pipeline's phase sequence state
// machine: analysis, planning, solutioning, implementation.
package phase

import (
	"fmt"
	"time"
)

// Name identifies one phase in the fixed sequence.
type Name string

const (
	Analysis       Name = "analysis"
	Planning       Name = "planning"
	Solutioning    Name = "solutioning"
	Implementation Name = "implementation"
)

// Sequence is the fixed phase order the orchestrator walks.
var Sequence = []Name{Analysis, Planning, Solutioning, Implementation}

func indexOf(n Name) int {
	for i, s := range Sequence {
		if s == n {
			return i
		}
	}
	return -1
}

// Result is one phase implementation's outcome.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
)

// PhaseOutput is what a phase implementation returns.
type PhaseOutput struct {
	Result        Result
	TokenInput    int
	TokenOutput   int
	Extra         map[string]interface{}
	DecisionCount int
	Artifacts     []string
}

// Implementation runs one phase given whatever phase-specific params
// the caller assembled (prompt context, prior decisions, etc).
type Implementation func(n Name, params map[string]interface{}) (PhaseOutput, error)

// Options controls one orchestrator run's start/stop bounds.
type Options struct {
	From      Name // zero value means "from the sequence start"
	StopAfter Name // zero value means "run to the end"
}

// Validate checks that StopAfter doesn't precede From in phase order.
func (o Options) Validate() error {
	from := o.From
	if from == "" {
		from = Sequence[0]
	}
	if o.StopAfter == "" {
		return nil
	}
	fromIdx, stopIdx := indexOf(from), indexOf(o.StopAfter)
	if fromIdx == -1 {
		return fmt.Errorf("unknown from-phase %q", o.From)
	}
	if stopIdx == -1 {
		return fmt.Errorf("unknown stop-after phase %q", o.StopAfter)
	}
	if stopIdx < fromIdx {
		return fmt.Errorf("stop-after phase %q comes before from phase %q", o.StopAfter, from)
	}
	return nil
}

// PhasesToRun returns the ordered slice of phases this run will
// execute under Options, inclusive of From and StopAfter.
func (o Options) PhasesToRun() ([]Name, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	from := o.From
	if from == "" {
		from = Sequence[0]
	}
	stop := o.StopAfter
	if stop == "" {
		stop = Sequence[len(Sequence)-1]
	}
	fromIdx, stopIdx := indexOf(from), indexOf(stop)
	return Sequence[fromIdx : stopIdx+1], nil
}

// RunRecord is one completed phase's bookkeeping for the final
// completion summary.
type RunRecord struct {
	Phase         Name
	Duration      time.Duration
	DecisionCount int
	Artifacts     []string
}

// Orchestrator drives a run's phases in sequence via an injected
// Implementation, persisting nothing itself — callers persist
// decisions/artifacts before emitting events, per the phase's own
// Implementation.
type Orchestrator struct {
	RunID   string
	CLIName string
	Impl    Implementation
	History []RunRecord

	now func() time.Time // overridable for tests
}

// New creates an Orchestrator for one pipeline run.
func New(runID string, impl Implementation) *Orchestrator {
	return &Orchestrator{RunID: runID, Impl: impl, now: time.Now}
}

// RunOutcome is the terminal state of one orchestrator invocation.
type RunOutcome struct {
	CompletedPhases []Name
	StoppedAfter    Name
	Failed          bool
	FailedPhase     Name
	FailureErr      error
}

// Run executes phases in PhasesToRun() order, stopping immediately on
// the first failed phase.
func (o *Orchestrator) Run(opts Options, paramsFor func(n Name) map[string]interface{}) (RunOutcome, error) {
	phases, err := opts.PhasesToRun()
	if err != nil {
		return RunOutcome{}, err
	}
	if o.now == nil {
		o.now = time.Now
	}

	outcome := RunOutcome{}
	for _, p := range phases {
		var params map[string]interface{}
		if paramsFor != nil {
			params = paramsFor(p)
		}

		start := o.now()
		output, err := o.Impl(p, params)
		elapsed := o.now().Sub(start)

		if err != nil {
			outcome.Failed = true
			outcome.FailedPhase = p
			outcome.FailureErr = err
			return outcome, nil
		}
		if output.Result != ResultSuccess {
			outcome.Failed = true
			outcome.FailedPhase = p
			return outcome, nil
		}

		o.History = append(o.History, RunRecord{
			Phase: p, Duration: elapsed,
			DecisionCount: output.DecisionCount, Artifacts: output.Artifacts,
		})
		outcome.CompletedPhases = append(outcome.CompletedPhases, p)
		outcome.StoppedAfter = p
	}

	return outcome, nil
}

// Summary builds the Phase Completion Summary for the last phase this
// orchestrator ran, suitable for emission when --stop-after halts the
// run. Returns false if nothing has run yet.
func (o *Orchestrator) Summary() (CompletionSummary, bool) {
	if len(o.History) == 0 {
		return CompletionSummary{}, false
	}
	last := o.History[len(o.History)-1]

	var next Name
	if idx := indexOf(last.Phase); idx >= 0 && idx+1 < len(Sequence) {
		next = Sequence[idx+1]
	}

	return CompletionSummary{
		RunID:         o.RunID,
		Phase:         last.Phase,
		Duration:      last.Duration,
		DecisionCount: last.DecisionCount,
		Artifacts:     last.Artifacts,
		NextPhase:     next,
		CLIName:       o.CLIName,
	}, true
}
