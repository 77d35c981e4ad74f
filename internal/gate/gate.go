// Package gate implements the quality-gate state machine that decides
// whether a task's output proceeds, is retried, or is merely flagged
// after retries are exhausted.
package gate

import "fmt"

// Action is the outcome of one evaluate() call.
type Action string

const (
	ActionProceed Action = "proceed"
	ActionRetry   Action = "retry"
	ActionWarn    Action = "warn"
)

// Severity classifies an issue surfaced by a failing evaluator.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Verdict is what an Evaluator returns for one output.
type Verdict struct {
	Pass     bool
	Issues   []string
	Severity Severity
}

// Evaluator inspects an agent's parsed output and renders a pass/fail
// verdict. Output is the generic field map a dispatch produces.
type Evaluator func(output map[string]interface{}) Verdict

// Outcome is what evaluate() returns to the caller.
type Outcome struct {
	Action           Action
	RetriesRemaining int
	Verdict          Verdict
}

// Gate is a single named quality check with its own retry budget.
type Gate struct {
	Name       string
	MaxRetries int
	Evaluate_  Evaluator
	attempts   int
}

// New creates a Gate with a zeroed attempt counter.
func New(name string, maxRetries int, evaluator Evaluator) *Gate {
	return &Gate{Name: name, MaxRetries: maxRetries, Evaluate_: evaluator}
}

// Evaluate runs the gate's evaluator against output and advances the
// internal attempts counter per the retry/warn/proceed transition
// table: pass always proceeds; a failure retries while attempts remain
// below maxRetries, and warns once they're exhausted.
func (g *Gate) Evaluate(output map[string]interface{}) Outcome {
	verdict := g.Evaluate_(output)

	if verdict.Pass {
		return Outcome{Action: ActionProceed, RetriesRemaining: g.MaxRetries - g.attempts, Verdict: verdict}
	}

	if g.attempts < g.MaxRetries {
		g.attempts++
		return Outcome{Action: ActionRetry, RetriesRemaining: g.MaxRetries - g.attempts, Verdict: verdict}
	}

	return Outcome{Action: ActionWarn, RetriesRemaining: 0, Verdict: verdict}
}

// Reset zeros the attempts counter, e.g. when a task is requeued fresh
// after a worktree rebuild.
func (g *Gate) Reset() {
	g.attempts = 0
}

// Attempts reports the current retry count, mainly for tests and
// diagnostics.
func (g *Gate) Attempts() int {
	return g.attempts
}

// stringField reads a string field from an output map, returning "" if
// absent or of the wrong type — evaluators treat a missing field the
// same as a mismatched one.
func stringField(output map[string]interface{}, key string) string {
	v, ok := output[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ACValidation checks that the output declares ac_met == "yes".
func ACValidation() Evaluator {
	return func(output map[string]interface{}) Verdict {
		if stringField(output, "ac_met") == "yes" {
			return Verdict{Pass: true}
		}
		return Verdict{
			Pass:     false,
			Severity: SeverityError,
			Issues:   []string{"acceptance criteria not met (ac_met != \"yes\")"},
		}
	}
}

// TestCoverage checks that a nested tests.fail count is zero.
func TestCoverage() Evaluator {
	return func(output map[string]interface{}) Verdict {
		tests, ok := output["tests"].(map[string]interface{})
		if !ok {
			return Verdict{Pass: false, Severity: SeverityError, Issues: []string{"missing tests report"}}
		}
		fail, _ := toInt(tests["fail"])
		if fail == 0 {
			return Verdict{Pass: true}
		}
		return Verdict{
			Pass:     false,
			Severity: SeverityError,
			Issues:   []string{fmt.Sprintf("%d test(s) failing", fail)},
		}
	}
}

// CodeReviewVerdict checks that the reviewer's verdict is SHIP_IT.
func CodeReviewVerdict() Evaluator {
	return func(output map[string]interface{}) Verdict {
		if stringField(output, "verdict") == "SHIP_IT" {
			return Verdict{Pass: true}
		}
		return Verdict{
			Pass:     false,
			Severity: SeverityWarn,
			Issues:   []string{fmt.Sprintf("code review verdict was %q, not SHIP_IT", stringField(output, "verdict"))},
		}
	}
}

// SchemaField describes one field a SchemaCompliance evaluator checks
// for presence (type-checking is the dispatcher's job; this gate
// exists for callers that re-validate after deserializing from the
// decision store).
type SchemaField struct {
	Name     string
	Required bool
}

// SchemaCompliance checks that every required field in fields is
// present in output.
func SchemaCompliance(fields []SchemaField) Evaluator {
	return func(output map[string]interface{}) Verdict {
		var missing []string
		for _, f := range fields {
			if !f.Required {
				continue
			}
			if _, ok := output[f.Name]; !ok {
				missing = append(missing, f.Name)
			}
		}
		if len(missing) == 0 {
			return Verdict{Pass: true}
		}
		return Verdict{
			Pass:     false,
			Severity: SeverityError,
			Issues:   []string{fmt.Sprintf("missing required fields: %v", missing)},
		}
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
