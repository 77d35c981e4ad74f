package gate

// Issue is one gate's complaint, surfaced to the caller for display or
// logging.
type Issue struct {
	Gate     string
	Severity Severity
	Message  string
}

// PipelineResult aggregates a composed run across multiple gates.
type PipelineResult struct {
	Action     Action
	GatesRun   []string
	GatesPassed []string
	Issues     []Issue
}

// Pipeline runs an ordered list of gates against one output, stopping
// at the first gate whose outcome isn't proceed.
type Pipeline struct {
	Gates []*Gate
}

// NewPipeline composes gates in evaluation order.
func NewPipeline(gates ...*Gate) *Pipeline {
	return &Pipeline{Gates: gates}
}

// Run evaluates each gate in order against output, short-circuiting on
// the first non-proceed action.
func (p *Pipeline) Run(output map[string]interface{}) PipelineResult {
	result := PipelineResult{Action: ActionProceed}

	for _, g := range p.Gates {
		result.GatesRun = append(result.GatesRun, g.Name)
		outcome := g.Evaluate(output)

		if outcome.Action == ActionProceed {
			result.GatesPassed = append(result.GatesPassed, g.Name)
			continue
		}

		for _, issue := range outcome.Verdict.Issues {
			result.Issues = append(result.Issues, Issue{
				Gate:     g.Name,
				Severity: outcome.Verdict.Severity,
				Message:  issue,
			})
		}
		result.Action = outcome.Action
		return result
	}

	return result
}
