package phase

import (
	"fmt"
	"strings"
	"time"
)

// maxArtifactsListed bounds how many artifact paths the summary
// prints before collapsing the rest into "...N more".
const maxArtifactsListed = 5

// wordBudget is the spec's <=500 word cap on a Phase Completion
// Summary.
const wordBudget = 500

var nextPhaseDescription = map[Name]string{
	Analysis:       "gathers requirements and constraints from the codebase and prior decisions",
	Planning:       "lays out the approach and sequences the work",
	Solutioning:    "produces the concrete task graph for implementation",
	Implementation: "runs the task graph to completion via the task-execution engine",
}

// CompletionSummary renders the human-readable Phase Completion
// Summary emitted when --stop-after halts a run after a phase's
// success.
type CompletionSummary struct {
	RunID         string
	Phase         Name
	Duration      time.Duration
	DecisionCount int
	Artifacts     []string
	NextPhase     Name // empty if this was the last phase in the sequence
	CLIName       string
}

// Render formats the summary, truncating artifact paths beyond
// maxArtifactsListed and capping overall length to roughly wordBudget
// words.
func (s CompletionSummary) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Phase %q completed in %s.\n", s.Phase, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Decisions recorded: %d\n", s.DecisionCount)

	if len(s.Artifacts) == 0 {
		b.WriteString("Artifacts: none\n")
	} else {
		b.WriteString("Artifacts:\n")
		shown := s.Artifacts
		more := 0
		if len(shown) > maxArtifactsListed {
			more = len(shown) - maxArtifactsListed
			shown = shown[:maxArtifactsListed]
		}
		for _, a := range shown {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
		if more > 0 {
			fmt.Fprintf(&b, "  ...%d more\n", more)
		}
	}

	if s.NextPhase != "" {
		fmt.Fprintf(&b, "Next: %s %s\n", s.NextPhase, nextPhaseDescription[s.NextPhase])
	} else {
		b.WriteString("This was the final phase in the sequence.\n")
	}

	cliName := s.CLIName
	if cliName == "" {
		cliName = "substrate"
	}
	fmt.Fprintf(&b, "Resume with: %s auto resume --run-id %s\n", cliName, s.RunID)

	return capWords(b.String(), wordBudget)
}

func capWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ") + " ...[truncated]"
}
