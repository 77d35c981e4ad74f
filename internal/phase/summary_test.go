package phase

import (
	"strings"
	"testing"
	"time"
)

func TestCompletionSummaryRenderIncludesResumeCommand(t *testing.T) {
	s := CompletionSummary{
		RunID: "run-42", Phase: Planning, Duration: 3500 * time.Millisecond,
		DecisionCount: 4, Artifacts: []string{"plan.md"}, NextPhase: Solutioning,
	}
	out := s.Render()

	if !strings.Contains(out, "substrate auto resume --run-id run-42") {
		t.Fatalf("Render() = %q, missing literal resume command", out)
	}
	if !strings.Contains(out, "Decisions recorded: 4") {
		t.Fatalf("Render() = %q, missing decision count", out)
	}
	if !strings.Contains(out, "plan.md") {
		t.Fatalf("Render() = %q, missing artifact path", out)
	}
}

func TestCompletionSummaryUsesCustomCLIName(t *testing.T) {
	s := CompletionSummary{RunID: "run-1", Phase: Analysis, CLIName: "substrate-ctl"}
	out := s.Render()
	if !strings.Contains(out, "substrate-ctl auto resume --run-id run-1") {
		t.Fatalf("Render() = %q, want custom CLI name in resume command", out)
	}
}

func TestCompletionSummaryTruncatesArtifactList(t *testing.T) {
	artifacts := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		artifacts = append(artifacts, "artifact.md")
	}
	s := CompletionSummary{RunID: "run-1", Phase: Solutioning, Artifacts: artifacts}
	out := s.Render()
	if !strings.Contains(out, "...3 more") {
		t.Fatalf("Render() = %q, want '...3 more' for 8 artifacts capped at %d", out, maxArtifactsListed)
	}
}

func TestCompletionSummaryNoNextPhaseMessage(t *testing.T) {
	s := CompletionSummary{RunID: "run-1", Phase: Implementation}
	out := s.Render()
	if !strings.Contains(out, "final phase") {
		t.Fatalf("Render() = %q, want a final-phase message when NextPhase is empty", out)
	}
}

func TestCompletionSummaryStaysUnderWordBudget(t *testing.T) {
	artifacts := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		artifacts = append(artifacts, "some/long/path/to/an/artifact/file/number.md")
	}
	s := CompletionSummary{RunID: "run-1", Phase: Planning, Artifacts: artifacts, NextPhase: Solutioning}
	out := s.Render()
	if words := len(strings.Fields(out)); words > wordBudget+10 {
		t.Fatalf("Render() produced %d words, want roughly <= %d", words, wordBudget)
	}
}
