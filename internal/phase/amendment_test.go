package phase

import (
	"strings"
	"testing"

	"github.com/johnplanow/substrate/internal/decisions"
	"github.com/johnplanow/substrate/internal/store"
)

func setupDecisionsStore(t *testing.T) *decisions.Store {
	t.Helper()
	s, err := store.Open(":memory:", store.Migrations())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return decisions.New(s)
}

func seedParentDecision(t *testing.T, ds *decisions.Store, id, runID, phase, category, key, value, rationale string) {
	t.Helper()
	if err := ds.CreateDecision(&decisions.Decision{
		ID: id, PipelineRunID: runID, Phase: phase, Category: category, Key: key, Value: value, Rationale: rationale,
	}); err != nil {
		t.Fatalf("CreateDecision: %v", err)
	}
}

func TestBuildFrameRendersFixedFramingBlock(t *testing.T) {
	ds := setupDecisionsStore(t)
	seedParentDecision(t, ds, "d1", "parent-run", "planning", "architecture", "storage", "sqlite", "simplicity")

	h := NewAmendmentHandler(ds, "parent-run", "", nil)
	frame, ok, err := h.BuildFrame()
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	if !ok {
		t.Fatal("BuildFrame() ok = false, want true when the parent has decisions")
	}

	for _, want := range []string{
		"=== AMENDMENT CONTEXT ===",
		"This is an amendment run.",
		"[Phase: planning]",
		"- architecture/storage: sqlite",
		"Rationale: simplicity",
		"=== END AMENDMENT CONTEXT ===",
	} {
		if !strings.Contains(frame, want) {
			t.Errorf("frame missing %q:\n%s", want, frame)
		}
	}
}

func TestBuildFrameIncludesConcept(t *testing.T) {
	ds := setupDecisionsStore(t)
	seedParentDecision(t, ds, "d1", "parent-run", "planning", "cat", "k", "v", "")

	h := NewAmendmentHandler(ds, "parent-run", "switch to postgres", nil)
	frame, ok, err := h.BuildFrame()
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	if !ok {
		t.Fatal("BuildFrame() ok = false, want true")
	}
	if !strings.Contains(frame, "Concept being explored: switch to postgres") {
		t.Fatalf("frame missing concept line:\n%s", frame)
	}
}

func TestBuildFrameFiltersByPhase(t *testing.T) {
	ds := setupDecisionsStore(t)
	seedParentDecision(t, ds, "d1", "parent-run", "planning", "cat", "k1", "v1", "")
	seedParentDecision(t, ds, "d2", "parent-run", "solutioning", "cat", "k2", "v2", "")

	h := NewAmendmentHandler(ds, "parent-run", "", []Name{Planning})
	frame, ok, err := h.BuildFrame()
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	if !ok {
		t.Fatal("BuildFrame() ok = false, want true")
	}
	if !strings.Contains(frame, "k1") || strings.Contains(frame, "k2") {
		t.Fatalf("frame = %q, want only the planning-phase decision", frame)
	}
}

func TestBuildFrameSkipsSupersededDecisions(t *testing.T) {
	ds := setupDecisionsStore(t)
	seedParentDecision(t, ds, "d1", "parent-run", "planning", "cat", "k1", "old", "")
	seedParentDecision(t, ds, "d2", "parent-run", "planning", "cat", "k1", "new", "")
	if err := ds.SupersedeDecision("d1", "d2"); err != nil {
		t.Fatalf("SupersedeDecision: %v", err)
	}

	h := NewAmendmentHandler(ds, "parent-run", "", nil)
	frame, _, err := h.BuildFrame()
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	if strings.Contains(frame, "old") || !strings.Contains(frame, "new") {
		t.Fatalf("frame = %q, want only the superseding decision's value", frame)
	}
}

func TestBuildFrameNoDecisionsNoConceptReturnsFalse(t *testing.T) {
	ds := setupDecisionsStore(t)
	h := NewAmendmentHandler(ds, "parent-run", "", nil)
	_, ok, err := h.BuildFrame()
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	if ok {
		t.Fatal("BuildFrame() ok = true, want false when there's nothing to inject")
	}
}

func TestInjectIntoFitsWithinBudget(t *testing.T) {
	prompt := "do the thing"
	frame := "=== AMENDMENT CONTEXT ===\nstuff\n=== END AMENDMENT CONTEXT ==="
	out := InjectInto(prompt, frame, len(prompt)+len(frame)+10)
	if !strings.Contains(out, frame) {
		t.Fatalf("InjectInto() = %q, want the full frame injected", out)
	}
}

func TestInjectIntoTruncatesWhenOverBudget(t *testing.T) {
	prompt := "do the thing"
	frame := "=== AMENDMENT CONTEXT ===\n" + strings.Repeat("decision line\n", 50) + "=== END AMENDMENT CONTEXT ==="
	budget := len(prompt) + 200 // enough room for header+marker, not the whole frame
	out := InjectInto(prompt, frame, budget)
	if !strings.Contains(out, "[TRUNCATED]") {
		t.Fatalf("InjectInto() = %q, want a [TRUNCATED] marker", out)
	}
	if len(out) > budget {
		t.Fatalf("InjectInto() produced %d chars, want <= budget %d", len(out), budget)
	}
}

func TestInjectIntoDropsWhenNoRoom(t *testing.T) {
	prompt := strings.Repeat("x", 100)
	frame := "=== AMENDMENT CONTEXT ===\nstuff\n=== END AMENDMENT CONTEXT ==="
	out := InjectInto(prompt, frame, 101) // almost no room beyond the prompt itself
	if out != prompt {
		t.Fatalf("InjectInto() = %q, want the prompt unchanged when there's no room", out)
	}
}

func TestInjectIntoEmptyFrameIsNoOp(t *testing.T) {
	prompt := "do the thing"
	if out := InjectInto(prompt, "", 1000); out != prompt {
		t.Fatalf("InjectInto() = %q, want prompt unchanged for an empty frame", out)
	}
}

func TestLogSupersessionAccumulates(t *testing.T) {
	ds := setupDecisionsStore(t)
	h := NewAmendmentHandler(ds, "parent-run", "", nil)

	h.LogSupersession(Supersession{OriginalDecisionID: "d1", SupersedingDecisionID: "d2", Phase: "planning", Key: "storage", Reason: "amendment"})
	log := h.SupersessionLog()
	if len(log) != 1 || log[0].OriginalDecisionID != "d1" {
		t.Fatalf("SupersessionLog() = %+v, want one entry for d1->d2", log)
	}
}
