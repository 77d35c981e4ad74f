package phase

import (
	"fmt"
	"strings"
	"time"

	"github.com/johnplanow/substrate/internal/decisions"
)

const amendmentFrameHeader = "=== AMENDMENT CONTEXT ===\n" +
	"This is an amendment run. The following decisions were established in the parent run...\n"
const amendmentFrameFooter = "=== END AMENDMENT CONTEXT ==="

// Supersession is one entry in a run's in-memory supersession log.
// Persistence (decisions.Store.SupersedeDecision) is performed by the
// caller, not recorded here — this log is purely a per-run audit
// trail of what was superseded and why.
type Supersession struct {
	OriginalDecisionID   string
	SupersedingDecisionID string
	Phase                 string
	Key                   string
	Reason                string
	LoggedAt              time.Time
}

// AmendmentHandler formats a parent run's prior decisions into the
// fixed framing block injected into each phase's prompt, and
// accumulates the supersession log for the amendment run in progress.
type AmendmentHandler struct {
	ParentRunID string
	Concept     string
	Phases      []Name // optional phase filter; empty means all phases

	store *decisions.Store
	log   []Supersession
}

// NewAmendmentHandler builds a handler loading from store. concept may
// be empty when no specific concept narrows the amendment.
func NewAmendmentHandler(store *decisions.Store, parentRunID, concept string, phases []Name) *AmendmentHandler {
	return &AmendmentHandler{ParentRunID: parentRunID, Concept: concept, Phases: phases, store: store}
}

func (h *AmendmentHandler) phaseAllowed(p string) bool {
	if len(h.Phases) == 0 {
		return true
	}
	for _, allowed := range h.Phases {
		if string(allowed) == p {
			return true
		}
	}
	return false
}

// BuildFrame loads the parent run's non-superseded decisions, filters
// them to the configured phase set, and renders the fixed framing
// block. Returns ("", false) if there is nothing to show (no matching
// decisions and no concept).
func (h *AmendmentHandler) BuildFrame() (string, bool, error) {
	all, err := h.store.LoadParentRunDecisions(h.ParentRunID)
	if err != nil {
		return "", false, fmt.Errorf("load parent run decisions: %w", err)
	}

	byPhase := map[string][]*decisions.Decision{}
	var order []string
	for _, d := range all {
		if !h.phaseAllowed(d.Phase) {
			continue
		}
		if _, seen := byPhase[d.Phase]; !seen {
			order = append(order, d.Phase)
		}
		byPhase[d.Phase] = append(byPhase[d.Phase], d)
	}

	if len(order) == 0 && h.Concept == "" {
		return "", false, nil
	}

	var b strings.Builder
	b.WriteString(amendmentFrameHeader)
	for _, phaseName := range order {
		fmt.Fprintf(&b, "[Phase: %s]\n", phaseName)
		for _, d := range byPhase[phaseName] {
			fmt.Fprintf(&b, "  - %s/%s: %s\n", d.Category, d.Key, d.Value)
			if d.Rationale != "" {
				fmt.Fprintf(&b, "    Rationale: %s\n", d.Rationale)
			}
		}
	}
	if h.Concept != "" {
		fmt.Fprintf(&b, "Concept being explored: %s\n", h.Concept)
	}
	b.WriteString(amendmentFrameFooter)

	return b.String(), true, nil
}

// InjectInto fits the amendment frame into a prompt that already has
// other content and a fixed token/char budget. If the frame doesn't
// fit whole, it's truncated with a "[TRUNCATED]" marker; if there is
// no room at all (budget smaller than even the header+footer), it's
// dropped entirely so the phase's own prompt doesn't fail as
// too-long.
func InjectInto(prompt, frame string, promptBudgetChars int) string {
	if frame == "" {
		return prompt
	}

	const separator = "\n"
	available := promptBudgetChars - len(prompt) - len(separator)
	if available <= 0 {
		return prompt
	}

	if len(frame) <= available {
		return prompt + separator + frame
	}

	const marker = "\n[TRUNCATED]\n" + amendmentFrameFooter
	minViable := len(amendmentFrameHeader) + len(marker)
	if available < minViable {
		return prompt // no room even for the header — drop entirely
	}

	cut := available - len(marker)
	return prompt + separator + frame[:cut] + marker
}

// LogSupersession appends to the in-memory supersession log.
// Persistence of the underlying decision rows is the caller's job via
// decisions.Store.SupersedeDecision.
func (h *AmendmentHandler) LogSupersession(s Supersession) {
	h.log = append(h.log, s)
}

// SupersessionLog returns the accumulated supersession entries for
// this run, in the order they were logged.
func (h *AmendmentHandler) SupersessionLog() []Supersession {
	return h.log
}
