package substratelog

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintfTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("dispatch", &buf)
	l.Printf("ran %s in %dms", "task-1", 42)

	out := buf.String()
	if !strings.Contains(out, "[DISPATCH]") {
		t.Fatalf("output %q missing [DISPATCH] prefix", out)
	}
	if !strings.Contains(out, "ran task-1 in 42ms") {
		t.Fatalf("output %q missing formatted message", out)
	}
}

func TestErrorfAddsErrorMarker(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("worktree", &buf)
	l.Errorf("merge failed: %v", "conflict")

	out := buf.String()
	if !strings.Contains(out, "[WORKTREE] ERROR: merge failed: conflict") {
		t.Fatalf("output %q missing expected error format", out)
	}
}

func TestWithNestsComponentTag(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("dispatch", &buf).With("timeout")
	l.Println("killed process")

	out := buf.String()
	if !strings.Contains(out, "[DISPATCH-TIMEOUT]") {
		t.Fatalf("output %q missing nested [DISPATCH-TIMEOUT] prefix", out)
	}
}
