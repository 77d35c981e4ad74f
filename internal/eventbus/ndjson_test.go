package eventbus

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNDJSONWriterEmitsOneFramePerLine(t *testing.T) {
	bus := NewBus()
	var buf bytes.Buffer
	w := StartNDJSON(bus, "sess-1", &buf)

	bus.Publish(Frame{Kind: KindTaskStarted, SessionID: "sess-1", TaskID: "t1", CreatedAt: time.Now()})
	bus.Publish(Frame{Kind: KindTaskComplete, SessionID: "sess-1", TaskID: "t1", CreatedAt: time.Now()})

	deadline := time.Now().Add(time.Second)
	for strings.Count(buf.String(), "\n") < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	w.Stop()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d NDJSON lines, want 2: %q", len(lines), buf.String())
	}
	var first Frame
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line not valid JSON: %v", err)
	}
	if first.Kind != KindTaskStarted {
		t.Errorf("first frame kind = %v, want task:started", first.Kind)
	}
}

func TestNDJSONWriterIgnoresOtherSessions(t *testing.T) {
	bus := NewBus()
	var buf bytes.Buffer
	w := StartNDJSON(bus, "sess-1", &buf)
	defer w.Stop()

	bus.Publish(Frame{Kind: KindHeartbeat, SessionID: "sess-2"})
	time.Sleep(20 * time.Millisecond)

	if buf.Len() != 0 {
		t.Fatalf("buf = %q, want empty for a frame from a different session", buf.String())
	}
}
