// Package eventbus fans out pipeline instrumentation frames to (a) an
// NDJSON stdout writer and (b) an embedded NATS subject, in-process.
// This is additive instrumentation only — the DB-backed signal bus
// (internal/signal) remains the sole control-plane channel.
package eventbus

import (
	"fmt"
	"time"

	"github.com/johnplanow/substrate/internal/nats"
)

// Kind tags a Frame's variant.
type Kind string

const (
	KindTaskStarted  Kind = "task:started"
	KindTaskComplete Kind = "task:complete"
	KindHeartbeat    Kind = "heartbeat"
)

// Frame is the tagged-variant instrumentation message published by
// workers and consumed by the NDJSON writer.
type Frame struct {
	Kind      Kind                   `json:"kind"`
	SessionID string                 `json:"session_id"`
	TaskID    string                 `json:"task_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Subject is the NATS subject a Frame publishes on.
func Subject(sessionID, taskID string) string {
	if taskID == "" {
		return fmt.Sprintf(nats.SubjectHeartbeat, sessionID)
	}
	return fmt.Sprintf(nats.SubjectTaskEvent, sessionID, taskID)
}
