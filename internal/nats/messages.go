package nats

// Message represents a NATS message with subject, reply, and data.
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Subject patterns for the pipeline instrumentation frames published
// on the embedded broker. A run's worker processes publish on the
// task and heartbeat subjects for their session; the in-process
// bridge subscribes to SubjectAllEvents and fans every frame back out
// onto eventbus.Bus.
//
// Use fmt.Sprintf(SubjectTaskEvent, sessionID, taskID) /
// fmt.Sprintf(SubjectHeartbeat, sessionID) to build a concrete
// subject for one run.
const (
	// SubjectTaskEvent carries a task's started/complete frames for
	// one pipeline run.
	SubjectTaskEvent = "substrate.%s.task.%s"

	// SubjectHeartbeat carries a run's periodic heartbeat frame.
	SubjectHeartbeat = "substrate.%s.heartbeat"

	// SubjectAllEvents is the wildcard the bridge subscriber uses to
	// catch every frame a run publishes, regardless of subject.
	SubjectAllEvents = "substrate.>"
)
