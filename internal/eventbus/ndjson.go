package eventbus

import (
	"encoding/json"
	"io"
)

// NDJSONWriter subscribes to a Bus and writes each Frame as one JSON
// object per line to w — the machine-readable progress stream a CLI
// invocation's caller can tail.
type NDJSONWriter struct {
	w    io.Writer
	stop chan struct{}
	done chan struct{}
}

// StartNDJSON subscribes to every frame in a session and streams it to
// w until Stop is called. The bus never closes the subscription, so
// callers should Stop explicitly when the session ends.
func StartNDJSON(bus *Bus, sessionID string, w io.Writer) *NDJSONWriter {
	ch := bus.Subscribe(sessionID, "")
	n := &NDJSONWriter{w: w, stop: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(n.done)
		enc := json.NewEncoder(w)
		for {
			select {
			case f := <-ch:
				_ = enc.Encode(f)
			case <-n.stop:
				return
			}
		}
	}()

	return n
}

// Stop halts the writer goroutine and waits for it to exit.
func (n *NDJSONWriter) Stop() {
	close(n.stop)
	<-n.done
}
