package eventbus

import (
	"testing"
	"time"
)

func TestBridgeForwardsPublishedFramesOntoBus(t *testing.T) {
	bus := NewBus()
	bridge, err := NewBridge(14310, bus)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	defer bridge.Shutdown()

	pub, err := NewPublisher(bridge.URL())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	defer pub.Close()

	ch := bus.Subscribe("sess-1", "")

	if err := pub.Publish(Frame{Kind: KindTaskStarted, SessionID: "sess-1", TaskID: "t1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case f := <-ch:
		if f.Kind != KindTaskStarted || f.TaskID != "t1" {
			t.Fatalf("received frame = %+v, want task:started for t1", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not forward the published frame within 2s")
	}
}
