package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/johnplanow/substrate/internal/nats"
	"github.com/johnplanow/substrate/internal/substratelog"
)

// Publisher is the subset of *nats.Client workers need to emit
// instrumentation frames; workers run in separate processes so they
// connect over the embedded server's URL rather than sharing a Bus.
type Publisher struct {
	client *nats.Client
}

// NewPublisher connects to the embedded NATS server at url.
func NewPublisher(url string) (*Publisher, error) {
	client, err := nats.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("connect event publisher: %w", err)
	}
	return &Publisher{client: client}, nil
}

// Publish sends a Frame on its session/task subject.
func (p *Publisher) Publish(f Frame) error {
	return p.client.PublishJSON(Subject(f.SessionID, f.TaskID), f)
}

// Close closes the underlying NATS connection.
func (p *Publisher) Close() {
	p.client.Close()
}

// Bridge runs the embedded NATS server and a wildcard subscriber that
// re-publishes every substrate.* frame onto an in-process Bus, which
// then drives NDJSON emission.
type Bridge struct {
	server *nats.EmbeddedServer
	client *nats.Client
	bus    *Bus
	log    *substratelog.Logger
}

// NewBridge starts the embedded NATS server on port and subscribes to
// every substrate.> subject, forwarding decoded Frames onto bus.
func NewBridge(port int, bus *Bus) (*Bridge, error) {
	server, err := nats.NewEmbeddedServer(nats.EmbeddedServerConfig{Port: port})
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start embedded nats server: %w", err)
	}

	client, err := nats.NewClient(server.URL())
	if err != nil {
		server.Shutdown()
		return nil, fmt.Errorf("connect bridge subscriber: %w", err)
	}

	b := &Bridge{server: server, client: client, bus: bus, log: substratelog.New("eventbus-bridge")}

	if _, err := client.Subscribe(nats.SubjectAllEvents, b.onMessage); err != nil {
		client.Close()
		server.Shutdown()
		return nil, fmt.Errorf("subscribe %s: %w", nats.SubjectAllEvents, err)
	}

	return b, nil
}

func (b *Bridge) onMessage(msg *nats.Message) {
	var f Frame
	if err := json.Unmarshal(msg.Data, &f); err != nil {
		b.log.Errorf("decode frame on %s: %v", msg.Subject, err)
		return
	}
	b.bus.Publish(f)
}

// URL returns the embedded server's connection URL, for workers to
// publish against.
func (b *Bridge) URL() string { return b.server.URL() }

// Shutdown closes the bridge subscriber and the embedded server.
func (b *Bridge) Shutdown() {
	b.client.Close()
	b.server.Shutdown()
}
