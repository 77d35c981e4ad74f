package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig configures the broker a pipeline run embeds
// for its own instrumentation stream.
type EmbeddedServerConfig struct {
	Port int // Port to listen on
}

// EmbeddedServer wraps an in-process NATS server that a single
// pipeline run starts, publishes task/heartbeat frames into, and
// tears down when the run exits — there is no long-lived broker
// shared across runs.
type EmbeddedServer struct {
	server  *server.Server
	config  EmbeddedServerConfig
	mu      sync.RWMutex
	running bool
}

// NewEmbeddedServer prepares an embedded server on config.Port
// (defaulting to 4222 when unset).
func NewEmbeddedServer(config EmbeddedServerConfig) (*EmbeddedServer, error) {
	if config.Port <= 0 {
		config.Port = 4222
	}

	return &EmbeddedServer{config: config}, nil
}

// Start starts the embedded server and blocks until it is ready for
// connections.
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       e.config.Port,
		NoLog:      false,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create embedded broker: %w", err)
	}

	e.server = ns
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("broker not ready for connections")
	}

	e.running = true
	return nil
}

// Shutdown gracefully shuts down the embedded server.
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.server == nil {
		return
	}

	e.server.Shutdown()
	e.server.WaitForShutdown()

	e.running = false
	e.server = nil
}

// URL returns the connection URL workers and the bridge subscriber
// connect to.
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return fmt.Sprintf("nats://127.0.0.1:%d", e.config.Port)
}

// IsRunning reports whether the server is currently accepting
// connections.
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.running
}

// ConnectedWorkers reports how many clients (worker processes plus
// the bridge subscriber) currently hold a connection to this run's
// broker, read straight from the broker's own connection count rather
// than a separately maintained registry.
func (e *EmbeddedServer) ConnectedWorkers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.server == nil {
		return 0
	}
	return int(e.server.NumClients())
}
