package quotes

import (
	"encoding/json"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
)

// QuotesConfig holds the flavor-text lines for a pipeline run's three
// logged lifecycle moments: start, periodic heartbeat, and end.
type QuotesConfig struct {
	Spawn    []string `json:"spawn"`
	Shutdown []string `json:"shutdown"`
	Hourly   []string `json:"hourly"`
}

// Manager loads QuotesConfig from disk once and serves random lines
// from it for the life of a run.
type Manager struct {
	mu       sync.RWMutex
	config   QuotesConfig
	basePath string
	loaded   bool
}

// Default quotes (fallback if JSON not found) — flavor text for a
// pipeline run's lifecycle log lines, not a status the orchestrator
// decides anything on.
var defaultQuotes = QuotesConfig{
	Spawn: []string{
		"Run started, analysis phase up first.",
		"Methodology pack loaded, dispatching the first agent.",
		"New run, worktree manager on standby.",
		"Phase orchestrator engaged.",
		"Concept received, compiling the analysis prompt.",
	},
	Shutdown: []string{
		"Run complete, decisions and artifacts persisted.",
		"Pipeline finished, handing off to the task graph.",
		"Phases exhausted, signing off this run.",
		"Quality gates cleared, worktrees merged.",
		"Run paused, state recorded for resume.",
	},
	Hourly: []string{
		"Still dispatching, no phase has stalled.",
		"Sub-agents holding their timeouts.",
		"Task graph ticking, no dead letters yet.",
		"Decision store growing, nothing escalated.",
		"Worker pool quiet, waiting on the current phase.",
	},
}

var (
	globalManager *Manager
	once          sync.Once
)

// Init initializes the global quotes manager with the base path
func Init(basePath string) {
	once.Do(func() {
		globalManager = &Manager{
			basePath: basePath,
			config:   defaultQuotes,
		}
		globalManager.Load()
	})
}

// GetManager returns the global quotes manager
func GetManager() *Manager {
	if globalManager == nil {
		// Fallback with defaults only
		globalManager = &Manager{
			config: defaultQuotes,
			loaded: true,
		}
	}
	return globalManager
}

// Load loads quotes from the JSON config file
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	quotesPath := filepath.Join(m.basePath, "configs", "quotes.json")
	data, err := os.ReadFile(quotesPath)
	if err != nil {
		log.Printf("[QUOTES] Using default quotes (config not found: %v)", err)
		m.config = defaultQuotes
		m.loaded = true
		return nil
	}

	var config QuotesConfig
	if err := json.Unmarshal(data, &config); err != nil {
		log.Printf("[QUOTES] Error parsing quotes.json: %v, using defaults", err)
		m.config = defaultQuotes
		m.loaded = true
		return err
	}

	// Validate and merge with defaults if categories are empty
	if len(config.Spawn) == 0 {
		config.Spawn = defaultQuotes.Spawn
	}
	if len(config.Shutdown) == 0 {
		config.Shutdown = defaultQuotes.Shutdown
	}
	if len(config.Hourly) == 0 {
		config.Hourly = defaultQuotes.Hourly
	}

	m.config = config
	m.loaded = true
	log.Printf("[QUOTES] Loaded %d spawn, %d shutdown, %d hourly quotes",
		len(config.Spawn), len(config.Shutdown), len(config.Hourly))
	return nil
}

// Reload reloads quotes from disk (call this to pick up changes)
func (m *Manager) Reload() error {
	return m.Load()
}

// GetSpawnQuote returns a random line logged when a run starts.
func (m *Manager) GetSpawnQuote() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.config.Spawn) == 0 {
		return "Run started."
	}
	return m.config.Spawn[rand.Intn(len(m.config.Spawn))]
}

// GetShutdownQuote returns a random line logged when a run ends.
func (m *Manager) GetShutdownQuote() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.config.Shutdown) == 0 {
		return "Run ended."
	}
	return m.config.Shutdown[rand.Intn(len(m.config.Shutdown))]
}

// GetHourlyQuote returns a random line for a run's periodic heartbeat
// frame payload.
func (m *Manager) GetHourlyQuote() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.config.Hourly) == 0 {
		return "Still running."
	}
	return m.config.Hourly[rand.Intn(len(m.config.Hourly))]
}

// Convenience functions over the global manager, for callers that
// don't hold a *Manager (cmd/substrate's runAuto, mainly).

// SpawnQuote returns a random run-start line from the global manager.
func SpawnQuote() string {
	return GetManager().GetSpawnQuote()
}

// ShutdownQuote returns a random run-end line from the global manager.
func ShutdownQuote() string {
	return GetManager().GetShutdownQuote()
}

// HourlyQuote returns a random heartbeat line from the global manager.
func HourlyQuote() string {
	return GetManager().GetHourlyQuote()
}
