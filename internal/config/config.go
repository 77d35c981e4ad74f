// Package config loads the process-wide configuration for a project
// root: where worktrees live, default budgets, and the registry of
// agent binaries. Loaded once at startup; hot-reload is out of scope.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Budgets holds the default session/task budget caps applied when a
// task graph or session doesn't specify its own.
type Budgets struct {
	SessionUSD float64 `yaml:"session_usd"`
	TaskUSD    float64 `yaml:"task_usd"`
}

// AgentConfig is one entry in the agent binary registry.
type AgentConfig struct {
	Binary       string `yaml:"binary"`
	DefaultModel string `yaml:"default_model"`
}

// Config is the `.substrate/config.yaml` shape.
type Config struct {
	ProjectRoot   string                 `yaml:"project_root"`
	WorktreesDir  string                 `yaml:"worktrees_dir"`
	DefaultBranch string                 `yaml:"default_branch"`
	Budgets       Budgets                `yaml:"budgets"`
	Agents        map[string]AgentConfig `yaml:"agents"`
}

const (
	defaultWorktreesDir  = ".substrate/worktrees"
	defaultBranch        = "main"
)

// Load reads and parses a config file, filling in defaults for
// anything the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = "."
	}
	if cfg.WorktreesDir == "" {
		cfg.WorktreesDir = defaultWorktreesDir
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = defaultBranch
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
}

// AgentBinary looks up the binary path registered for an agent name,
// falling back to the agent name itself when unregistered — the same
// fallback internal/dispatch.New() uses by default.
func (c *Config) AgentBinary(agent string) string {
	if a, ok := c.Agents[agent]; ok && a.Binary != "" {
		return a.Binary
	}
	return agent
}
