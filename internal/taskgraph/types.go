// Package taskgraph parses, validates, and executes task-dependency
// graphs: the artifact the solutioning phase hands to the
// implementation phase.
package taskgraph

// TaskDef is one task's declaration as read from a graph file.
type TaskDef struct {
	Name       string   `yaml:"name" json:"name"`
	Prompt     string   `yaml:"prompt" json:"prompt"`
	Type       string   `yaml:"type,omitempty" json:"type,omitempty"`
	DependsOn  []string `yaml:"depends_on" json:"depends_on"`
	BudgetUSD  float64  `yaml:"budget_usd,omitempty" json:"budget_usd,omitempty"`
	Agent      string   `yaml:"agent,omitempty" json:"agent,omitempty"`
	Model      string   `yaml:"model,omitempty" json:"model,omitempty"`
	TimeoutMs  int      `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	MaxRetries int      `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// SessionDef is the graph file's session metadata block.
type SessionDef struct {
	Name      string  `yaml:"name" json:"name"`
	BudgetUSD float64 `yaml:"budget_usd,omitempty" json:"budget_usd,omitempty"`
}

// GraphFile is the top-level shape of a task graph document.
type GraphFile struct {
	Version int                `yaml:"version" json:"version"`
	Session SessionDef         `yaml:"session" json:"session"`
	Tasks   map[string]TaskDef `yaml:"tasks" json:"tasks"`
}

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusBlocked   Status = "blocked"
)

// satisfiesDependents reports whether s no longer participates in
// dependency waits.
func (s Status) satisfiesDependents() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// TaskState is one task's live execution state, layered on top of its
// static TaskDef.
type TaskState struct {
	ID         string
	Def        TaskDef
	Status     Status
	RetryCount int
	WorkerID   string
	Error      string
	CostUSD    float64
}
