// Package methodology declares the read-only interface the core
// consumes for phase prompts, constraint rules, and templates. The
// concrete pack (file layout, on-disk manifest format) is out of scope
// for this module; only the interface is specified here, plus a small
// in-memory implementation useful for tests and embedding a default
// pack.
package methodology

// Severity is the strictness of a constraint rule.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// ConstraintRule is one rule returned by GetConstraints.
type ConstraintRule struct {
	RuleID      string
	Severity    Severity
	Description string
}

// Pack is the read-only provider of phase prompts, constraint rules,
// and templates keyed by task type.
type Pack interface {
	GetPhases() []string
	GetPrompt(taskType string) (string, error)
	GetConstraints(phase string) ([]ConstraintRule, error)
	GetTemplate(name string) (string, error)
}

// MemoryPack is a minimal in-memory Pack, used by tests and as a
// built-in default when no external pack is configured.
type MemoryPack struct {
	Phases      []string
	Prompts     map[string]string
	Constraints map[string][]ConstraintRule
	Templates   map[string]string
}

// NewMemoryPack builds an empty MemoryPack ready for population.
func NewMemoryPack() *MemoryPack {
	return &MemoryPack{
		Phases:      []string{"analysis", "planning", "solutioning", "implementation"},
		Prompts:     make(map[string]string),
		Constraints: make(map[string][]ConstraintRule),
		Templates:   make(map[string]string),
	}
}

func (p *MemoryPack) GetPhases() []string { return p.Phases }

func (p *MemoryPack) GetPrompt(taskType string) (string, error) {
	prompt, ok := p.Prompts[taskType]
	if !ok {
		return "", errNotFound("prompt", taskType)
	}
	return prompt, nil
}

func (p *MemoryPack) GetConstraints(phase string) ([]ConstraintRule, error) {
	return p.Constraints[phase], nil
}

func (p *MemoryPack) GetTemplate(name string) (string, error) {
	tmpl, ok := p.Templates[name]
	if !ok {
		return "", errNotFound("template", name)
	}
	return tmpl, nil
}

func errNotFound(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

// NotFoundError reports a missing prompt or template in a Pack.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.Name
}
