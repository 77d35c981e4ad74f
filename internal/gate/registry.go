package gate

import "fmt"

// Registry maps gate kind names to evaluator constructors, so pipelines
// can be assembled from a task-graph's declared gate kinds without the
// caller constructing Evaluators by hand.
type Registry struct {
	builders map[string]func() Evaluator
}

// NewRegistry creates a Registry pre-populated with the built-in gate
// kinds: ac-validation, test-coverage, code-review-verdict. The
// schema-compliance kind is parameterized and must be registered by
// the caller via RegisterSchema once the schema is known.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]func() Evaluator)}
	r.Register("ac-validation", ACValidation)
	r.Register("test-coverage", TestCoverage)
	r.Register("code-review-verdict", CodeReviewVerdict)
	return r
}

// Register adds or overwrites a named evaluator constructor, allowing
// custom gate kinds.
func (r *Registry) Register(kind string, build func() Evaluator) {
	r.builders[kind] = build
}

// RegisterSchema registers a schema-compliance gate kind bound to a
// fixed field list.
func (r *Registry) RegisterSchema(kind string, fields []SchemaField) {
	r.Register(kind, func() Evaluator {
		return SchemaCompliance(fields)
	})
}

// Build constructs a new Gate of the named kind with a fresh attempts
// counter.
func (r *Registry) Build(kind, name string, maxRetries int) (*Gate, error) {
	build, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("unregistered gate kind %q", kind)
	}
	return New(name, maxRetries, build()), nil
}
