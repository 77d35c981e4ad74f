package taskgraph

import (
	"fmt"
	"sort"
)

// IncompatibleFormatError is returned when a graph file declares a
// version outside the supported set.
type IncompatibleFormatError struct {
	Version   int
	Supported []int
}

func (e *IncompatibleFormatError) Error() string {
	return fmt.Sprintf("graph version %d is not in the supported set %v", e.Version, e.Supported)
}

// CycleError is returned when the dependency graph contains a cycle;
// Path is the cycle DetectCycle found, e.g. [a b a].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Path)
}

// DanglingReferenceError is returned when a task depends on an id that
// doesn't exist in the graph.
type DanglingReferenceError struct {
	TaskID    string
	MissingID string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("task %q depends on undefined task %q", e.TaskID, e.MissingID)
}

// ValidationResult carries non-fatal warnings alongside a successful
// validation (e.g. unknown agent names).
type ValidationResult struct {
	Warnings []string
}

// Validate runs the fail-closed validation pipeline in spec order:
// version check, structural checks, cycle detection, dangling
// references, then an optional agent-availability check that only
// warns. knownAgents may be nil to skip that check.
func Validate(gf *GraphFile, supportedVersions []int, knownAgents map[string]bool) (*ValidationResult, error) {
	if err := checkVersion(gf.Version, supportedVersions); err != nil {
		return nil, err
	}
	if err := checkStructure(gf); err != nil {
		return nil, err
	}
	if cyclePath, ok := DetectCycle(gf.Tasks); ok {
		return nil, &CycleError{Path: cyclePath}
	}
	if err := checkDanglingReferences(gf.Tasks); err != nil {
		return nil, err
	}

	result := &ValidationResult{}
	if knownAgents != nil {
		result.Warnings = checkAgentAvailability(gf.Tasks, knownAgents)
	}
	return result, nil
}

func checkVersion(version int, supported []int) error {
	for _, v := range supported {
		if v == version {
			return nil
		}
	}
	return &IncompatibleFormatError{Version: version, Supported: supported}
}

func checkStructure(gf *GraphFile) error {
	if len(gf.Tasks) == 0 {
		return fmt.Errorf("graph declares no tasks")
	}
	for id, t := range gf.Tasks {
		if t.Name == "" {
			return fmt.Errorf("task %q: missing name", id)
		}
		if t.Prompt == "" {
			return fmt.Errorf("task %q: missing prompt", id)
		}
	}
	return nil
}

func checkDanglingReferences(tasks map[string]TaskDef) error {
	for id, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := tasks[dep]; !ok {
				return &DanglingReferenceError{TaskID: id, MissingID: dep}
			}
		}
	}
	return nil
}

func checkAgentAvailability(tasks map[string]TaskDef, knownAgents map[string]bool) []string {
	var warnings []string
	ids := sortedKeys(tasks)
	for _, id := range ids {
		t := tasks[id]
		if t.Agent == "" {
			continue
		}
		if !knownAgents[t.Agent] {
			warnings = append(warnings, fmt.Sprintf("task %q references unregistered agent %q", id, t.Agent))
		}
	}
	return warnings
}

// DetectCycle runs a depth-first search with an explicit recursion
// stack over the depends_on edges and returns the cycle closed by the
// first back edge it meets, as a closed path, e.g. [a b a]. That cycle
// is not necessarily the shortest one in the graph. Traversal order is
// by sorted task id for determinism.
func DetectCycle(tasks map[string]TaskDef) ([]string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	parent := make(map[string]string, len(tasks))

	var cycleStart, cycleEnd string
	var found bool

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		deps := append([]string(nil), tasks[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := tasks[dep]; !ok {
				continue // dangling refs are reported separately
			}
			switch color[dep] {
			case white:
				parent[dep] = id
				if visit(dep) {
					return true
				}
			case gray:
				cycleStart, cycleEnd = dep, id
				found = true
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range sortedKeys(tasks) {
		if color[id] == white {
			if visit(id) {
				break
			}
		}
	}

	if !found {
		return nil, false
	}

	var path []string
	for cur := cycleEnd; cur != cycleStart; cur = parent[cur] {
		path = append([]string{cur}, path...)
	}
	path = append([]string{cycleStart}, path...)
	path = append(path, cycleStart)
	return path, true
}

func sortedKeys(tasks map[string]TaskDef) []string {
	keys := make([]string, 0, len(tasks))
	for k := range tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
