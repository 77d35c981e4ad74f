package taskgraph

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile reads a task graph document from path, choosing YAML or
// JSON by extension (.json -> JSON; everything else, including
// .yml/.yaml, -> YAML, matching the teacher's default-permissive
// config loading style).
func ParseFile(path string) (*GraphFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	return Parse(data, formatForPath(path))
}

func formatForPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return "json"
	}
	return "yaml"
}

// Parse decodes raw graph file bytes in the given format ("yaml" or
// "json").
func Parse(data []byte, format string) (*GraphFile, error) {
	var gf GraphFile
	switch format {
	case "json":
		if err := json.Unmarshal(data, &gf); err != nil {
			return nil, fmt.Errorf("parse JSON graph: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &gf); err != nil {
			return nil, fmt.Errorf("parse YAML graph: %w", err)
		}
	}
	return &gf, nil
}
