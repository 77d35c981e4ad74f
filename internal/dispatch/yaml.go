package dispatch

import (
	"regexp"

	"gopkg.in/yaml.v3"
)

// fencedYAMLBlock matches ```yaml ... ``` fenced code blocks, the
// convention agent outputs use to carry their structured result.
var fencedYAMLBlock = regexp.MustCompile("(?s)```ya?ml\\s*\\n(.*?)```")

// ExtractLastYAMLBlock returns the contents of the last well-formed
// fenced YAML block in text. Agents may narrate freely before their
// final answer; only the last block is authoritative.
func ExtractLastYAMLBlock(text string) (string, bool) {
	matches := fencedYAMLBlock.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

// ParseYAML unmarshals a YAML block into a generic field map.
func ParseYAML(block string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := yaml.Unmarshal([]byte(block), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}
