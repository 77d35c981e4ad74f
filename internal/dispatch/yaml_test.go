package dispatch

import "testing"

func TestExtractLastYAMLBlockPicksLast(t *testing.T) {
	text := "```yaml\na: 1\n```\nsome narration\n```yaml\na: 2\n```"
	block, found := ExtractLastYAMLBlock(text)
	if !found {
		t.Fatal("ExtractLastYAMLBlock() found = false")
	}
	parsed, err := ParseYAML(block)
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	if parsed["a"] != 2 {
		t.Errorf("parsed[a] = %v, want 2 (the last block)", parsed["a"])
	}
}

func TestExtractLastYAMLBlockNoneFound(t *testing.T) {
	_, found := ExtractLastYAMLBlock("no fenced blocks here")
	if found {
		t.Error("ExtractLastYAMLBlock() found = true, want false")
	}
}

func TestSchemaValidateRequiredField(t *testing.T) {
	s := Schema{"verdict": {Type: FieldString, Required: true}}
	if err := s.Validate(map[string]interface{}{}); err == nil {
		t.Error("Validate() = nil, want error for missing required field")
	}
	if err := s.Validate(map[string]interface{}{"verdict": "SHIP_IT"}); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestSchemaValidateTypeMismatch(t *testing.T) {
	s := Schema{"count": {Type: FieldNumber, Required: true}}
	if err := s.Validate(map[string]interface{}{"count": "not-a-number"}); err == nil {
		t.Error("Validate() = nil, want type error")
	}
}

func TestSchemaValidateOptionalFieldAbsent(t *testing.T) {
	s := Schema{"notes": {Type: FieldString, Required: false}}
	if err := s.Validate(map[string]interface{}{}); err != nil {
		t.Errorf("Validate() = %v, want nil for an absent optional field", err)
	}
}
