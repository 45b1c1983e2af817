package playbook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// CurrentFormatVersion is the definition format version this engine reads
// and writes. Stored definitions with any other version are unreadable.
const CurrentFormatVersion = 1

// NewDefinition returns an empty definition at the current format version.
func NewDefinition() *Definition {
	return &Definition{
		FormatVersion: CurrentFormatVersion,
		Triggers:      []*TriggerStep{},
		Sequences:     map[string]*ActionSequence{},
	}
}

// Serialize encodes a definition to its stored JSON form. Property names are
// camelCase, enum values serialize as strings, and default/empty values are
// omitted to keep stored documents minimal and diffable.
func Serialize(def *Definition) (string, error) {
	if def == nil {
		return "", fmt.Errorf("cannot serialize nil definition")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(def); err != nil {
		return "", fmt.Errorf("failed to serialize playbook definition: %w", err)
	}
	// Encoder appends a trailing newline; stored documents don't carry it.
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Deserialize decodes a stored definition. Empty input yields a nil
// definition and no error; malformed JSON is a deserialization error.
// Structural problems beyond JSON syntax are the validator's concern, not
// the decoder's.
func Deserialize(data string) (*Definition, error) {
	if data == "" {
		return nil, nil
	}
	var def Definition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("failed to parse playbook definition: %w", err)
	}
	return &def, nil
}

// FromYAML parses a YAML authoring document into a definition. YAML is an
// authoring convenience only; the stored form is always JSON, so the
// document is normalized through the JSON path to guarantee both read the
// same shape.
func FromYAML(data []byte) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse playbook YAML: %w", err)
	}
	normalized, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize playbook YAML: %w", err)
	}
	return Deserialize(string(normalized))
}

// normalizeYAML rewrites yaml.v3's map[string]any/any trees into
// JSON-marshalable values. yaml.v3 already keys maps by string, but nested
// values may carry types (e.g. map[any]any from older documents) that
// encoding/json rejects.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
