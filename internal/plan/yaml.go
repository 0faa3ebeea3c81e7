package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FromYAML parses a plan from a hand-authored YAML file using the
// same shape as the JSON wire format.
func FromYAML(data []byte) (*Plan, error) {
	var w planWire
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse plan yaml: %w", err)
	}
	return fromWire(normalizeWire(w)), nil
}

// ToYAML serializes the plan to YAML using the same wire shape as
// ToJSON.
func (p *Plan) ToYAML() (string, error) {
	data, err := yaml.Marshal(p.toWire())
	if err != nil {
		return "", fmt.Errorf("marshal plan yaml: %w", err)
	}
	return string(data), nil
}

// LoadFile reads a plan from a JSON or YAML file, choosing the parser
// by extension (.json uses JSON, everything else YAML).
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	if isJSONExt(path) {
		return FromJSON(data)
	}
	return FromYAML(data)
}

func isJSONExt(path string) bool {
	n := len(path)
	return n >= 5 && path[n-5:] == ".json"
}

// normalizeWire converts yaml.v3's map[string]interface{} values so the
// wire struct matches what the JSON path produces.
func normalizeWire(w planWire) planWire {
	for i := range w.Steps {
		w.Steps[i].Params = normalizeMap(w.Steps[i].Params)
	}
	w.Metadata = normalizeMap(w.Metadata)
	return w
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
