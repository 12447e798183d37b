package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Localization maps language -> component key -> localization type -> prop -> text.
type Localization map[string]map[string]map[string]map[string]any

// PersistedForm is the top-level persisted form document.
type PersistedForm struct {
	Version         string          `json:"version,omitempty"`
	ErrorType       string          `json:"errorType,omitempty"`
	TooltipType     string          `json:"tooltipType,omitempty"`
	DefaultLanguage string          `json:"defaultLanguage,omitempty"`
	Localization    Localization    `json:"localization,omitempty"`
	Form            *ComponentStore `json:"form"`
}

// Lookup returns the localized texts of one component for one localization type.
func (l Localization) Lookup(language, componentKey, locType string) map[string]any {
	if l == nil {
		return nil
	}
	return l[language][componentKey][locType]
}

// ParseForm decodes a persisted form from JSON.
func ParseForm(data []byte) (*PersistedForm, error) {
	var pf PersistedForm
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	if pf.Form == nil {
		return nil, fmt.Errorf("parse form: missing \"form\" member")
	}
	return &pf, nil
}

// ParseFormYAML decodes a persisted form authored in YAML. The document is
// converted to JSON first so both encodings share one decoder.
func ParseFormYAML(data []byte) (*PersistedForm, error) {
	jsonData, err := YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse form yaml: %w", err)
	}
	return ParseForm(jsonData)
}

// YAMLToJSON re-encodes a YAML document as JSON.
func YAMLToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAML(doc))
}

// MarshalForm encodes a persisted form as JSON.
func MarshalForm(pf *PersistedForm) ([]byte, error) {
	b, err := json.Marshal(pf)
	if err != nil {
		return nil, fmt.Errorf("marshal form: %w", err)
	}
	return b, nil
}

// LoadFile reads a form definition, choosing the decoder by file extension.
func LoadFile(path string) (*PersistedForm, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read form %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = YAMLToJSON(data)
		if err != nil {
			return nil, nil, fmt.Errorf("parse form yaml %s: %w", path, err)
		}
	}
	pf, err := ParseForm(data)
	if err != nil {
		return nil, nil, err
	}
	return pf, data, nil
}

// LoadData reads a JSON or YAML object used as initial form data.
func LoadData(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = YAMLToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("parse data yaml %s: %w", path, err)
		}
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse data %s: %w", path, err)
	}
	return data, nil
}

// normalizeYAML turns map[any]any nodes (possible for non-string keys) into
// map[string]any so the result can be JSON encoded.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
