package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PropertyKind tags which interpretation of a PropertyValue is active.
type PropertyKind int

const (
	// PropertyStatic is a literal {"value": ...}.
	PropertyStatic PropertyKind = iota
	// PropertyFunction is {"computeType": "function", "fnSource": ...}.
	PropertyFunction
	// PropertyLocalized is {"computeType": "localization"}.
	PropertyLocalized
	// PropertyMalformed is any shape the engine does not understand. It is kept
	// verbatim so a definition survives a parse/serialize round trip.
	PropertyMalformed
)

const (
	ComputeFunction     = "function"
	ComputeLocalization = "localization"
)

func (k PropertyKind) String() string {
	switch k {
	case PropertyStatic:
		return "static"
	case PropertyFunction:
		return "function"
	case PropertyLocalized:
		return "localization"
	default:
		return "malformed"
	}
}

// PropertyValue is one persisted component property. Exactly one of the
// variants applies, selected by Kind. Calculated and localized values may
// still carry the last static Value, which is preserved on serialization.
type PropertyValue struct {
	Kind     PropertyKind
	Value    any
	FnSource string

	hasValue bool
	raw      json.RawMessage
}

// Static builds a static property value.
func Static(v any) PropertyValue {
	return PropertyValue{Kind: PropertyStatic, Value: v, hasValue: true}
}

// Calculated builds a function-sourced property value.
func Calculated(source string) PropertyValue {
	return PropertyValue{Kind: PropertyFunction, FnSource: source}
}

// Localized builds a property value resolved through the localizer.
func Localized() PropertyValue {
	return PropertyValue{Kind: PropertyLocalized}
}

// IsComputed reports whether the value has to be evaluated rather than read.
func (p PropertyValue) IsComputed() bool {
	return p.Kind == PropertyFunction || p.Kind == PropertyLocalized
}

// HasValue reports whether a "value" member was present.
func (p PropertyValue) HasValue() bool {
	return p.hasValue
}

type propertyWire struct {
	Value       json.RawMessage `json:"value,omitempty"`
	ComputeType string          `json:"computeType,omitempty"`
	FnSource    *string         `json:"fnSource,omitempty"`
}

// UnmarshalJSON never fails on an unknown shape; it records the value as
// PropertyMalformed so a single bad property cannot reject a whole form.
func (p *PropertyValue) UnmarshalJSON(data []byte) error {
	*p = PropertyValue{}

	var w propertyWire
	if err := json.Unmarshal(data, &w); err != nil {
		p.Kind = PropertyMalformed
		p.raw = append(json.RawMessage(nil), data...)
		return nil
	}

	if w.Value != nil {
		var v any
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return fmt.Errorf("property value: %w", err)
		}
		p.Value = v
		p.hasValue = true
	}

	switch w.ComputeType {
	case "":
		p.Kind = PropertyStatic
	case ComputeFunction:
		p.Kind = PropertyFunction
		if w.FnSource != nil {
			p.FnSource = *w.FnSource
		}
	case ComputeLocalization:
		p.Kind = PropertyLocalized
	default:
		p.Kind = PropertyMalformed
		p.raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

func (p PropertyValue) MarshalJSON() ([]byte, error) {
	if p.Kind == PropertyMalformed && p.raw != nil {
		return p.raw, nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&buf, "%q:", key)
		buf.Write(b)
		return nil
	}

	switch p.Kind {
	case PropertyFunction:
		if err := write("computeType", ComputeFunction); err != nil {
			return nil, err
		}
		if err := write("fnSource", p.FnSource); err != nil {
			return nil, err
		}
	case PropertyLocalized:
		if err := write("computeType", ComputeLocalization); err != nil {
			return nil, err
		}
	}
	if p.hasValue || (p.Kind == PropertyStatic && p.Value != nil) {
		if err := write("value", p.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
