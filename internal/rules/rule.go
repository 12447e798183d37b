// Package rules is the validation rule catalog. Rules are keyed by value type
// and name; each one declares typed parameters and a factory that turns
// resolved arguments into a reusable Validator.
package rules

import (
	"context"
	"fmt"
	"slices"
)

// ParamType is the declared type of a rule or action parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamDate    ParamType = "date"
	ParamTime    ParamType = "time"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// Param declares one named argument.
type Param struct {
	Key      string    `json:"key"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Default  any       `json:"default,omitempty"`
}

// MessageParam is declared by every rule; it overrides the default failure text.
var MessageParam = Param{Key: "message", Type: ParamString}

// ResolveArgs copies args and fills in declared defaults. A missing required
// parameter is an error. Argument types are not checked.
func ResolveArgs(params []Param, args map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(args)+len(params))
	for k, v := range args {
		resolved[k] = v
	}
	for _, p := range params {
		if v, ok := resolved[p.Key]; ok && v != nil {
			continue
		}
		if p.Default != nil {
			resolved[p.Key] = p.Default
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("missing required argument %q", p.Key)
		}
	}
	return resolved, nil
}

// Validator checks one value. It returns ok=true when the value passes and a
// human-readable message otherwise. It must not panic on valid input.
type Validator func(ctx context.Context, value any, formData map[string]any) (ok bool, message string)

// Factory closes over resolved arguments and returns a Validator.
type Factory func(args map[string]any) Validator

// Rule is an immutable rule definition. The With* methods return modified
// copies and never touch the receiver.
type Rule struct {
	params  []Param
	factory Factory
}

// NewRule starts a rule definition with the implicit message parameter.
func NewRule() Rule {
	return Rule{params: []Param{MessageParam}}
}

// WithParam returns a copy of r declaring one more parameter.
func (r Rule) WithParam(key string, typ ParamType, required bool, def any) Rule {
	params := slices.Clone(r.params)
	params = append(params, Param{Key: key, Type: typ, Required: required, Default: def})
	r.params = params
	return r
}

// WithFactory returns a copy of r using factory.
func (r Rule) WithFactory(factory Factory) Rule {
	r.factory = factory
	return r
}

// WithValidator is WithFactory for rules whose check does not depend on
// arguments other than the message.
func (r Rule) WithValidator(defaultMessage string, check func(value any) bool) Rule {
	return r.WithFactory(func(args map[string]any) Validator {
		msg := messageOr(args, defaultMessage)
		return func(_ context.Context, value any, _ map[string]any) (bool, string) {
			if check(value) {
				return true, ""
			}
			return false, msg
		}
	})
}

// Params returns the declared parameters, message first.
func (r Rule) Params() []Param {
	return slices.Clone(r.params)
}

// Build resolves args against the declared parameters and calls the factory.
func (r Rule) Build(args map[string]any) (Validator, error) {
	if r.factory == nil {
		return nil, fmt.Errorf("rule has no validator factory")
	}
	resolved, err := ResolveArgs(r.params, args)
	if err != nil {
		return nil, err
	}
	return r.factory(resolved), nil
}

func messageOr(args map[string]any, def string) string {
	if msg, ok := args[MessageParam.Key].(string); ok && msg != "" {
		return msg
	}
	return def
}

// optional wraps v so that empty values (nil or "") pass. Only presence rules
// such as required look at empty values.
func optional(v Validator) Validator {
	return func(ctx context.Context, value any, formData map[string]any) (bool, string) {
		if isEmpty(value) {
			return true, ""
		}
		return v(ctx, value, formData)
	}
}

// check builds an optional rule from a plain predicate over the value and the
// resolved arguments.
func check(defaultMessage string, pred func(value any, args map[string]any) bool) Factory {
	return func(args map[string]any) Validator {
		msg := messageOr(args, defaultMessage)
		return optional(func(_ context.Context, value any, _ map[string]any) (bool, string) {
			if pred(value, args) {
				return true, ""
			}
			return false, msg
		})
	}
}
