package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"form-engine/internal/expression"
	"form-engine/internal/metadata"
)

// Catalog is a set of named rules per value type.
type Catalog map[metadata.ValueType]map[string]Rule

// Registry holds the built-in (internal) catalog and the host-supplied
// (custom) catalog. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	internal Catalog
	custom   Catalog
	eval     *expression.Evaluator
}

// NewRegistry returns a registry with every built-in rule, plus a code rule
// for each value type that compiles through ev.
func NewRegistry(ev *expression.Evaluator) *Registry {
	if ev == nil {
		ev = expression.NewEvaluator()
	}
	r := &Registry{
		internal: Catalog{
			metadata.ValueString:  stringRules(),
			metadata.ValueNumber:  numberRules(),
			metadata.ValueBoolean: booleanRules(),
			metadata.ValueDate:    dateRules(),
			metadata.ValueTime:    timeRules(),
			metadata.ValueObject:  objectRules(),
			metadata.ValueArray:   arrayRules(),
			metadata.ValueEnum:    enumRules(),
		},
		custom: Catalog{},
		eval:   ev,
	}
	code := codeRule(ev)
	for _, vt := range metadata.ValueTypes {
		r.internal[vt]["code"] = code
	}
	return r
}

// Evaluator returns the expression evaluator used by code rules.
func (r *Registry) Evaluator() *expression.Evaluator {
	return r.eval
}

// Register adds or replaces a built-in rule.
func (r *Registry) Register(vt metadata.ValueType, name string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	put(r.internal, vt, name, rule)
}

// RegisterCustom adds or replaces a host rule, referenced with type "custom".
func (r *Registry) RegisterCustom(vt metadata.ValueType, name string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	put(r.custom, vt, name, rule)
}

// UseValidators merges a host validators map into the custom catalog.
func (r *Registry) UseValidators(validators Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for vt, rules := range validators {
		for name, rule := range rules {
			put(r.custom, vt, name, rule)
		}
	}
}

func put(c Catalog, vt metadata.ValueType, name string, rule Rule) {
	if c[vt] == nil {
		c[vt] = map[string]Rule{}
	}
	c[vt][name] = rule
}

// Lookup finds a rule in the given catalog.
func (r *Registry) Lookup(catalog metadata.RuleType, vt metadata.ValueType, name string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.internal
	if catalog == metadata.RuleCustom {
		c = r.custom
	}
	rule, ok := c[vt][name]
	return rule, ok
}

// Build resolves a rule reference from a component schema into a Validator.
func (r *Registry) Build(vt metadata.ValueType, settings metadata.ValidationRuleSettings) (Validator, error) {
	rule, ok := r.Lookup(settings.Catalog(), vt, settings.Key)
	if !ok {
		return nil, fmt.Errorf("unknown %s rule %q for value type %s", settings.Catalog(), settings.Key, vt)
	}
	v, err := rule.Build(settings.Args)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", settings.Key, err)
	}
	return v, nil
}

// Rules returns the sorted names of the built-in rules for a value type.
func (r *Registry) Rules(vt metadata.ValueType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.internal[vt]))
	for name := range r.internal[vt] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func wraps a plain check as a rule without parameters beyond message.
func Func(defaultMessage string, fn func(ctx context.Context, value any, formData map[string]any) bool) Rule {
	return NewRule().WithFactory(func(args map[string]any) Validator {
		msg := messageOr(args, defaultMessage)
		return func(ctx context.Context, value any, formData map[string]any) (bool, string) {
			if fn(ctx, value, formData) {
				return true, ""
			}
			return false, msg
		}
	})
}
