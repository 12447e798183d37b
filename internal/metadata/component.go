package metadata

import "encoding/json"

// ComponentStore is the persisted shape of one component instance.
type ComponentStore struct {
	Key          string                     `json:"key"`
	Type         string                     `json:"type"`
	Props        map[string]PropertyValue   `json:"props,omitempty"`
	TooltipProps map[string]PropertyValue   `json:"tooltipProps,omitempty"`
	Schema       *ComponentSchema           `json:"schema,omitempty"`
	Events       map[string][]ActionBinding `json:"events,omitempty"`
	CSS          json.RawMessage            `json:"css,omitempty"`
	WrapperCSS   json.RawMessage            `json:"wrapperCss,omitempty"`
	Children     []*ComponentStore          `json:"children,omitempty"`
}

// ComponentSchema holds the validation settings of a value-bound component.
type ComponentSchema struct {
	Validations []ValidationRuleSettings `json:"validations,omitempty"`
	// AutoValidate defaults to true when omitted.
	AutoValidate *bool `json:"autoValidate,omitempty"`
}

// ShouldAutoValidate reports whether a value change triggers validation.
func (s *ComponentSchema) ShouldAutoValidate() bool {
	if s == nil || s.AutoValidate == nil {
		return true
	}
	return *s.AutoValidate
}

// RuleType selects which catalog a validation rule is looked up in.
type RuleType string

const (
	RuleInternal RuleType = "internal"
	RuleCustom   RuleType = "custom"
)

// ValidationRuleSettings references a named rule for the field's value type.
type ValidationRuleSettings struct {
	Key          string         `json:"key"`
	Type         RuleType       `json:"type,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	ValidateWhen *ValidateWhen  `json:"validateWhen,omitempty"`
}

// Catalog returns the catalog to search, defaulting to the built-in one.
func (s ValidationRuleSettings) Catalog() RuleType {
	if s.Type == "" {
		return RuleInternal
	}
	return s.Type
}

// ValidateWhen gates a rule on an expression over the form data.
type ValidateWhen struct {
	FnSource string `json:"fnSource"`
}

// ActionKind distinguishes built-in actions from host-registered ones.
type ActionKind string

const (
	ActionCommon ActionKind = "common"
	ActionCustom ActionKind = "custom"
)

// ActionBinding is one action invocation declared on an event.
type ActionBinding struct {
	Type ActionKind     `json:"type"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Walk visits the store and its descendants depth-first, parents first.
// Returning false from fn skips the children of that store.
func (c *ComponentStore) Walk(fn func(s *ComponentStore, depth int) bool) {
	c.walk(fn, 0)
}

func (c *ComponentStore) walk(fn func(s *ComponentStore, depth int) bool, depth int) {
	if c == nil {
		return
	}
	if !fn(c, depth) {
		return
	}
	for _, child := range c.Children {
		child.walk(fn, depth+1)
	}
}

// ReduceStores folds fn over every store in the tree in depth-first order.
func ReduceStores[T any](root *ComponentStore, fn func(acc T, s *ComponentStore) T, initial T) T {
	acc := initial
	root.Walk(func(s *ComponentStore, _ int) bool {
		acc = fn(acc, s)
		return true
	})
	return acc
}

// PropValue returns the static value of a property, or nil if it is absent
// or computed.
func (c *ComponentStore) PropValue(name string) any {
	p, ok := c.Props[name]
	if !ok || p.Kind != PropertyStatic {
		return nil
	}
	return p.Value
}

// Clone returns a deep copy of the store tree.
func (c *ComponentStore) Clone() *ComponentStore {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out ComponentStore
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return &out
}
