package metadata

// Kind describes how the engine treats a component's children and data.
type Kind string

const (
	KindComponent Kind = "component"
	KindContainer Kind = "container"
	KindRepeater  Kind = "repeater"
	KindTemplate  Kind = "template"
)

// ValueType is the data type a value-bound component produces.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueDate    ValueType = "date"
	ValueTime    ValueType = "time"
	ValueObject  ValueType = "object"
	ValueArray   ValueType = "array"
	ValueEnum    ValueType = "enum"
)

// ValueTypes lists every value type with a rule catalog.
var ValueTypes = []ValueType{
	ValueString, ValueNumber, ValueBoolean, ValueDate,
	ValueTime, ValueObject, ValueArray, ValueEnum,
}

// Reserved model type names used by the engine itself.
const (
	TypeScreen        = "Screen"
	TypeRepeaterItem  = "RepeaterItem"
	TypeInternalError = "InternalError"

	// RepeaterDataKeyProp is the prop a repeater row scope carries to name
	// the array it belongs to.
	RepeaterDataKeyProp = "repeaterDataKey"
)

// Model binds a component type name to its value type and kind. The engine
// never renders; it only needs enough to decide what to calculate and
// validate.
type Model struct {
	Type         string         `json:"type"`
	ValueType    ValueType      `json:"valueType,omitempty"`
	Kind         Kind           `json:"kind"`
	DefaultProps map[string]any `json:"defaultProps,omitempty"`
	// ReadOnly and Disabled name the props that hold those flags.
	ReadOnly string `json:"readOnly,omitempty"`
	Disabled string `json:"disabled,omitempty"`
}

// HasValue reports whether nodes of this model bind a field value. A
// repeater binds its whole array, so array rules apply to the row list.
func (m *Model) HasValue() bool {
	return m != nil && m.ValueType != ""
}

// IsRepeater reports whether the model repeats its children per data row.
func (m *Model) IsRepeater() bool {
	return m != nil && m.Kind == KindRepeater
}

// DefaultModels returns the built-in component models.
func DefaultModels() []*Model {
	return []*Model{
		{Type: TypeScreen, Kind: KindContainer},
		{Type: TypeRepeaterItem, Kind: KindTemplate},
		{Type: TypeInternalError, Kind: KindComponent},

		{Type: "Container", Kind: KindContainer},
		{Type: "Card", Kind: KindContainer},
		{Type: "Wizard", Kind: KindContainer},
		{Type: "WizardStep", Kind: KindContainer},
		{Type: "Repeater", Kind: KindRepeater, ValueType: ValueArray},

		{Type: "Label", Kind: KindComponent},
		{Type: "Header", Kind: KindComponent},
		{Type: "Button", Kind: KindComponent, Disabled: "disabled"},

		{Type: "Input", Kind: KindComponent, ValueType: ValueString, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "TextArea", Kind: KindComponent, ValueType: ValueString, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "NumberInput", Kind: KindComponent, ValueType: ValueNumber, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "Checkbox", Kind: KindComponent, ValueType: ValueBoolean, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "Toggle", Kind: KindComponent, ValueType: ValueBoolean, Disabled: "disabled"},
		{Type: "DatePicker", Kind: KindComponent, ValueType: ValueDate, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "TimePicker", Kind: KindComponent, ValueType: ValueTime, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "Dropdown", Kind: KindComponent, ValueType: ValueEnum, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "RadioGroup", Kind: KindComponent, ValueType: ValueEnum, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "TagPicker", Kind: KindComponent, ValueType: ValueArray, ReadOnly: "readOnly", Disabled: "disabled"},
		{Type: "Address", Kind: KindComponent, ValueType: ValueObject, ReadOnly: "readOnly", Disabled: "disabled"},
	}
}
