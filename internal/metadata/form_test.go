package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contactForm = `{
	"errorType": "RsErrorMessage",
	"form": {
		"key": "Screen",
		"type": "Screen",
		"children": [
			{
				"key": "email",
				"type": "Input",
				"props": {
					"label": {"value": "Email"},
					"placeholder": {"computeType": "localization"},
					"hint": {"computeType": "function", "fnSource": "return form.rootData['x'] ? 'Y' : 'N'", "value": "N"}
				},
				"schema": {"validations": [{"key": "required"}, {"key": "email", "args": {"message": "bad email"}}]},
				"events": {"onChange": [{"type": "common", "name": "validate"}]}
			},
			{
				"key": "items",
				"type": "Repeater",
				"children": [
					{"key": "name", "type": "Input"}
				]
			}
		]
	}
}`

func TestParseForm_Shapes(t *testing.T) {
	pf, err := ParseForm([]byte(contactForm))
	require.NoError(t, err)
	require.NotNil(t, pf.Form)
	assert.Equal(t, "RsErrorMessage", pf.ErrorType)
	require.Len(t, pf.Form.Children, 2)

	email := pf.Form.Children[0]
	assert.Equal(t, PropertyStatic, email.Props["label"].Kind)
	assert.Equal(t, "Email", email.Props["label"].Value)
	assert.Equal(t, PropertyLocalized, email.Props["placeholder"].Kind)
	hint := email.Props["hint"]
	assert.Equal(t, PropertyFunction, hint.Kind)
	assert.Equal(t, "return form.rootData['x'] ? 'Y' : 'N'", hint.FnSource)
	assert.Equal(t, "N", hint.Value)

	require.NotNil(t, email.Schema)
	require.Len(t, email.Schema.Validations, 2)
	assert.Equal(t, RuleInternal, email.Schema.Validations[0].Catalog())
	assert.Equal(t, "bad email", email.Schema.Validations[1].Args["message"])

	require.Len(t, email.Events["onChange"], 1)
	assert.Equal(t, ActionCommon, email.Events["onChange"][0].Type)
}

func TestParseForm_MissingRoot(t *testing.T) {
	_, err := ParseForm([]byte(`{"errorType": "x"}`))
	require.Error(t, err)
}

func TestMarshalForm_RoundTripIsIdempotent(t *testing.T) {
	pf, err := ParseForm([]byte(contactForm))
	require.NoError(t, err)

	first, err := MarshalForm(pf)
	require.NoError(t, err)

	again, err := ParseForm(first)
	require.NoError(t, err)
	second, err := MarshalForm(again)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.JSONEq(t, contactForm, string(first))
}

func TestPropertyValue_MalformedKeptVerbatim(t *testing.T) {
	var p PropertyValue
	require.NoError(t, json.Unmarshal([]byte(`{"computeType":"sql","query":"select 1"}`), &p))
	assert.Equal(t, PropertyMalformed, p.Kind)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"computeType":"sql","query":"select 1"}`, string(out))
}

func TestPropertyValue_Constructors(t *testing.T) {
	out, err := json.Marshal(map[string]PropertyValue{
		"a": Static(3.0),
		"b": Calculated("1 + 1"),
		"c": Localized(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"value":3},"b":{"computeType":"function","fnSource":"1 + 1"},"c":{"computeType":"localization"}}`, string(out))
	assert.True(t, Calculated("x").IsComputed())
	assert.False(t, Static(1).IsComputed())
}

func TestParseFormYAML(t *testing.T) {
	src := `
form:
  key: Screen
  type: Screen
  children:
    - key: age
      type: NumberInput
      props:
        label:
          value: Age
      schema:
        validations:
          - key: min
            args:
              limit: 18
`
	pf, err := ParseFormYAML([]byte(src))
	require.NoError(t, err)
	age := pf.Form.Children[0]
	assert.Equal(t, "NumberInput", age.Type)
	assert.Equal(t, "Age", age.Props["label"].Value)
	assert.Equal(t, float64(18), age.Schema.Validations[0].Args["limit"])
}

func TestLocalizationLookup(t *testing.T) {
	loc := Localization{
		"en-US": {"email": {"component": {"placeholder": "you@example.com"}}},
	}
	assert.Equal(t, "you@example.com", loc.Lookup("en-US", "email", "component")["placeholder"])
	assert.Nil(t, loc.Lookup("de-DE", "email", "component"))
	assert.Nil(t, Localization(nil).Lookup("en-US", "email", "component"))
}
