package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderForm = `
form:
  key: Screen
  type: Screen
  children:
    - key: email
      type: Input
      schema:
        validations:
          - key: required
    - key: items
      type: Repeater
      children:
        - key: name
          type: Input
        - key: remove
          type: Button
          events:
            onClick:
              - type: common
                name: removeRow
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheck_OK(t *testing.T) {
	form := writeFile(t, "order.yaml", orderForm)
	out, err := run(t, "check", form)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 3 components")
	assert.Contains(t, out, "1 repeaters)")
}

func TestCheck_ReportsEveryProblem(t *testing.T) {
	form := writeFile(t, "bad.json",
		`{"form":{"key":"s","type":"Screen","children":[{"key":"x","type":"Input"},{"key":"x","type":"Nope"}]}}`)
	out, err := run(t, "check", form)
	require.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "duplicate component key")
	assert.Contains(t, out, "Nope")
}

func TestEval_ValidatesData(t *testing.T) {
	form := writeFile(t, "order.yaml", orderForm)
	data := writeFile(t, "data.json", `{"items":[{"name":"a"}]}`)

	out, err := run(t, "eval", form, "--data", data)
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	errs := res["errors"].(map[string]any)
	assert.NotEmpty(t, errs["email"])
	assert.Contains(t, res["state"], "email")
}

func TestFire_RemovesRow(t *testing.T) {
	form := writeFile(t, "order.yaml", orderForm)
	data := writeFile(t, "data.yaml", "items:\n  - name: a\n  - name: b\n")

	out, err := run(t, "fire", form, "--data", data, "--node", "items[0].remove")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	items := res["data"].(map[string]any)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].(map[string]any)["name"])
}

func TestFire_UnknownNode(t *testing.T) {
	form := writeFile(t, "order.yaml", orderForm)
	_, err := run(t, "fire", form, "--node", "missing")
	require.Error(t, err)
}
