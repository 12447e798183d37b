package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-engine/internal/auth"
	"form-engine/internal/config"
	"form-engine/internal/engine"
	"form-engine/internal/metadata"
	"form-engine/internal/rules"
	"form-engine/internal/store"
)

const secret = "admin-test"

const contactDef = `{"form": {"key": "Screen", "type": "Screen", "children": [
	{"key": "email", "type": "Input", "schema": {"validations": [{"key": "email"}]}}
]}}`

type fixture struct {
	app    *fiber.App
	store  *store.Store
	editor string
	member string
	admin  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "admin"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx, config.AdminConfig{}))

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterAdminRoutes(app, NewHandler(s, metadata.NewDefaultRegistry(), rules.NewRegistry(nil)), auth.AuthMiddleware(secret))

	token := func(roles ...string) string {
		tok, err := auth.NewTokens(secret).Access("u-"+roles[0], roles)
		require.NoError(t, err)
		return tok
	}
	return &fixture{app: app, store: s, editor: token("editor"), member: token("user"), admin: token("admin")}
}

func (f *fixture) do(t *testing.T, method, path, token, contentType string, body []byte) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func saveBody(t *testing.T, title, def string) []byte {
	b, err := json.Marshal(map[string]any{"title": title, "definition": json.RawMessage(def)})
	require.NoError(t, err)
	return b
}

func TestForms_CRUD(t *testing.T) {
	f := setup(t)

	status, out := f.do(t, http.MethodPut, "/api/_admin/forms/contact", f.editor, "application/json", saveBody(t, "Contact", contactDef))
	require.Equal(t, 200, status, out)
	rev1 := out["data"].(map[string]any)["revision"]

	status, _ = f.do(t, http.MethodPut, "/api/_admin/forms/contact", f.editor, "application/json", saveBody(t, "Contact v2", contactDef))
	require.Equal(t, 200, status)

	status, out = f.do(t, http.MethodGet, "/api/_admin/forms", f.editor, "", nil)
	require.Equal(t, 200, status)
	assert.Len(t, out["data"], 1)

	status, out = f.do(t, http.MethodGet, "/api/_admin/forms/contact/revisions", f.editor, "", nil)
	require.Equal(t, 200, status)
	revs := out["data"].([]any)
	require.Len(t, revs, 2)

	status, out = f.do(t, http.MethodGet, "/api/_admin/forms/contact", f.editor, "", nil)
	require.Equal(t, 200, status)
	assert.NotEqual(t, rev1, out["data"].(map[string]any)["revision"])

	status, _ = f.do(t, http.MethodDelete, "/api/_admin/forms/contact", f.editor, "", nil)
	assert.Equal(t, 200, status)
	status, out = f.do(t, http.MethodGet, "/api/_admin/forms/contact", f.editor, "", nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, "UNKNOWN_FORM", out["error"].(map[string]any)["code"])
}

func TestForms_SaveYAML(t *testing.T) {
	f := setup(t)
	yamlDef := []byte("form:\n  key: Screen\n  type: Screen\n  children:\n    - key: age\n      type: NumberInput\n")

	status, out := f.do(t, http.MethodPut, "/api/_admin/forms/age?title=Age", f.editor, "application/yaml", yamlDef)
	require.Equal(t, 200, status, out)
	assert.Equal(t, "Age", out["data"].(map[string]any)["title"])

	rec, err := f.store.GetForm(context.Background(), "age")
	require.NoError(t, err)
	pf, err := metadata.ParseForm(rec.Definition)
	require.NoError(t, err)
	assert.Equal(t, "NumberInput", pf.Form.Children[0].Type)
}

func TestForms_InvalidDefinitionListsEveryProblem(t *testing.T) {
	f := setup(t)
	bad := `{"form": {"key": "Screen", "type": "Screen", "children": [
		{"key": "x", "type": "Input"},
		{"key": "x", "type": "Warp"}
	]}}`

	status, out := f.do(t, http.MethodPut, "/api/_admin/forms/bad", f.editor, "application/json", saveBody(t, "", bad))
	require.Equal(t, 422, status)
	errBody := out["error"].(map[string]any)
	assert.Equal(t, "INVALID_DEFINITION", errBody["code"])
	assert.GreaterOrEqual(t, len(errBody["details"].([]any)), 2)

	status, _ = f.do(t, http.MethodPost, "/api/_admin/check", f.editor, "application/json", saveBody(t, "", contactDef))
	assert.Equal(t, 200, status)
}

func TestRoles(t *testing.T) {
	f := setup(t)
	status, _ := f.do(t, http.MethodGet, "/api/_admin/forms", f.member, "", nil)
	assert.Equal(t, 403, status)
	status, _ = f.do(t, http.MethodGet, "/api/_admin/forms", f.admin, "", nil)
	assert.Equal(t, 200, status)

	body := []byte(`{"email": "ed@example.com", "password": "longenough", "roles": ["editor"]}`)
	status, _ = f.do(t, http.MethodPost, "/api/_admin/users", f.editor, "application/json", body)
	assert.Equal(t, 403, status)
	status, out := f.do(t, http.MethodPost, "/api/_admin/users", f.admin, "application/json", body)
	require.Equal(t, 201, status, out)

	status, out = f.do(t, http.MethodPost, "/api/_admin/users", f.admin, "application/json", body)
	assert.Equal(t, 409, status)
	assert.Equal(t, "CONFLICT", out["error"].(map[string]any)["code"])

	status, out = f.do(t, http.MethodPost, "/api/_admin/users", f.admin, "application/json", []byte(`{"password": "x"}`))
	assert.Equal(t, 422, status)
	assert.Len(t, out["error"].(map[string]any)["details"], 2)
}

func TestDefinitionRoutesNeedWritePermission(t *testing.T) {
	f := setup(t)
	def := saveBody(t, "Contact", contactDef)

	status, out := f.do(t, http.MethodPut, "/api/_admin/forms/contact", f.member, "application/json", def)
	assert.Equal(t, 403, status)
	errBody := out["error"].(map[string]any)
	assert.Equal(t, "FORBIDDEN", errBody["code"])
	assert.Contains(t, errBody["message"], "write on form contact")

	status, _ = f.do(t, http.MethodPost, "/api/_admin/check", f.member, "application/json", def)
	assert.Equal(t, 403, status)

	status, out = f.do(t, http.MethodPut, "/api/_admin/forms/contact", f.editor, "application/json", def)
	assert.Less(t, status, 300, out)
	status, _ = f.do(t, http.MethodDelete, "/api/_admin/forms/contact", f.member, "", nil)
	assert.Equal(t, 403, status)
}

func TestCatalogs(t *testing.T) {
	f := setup(t)
	status, out := f.do(t, http.MethodGet, "/api/_admin/rules/string", f.member, "", nil)
	require.Equal(t, 200, status)
	keys := []string{}
	for _, r := range out["data"].([]any) {
		keys = append(keys, r.(map[string]any)["key"].(string))
	}
	assert.Contains(t, keys, "email")
	assert.Contains(t, keys, "code")

	status, _ = f.do(t, http.MethodGet, "/api/_admin/rules/nope", f.member, "", nil)
	assert.Equal(t, 404, status)

	status, out = f.do(t, http.MethodGet, "/api/_admin/models", f.member, "", nil)
	require.Equal(t, 200, status)
	assert.NotEmpty(t, out["data"])
}
