package engine

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

	"form-engine/internal/config"
	"form-engine/internal/metadata"
	"form-engine/internal/rules"
	"form-engine/internal/store"
)

type memForms struct {
	forms map[string]*store.FormRecord
	gets  int
}

func (m *memForms) GetForm(_ context.Context, key string) (*store.FormRecord, error) {
	m.gets++
	rec, ok := m.forms[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func runtimeApp(t *testing.T, src *memForms, user *metadata.UserContext) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	withUser := func(c *fiber.Ctx) error {
		if user != nil {
			c.Locals("user", user)
		}
		return c.Next()
	}
	h := NewHandler(src, metadata.NewDefaultRegistry(), rules.NewRegistry(nil), nil, config.EngineConfig{})
	RegisterFormRoutes(app, h, withUser)
	return app
}

func post(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func seededForms() *memForms {
	return &memForms{forms: map[string]*store.FormRecord{
		"signup": {Key: "signup", Revision: "r1", Definition: json.RawMessage(signupForm)},
		"order":  {Key: "order", Revision: "r1", Definition: json.RawMessage(orderForm)},
	}}
}

var member = &metadata.UserContext{ID: "u1", Roles: []string{"user"}}

func TestHandler_Evaluate(t *testing.T) {
	app := runtimeApp(t, seededForms(), member)

	status, out := post(t, app, "/api/forms/signup/evaluate", fiber.Map{"data": fiber.Map{"x": true}})
	require.Equal(t, 200, status)
	data := out["data"].(map[string]any)
	state := data["state"].(map[string]any)
	assert.Equal(t, "Y", state["hint"].(map[string]any)["text"])
	assert.Empty(t, data["errors"])
}

func TestHandler_ValidateReportsDetails(t *testing.T) {
	app := runtimeApp(t, seededForms(), member)

	status, out := post(t, app, "/api/forms/signup/validate", fiber.Map{"data": fiber.Map{"email": "nope", "x": true}})
	require.Equal(t, 422, status)
	errBody := out["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", errBody["code"])
	details := errBody["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "email", details[0].(map[string]any)["field"])
	assert.Equal(t, "email", details[0].(map[string]any)["rule"])

	status, _ = post(t, app, "/api/forms/signup/validate", fiber.Map{"data": fiber.Map{"email": "a@b.com", "x": true}})
	assert.Equal(t, 200, status)
}

func TestHandler_FireEvent(t *testing.T) {
	app := runtimeApp(t, seededForms(), member)

	status, out := post(t, app, "/api/forms/order/events", fiber.Map{
		"data":  itemsData("a", "b", "c"),
		"path":  "items[0].del",
		"event": "onClick",
	})
	require.Equal(t, 200, status)
	items := out["data"].(map[string]any)["data"].(map[string]any)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].(map[string]any)["name"])

	status, out = post(t, app, "/api/forms/order/events", fiber.Map{"path": "nowhere", "event": "onClick"})
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", out["error"].(map[string]any)["code"])

	status, out = post(t, app, "/api/forms/order/events", fiber.Map{"path": "ghost", "event": "onClick"})
	assert.Equal(t, 400, status)
	assert.Equal(t, "UNKNOWN_ACTION", out["error"].(map[string]any)["code"])

	status, _ = post(t, app, "/api/forms/order/events", fiber.Map{"path": "submit", "event": "onClick"})
	assert.Equal(t, 422, status)

	status, _ = post(t, app, "/api/forms/order/events", fiber.Map{"event": "onClick"})
	assert.Equal(t, 400, status)
}

func TestHandler_UnknownFormAndAuth(t *testing.T) {
	status, out := post(t, runtimeApp(t, seededForms(), member), "/api/forms/nope/evaluate", fiber.Map{})
	assert.Equal(t, 404, status)
	assert.Equal(t, "UNKNOWN_FORM", out["error"].(map[string]any)["code"])

	status, out = post(t, runtimeApp(t, seededForms(), nil), "/api/forms/signup/evaluate", fiber.Map{})
	assert.Equal(t, 401, status)
	assert.Equal(t, "UNAUTHORIZED", out["error"].(map[string]any)["code"])

	guest := &metadata.UserContext{ID: "g", Roles: []string{"guest"}}
	status, _ = post(t, runtimeApp(t, seededForms(), guest), "/api/forms/signup/evaluate", fiber.Map{})
	assert.Equal(t, 403, status)
}

func TestHandler_CachesParsedDefinition(t *testing.T) {
	src := seededForms()
	h := NewHandler(src, nil, nil, nil, config.EngineConfig{})
	ctx := context.Background()

	first, err := h.definition(ctx, "signup")
	require.NoError(t, err)
	again, err := h.definition(ctx, "signup")
	require.NoError(t, err)
	assert.Same(t, first, again)

	src.forms["signup"] = &store.FormRecord{Key: "signup", Revision: "r2", Definition: json.RawMessage(orderForm)}
	changed, err := h.definition(ctx, "signup")
	require.NoError(t, err)
	assert.NotSame(t, first, changed)
	assert.Equal(t, 3, src.gets)
}

func TestCheckPermission(t *testing.T) {
	admin := &metadata.UserContext{ID: "a", Roles: []string{"admin"}}
	assert.NoError(t, CheckPermission(admin, "f", OpWrite))
	assert.NoError(t, CheckPermission(member, "f", OpRead))
	assert.Error(t, CheckPermission(member, "f", OpWrite))
	assert.NoError(t, CheckPermission(&metadata.UserContext{Roles: []string{"editor"}}, "f", OpWrite))
}
