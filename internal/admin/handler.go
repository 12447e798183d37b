package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/go-multierror"

	"form-engine/internal/auth"
	"form-engine/internal/engine"
	"form-engine/internal/metadata"
	"form-engine/internal/rules"
	"form-engine/internal/store"
)

type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	rules    *rules.Registry
}

func NewHandler(s *store.Store, reg *metadata.Registry, rr *rules.Registry) *Handler {
	return &Handler{store: s, registry: reg, rules: rr}
}

// RegisterAdminRoutes mounts the definition management API. Definition
// routes are checked as engine.OpWrite, user management needs admin.
func RegisterAdminRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	admin := app.Group("/api/_admin", authMW)
	manage := formOp(engine.OpWrite)

	admin.Get("/forms", manage, h.ListForms)
	admin.Get("/forms/:key", manage, h.GetForm)
	admin.Get("/forms/:key/revisions", manage, h.ListRevisions)
	admin.Put("/forms/:key", manage, h.SaveForm)
	admin.Delete("/forms/:key", manage, h.DeleteForm)
	admin.Post("/check", manage, h.Check)

	admin.Get("/models", h.ListModels)
	admin.Get("/rules/:valueType", h.ListRules)

	admin.Post("/users", auth.RequireAdmin(), h.CreateUser)
}

// formOp admits callers the engine permission table grants op on the
// route's form.
func formOp(op string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := engine.CheckPermission(auth.GetUser(c), c.Params("key", "*"), op); err != nil {
			return err
		}
		return c.Next()
	}
}

// --- Form Endpoints ---

func (h *Handler) ListForms(c *fiber.Ctx) error {
	forms, err := h.store.ListForms(c.Context())
	if err != nil {
		return fmt.Errorf("list forms: %w", err)
	}
	if forms == nil {
		forms = []store.FormRecord{}
	}
	return c.JSON(fiber.Map{"data": forms})
}

func (h *Handler) GetForm(c *fiber.Ctx) error {
	key := c.Params("key")
	rec, err := h.store.GetForm(c.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.UnknownFormError(key)
		}
		return fmt.Errorf("get form %s: %w", key, err)
	}
	return c.JSON(fiber.Map{"data": rec})
}

func (h *Handler) ListRevisions(c *fiber.Ctx) error {
	key := c.Params("key")
	revs, err := h.store.ListRevisions(c.Context(), key)
	if err != nil {
		return fmt.Errorf("list revisions %s: %w", key, err)
	}
	if len(revs) == 0 {
		return engine.UnknownFormError(key)
	}
	return c.JSON(fiber.Map{"data": revs})
}

type saveRequest struct {
	Title      string          `json:"title"`
	Definition json.RawMessage `json:"definition"`
}

// SaveForm handles PUT /api/_admin/forms/:key. The body is either
// {"title", "definition"} JSON or, with a YAML content type, the bare
// definition with the title in ?title=.
func (h *Handler) SaveForm(c *fiber.Ctx) error {
	key := c.Params("key")
	body, err := readDefinition(c)
	if err != nil {
		return err
	}
	if len(body.Definition) == 0 {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "definition is required")
	}
	if err := metadata.Check(body.Definition, h.registry); err != nil {
		return engine.InvalidDefinitionError(definitionDetails(err))
	}

	userID := ""
	if u := auth.GetUser(c); u != nil {
		userID = u.ID
	}
	rec, err := h.store.SaveForm(c.Context(), key, body.Title, body.Definition, userID)
	if err != nil {
		return engine.HandleWriteError(c, err)
	}
	return c.JSON(fiber.Map{"data": rec})
}

func (h *Handler) DeleteForm(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := h.store.DeleteForm(c.Context(), key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.UnknownFormError(key)
		}
		return fmt.Errorf("delete form %s: %w", key, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"key": key}})
}

// Check handles POST /api/_admin/check: the definition checks without saving.
func (h *Handler) Check(c *fiber.Ctx) error {
	body, err := readDefinition(c)
	if err != nil {
		return err
	}
	if err := metadata.Check(body.Definition, h.registry); err != nil {
		return engine.InvalidDefinitionError(definitionDetails(err))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"valid": true}})
}

func readDefinition(c *fiber.Ctx) (*saveRequest, error) {
	if strings.Contains(c.Get(fiber.HeaderContentType), "yaml") {
		def, err := metadata.YAMLToJSON(c.Body())
		if err != nil {
			return nil, engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid YAML body")
		}
		return &saveRequest{Title: c.Query("title"), Definition: def}, nil
	}
	var body saveRequest
	if err := c.BodyParser(&body); err != nil {
		return nil, engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	return &body, nil
}

// definitionDetails turns an aggregated check error into one detail per problem.
func definitionDetails(err error) []engine.ErrorDetail {
	var merr *multierror.Error
	if !errors.As(multierror.Flatten(err), &merr) {
		return []engine.ErrorDetail{{Message: err.Error()}}
	}
	details := make([]engine.ErrorDetail, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		details = append(details, engine.ErrorDetail{Message: e.Error()})
	}
	return details
}

// --- Catalog Endpoints ---

func (h *Handler) ListModels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.AllModels()})
}

func (h *Handler) ListRules(c *fiber.Ctx) error {
	vt := metadata.ValueType(c.Params("valueType"))
	names := h.rules.Rules(vt)
	if len(names) == 0 {
		return engine.NotFoundError("value type", string(vt))
	}
	out := make([]fiber.Map, 0, len(names))
	for _, name := range names {
		rule, _ := h.rules.Lookup(metadata.RuleInternal, vt, name)
		out = append(out, fiber.Map{"key": name, "params": rule.Params()})
	}
	return c.JSON(fiber.Map{"data": out})
}

// --- User Endpoints ---

func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var body struct {
		Email    string   `json:"email"`
		Password string   `json:"password"`
		Roles    []string `json:"roles"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	var details []engine.ErrorDetail
	if body.Email == "" {
		details = append(details, engine.ErrorDetail{Field: "email", Rule: "required", Message: rules.RequiredMessage})
	}
	if len(body.Password) < 8 {
		details = append(details, engine.ErrorDetail{Field: "password", Rule: "min", Message: "Password must have at least 8 characters"})
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}
	if len(body.Roles) == 0 {
		body.Roles = []string{metadata.RoleUser}
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		return err
	}
	id, err := h.store.CreateUser(c.Context(), body.Email, hash, body.Roles)
	if err != nil {
		return engine.HandleWriteError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{"id": id, "email": body.Email, "roles": body.Roles}})
}
