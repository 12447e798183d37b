package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"

	"form-engine/internal/config"
	"form-engine/internal/metadata"
	"form-engine/internal/rules"
	"form-engine/internal/store"
)

// FormSource loads stored form definitions. *store.Store implements it.
type FormSource interface {
	GetForm(ctx context.Context, key string) (*store.FormRecord, error)
}

type parsedForm struct {
	revision string
	def      *metadata.PersistedForm
}

// Handler serves the runtime form API: definitions are loaded from the
// source, and every request runs against a fresh live Form.
type Handler struct {
	forms   FormSource
	models  *metadata.Registry
	rules   *rules.Registry
	actions map[string]ActionDefinition
	cfg     config.EngineConfig

	mu    sync.Mutex
	cache map[string]parsedForm
}

func NewHandler(src FormSource, models *metadata.Registry, reg *rules.Registry, actions map[string]ActionDefinition, cfg config.EngineConfig) *Handler {
	return &Handler{forms: src, models: models, rules: reg, actions: actions, cfg: cfg, cache: map[string]parsedForm{}}
}

type evaluateRequest struct {
	Data     map[string]any `json:"data"`
	Language string         `json:"language"`
}

type eventRequest struct {
	Data     map[string]any `json:"data"`
	Language string         `json:"language"`
	Path     string         `json:"path"`
	Event    string         `json:"event"`
}

// Get handles GET /api/forms/:key
func (h *Handler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := CheckPermission(getUser(c), key, OpRead); err != nil {
		return err
	}
	rec, err := h.forms.GetForm(c.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, UnknownFormError(key))
		}
		return fmt.Errorf("get form %s: %w", key, err)
	}
	return c.JSON(fiber.Map{"data": rec})
}

// Evaluate handles POST /api/forms/:key/evaluate
func (h *Handler) Evaluate(c *fiber.Ctx) error {
	var body evaluateRequest
	f, err := h.open(c, &body, func() (map[string]any, string) { return body.Data, body.Language })
	if err != nil || f == nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.result(f)})
}

// Validate handles POST /api/forms/:key/validate
func (h *Handler) Validate(c *fiber.Ctx) error {
	var body evaluateRequest
	f, err := h.open(c, &body, func() (map[string]any, string) { return body.Data, body.Language })
	if err != nil || f == nil {
		return err
	}
	valid, err := f.Validate(c.UserContext())
	if err != nil {
		return fmt.Errorf("validate form %s: %w", f.Key(), err)
	}
	if !valid {
		return respondError(c, ValidationError(f.ErrorDetails()))
	}
	return c.JSON(fiber.Map{"data": h.result(f)})
}

// Fire handles POST /api/forms/:key/events
func (h *Handler) Fire(c *fiber.Ctx) error {
	var body eventRequest
	f, err := h.open(c, &body, func() (map[string]any, string) { return body.Data, body.Language })
	if err != nil || f == nil {
		return err
	}
	if body.Path == "" || body.Event == "" {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "path and event are required"))
	}

	ctx := c.UserContext()
	err = f.FirePath(ctx, body.Path, body.Event)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownNode):
		return respondError(c, NotFoundError("node", body.Path))
	case errors.Is(err, ErrUnknownAction):
		return respondError(c, NewAppError("UNKNOWN_ACTION", 400, err.Error()))
	case errors.Is(err, ErrValidationFailed):
		return respondError(c, ValidationError(f.ErrorDetails()))
	default:
		return respondError(c, NewAppError("ACTION_FAILED", 400, err.Error()))
	}
	return c.JSON(fiber.Map{"data": h.result(f)})
}

// open checks permission, parses the body and builds the live form. A nil
// form with a nil error means a response was already written.
func (h *Handler) open(c *fiber.Ctx, body any, input func() (map[string]any, string)) (*Form, error) {
	key := c.Params("key")
	if err := CheckPermission(getUser(c), key, OpEvaluate); err != nil {
		return nil, err
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(body); err != nil {
			return nil, respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
		}
	}

	def, err := h.definition(c.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, respondError(c, UnknownFormError(key))
		}
		return nil, err
	}

	data, language := input()
	if language == "" {
		language = h.cfg.Language
	}
	return New(def, data, Options{
		Key:                 key,
		Models:              h.models,
		Rules:               h.rules,
		Actions:             h.actions,
		Language:            language,
		DisableAutoValidate: !h.cfg.ValidateOnChange,
	}), nil
}

// definition returns the parsed definition of key, reparsing only when the
// stored revision changed.
func (h *Handler) definition(ctx context.Context, key string) (*metadata.PersistedForm, error) {
	rec, err := h.forms.GetForm(ctx, key)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if cached, ok := h.cache[key]; ok && cached.revision == rec.Revision {
		return cached.def, nil
	}
	def, err := metadata.ParseForm(rec.Definition)
	if err != nil {
		return nil, fmt.Errorf("form %s: %w", key, err)
	}
	h.cache[key] = parsedForm{revision: rec.Revision, def: def}
	return def, nil
}

func (h *Handler) result(f *Form) fiber.Map {
	snap := f.Snapshot()
	return fiber.Map{
		"data":   snap.Data,
		"errors": snap.Errors,
		"state":  f.States(),
	}
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// HandleWriteError maps store errors to API errors.
func HandleWriteError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return respondError(c, appErr)
	}

	if errors.Is(err, store.ErrNotFound) {
		return respondError(c, NewAppError("NOT_FOUND", 404, "Not found"))
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		msg := "A record with this value already exists"
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			msg = pgErr.Detail
		}
		return respondError(c, ConflictError(msg))
	}

	return err
}
