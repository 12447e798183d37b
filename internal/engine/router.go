package engine

import "github.com/gofiber/fiber/v2"

// RegisterFormRoutes mounts the runtime form API on app.
func RegisterFormRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api/forms", middleware...)

	api.Get("/:key", h.Get)
	api.Post("/:key/evaluate", h.Evaluate)
	api.Post("/:key/validate", h.Validate)
	api.Post("/:key/events", h.Fire)
}
