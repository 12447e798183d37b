package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"form-engine/internal/engine"
	"form-engine/internal/instrument"
	"form-engine/internal/metadata"
)

const userKey = "user"

// AuthMiddleware verifies the bearer token and stores the caller under the
// "user" local, where the engine and admin handlers read it.
func AuthMiddleware(secret string) fiber.Handler {
	tokens := NewTokens(secret)
	return func(c *fiber.Ctx) error {
		scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		switch {
		case c.Get(fiber.HeaderAuthorization) == "":
			return engine.UnauthorizedError("Missing auth token")
		case !ok || !strings.EqualFold(scheme, "Bearer"):
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}
		c.Locals(userKey, claims.User())
		instrument.SetUser(c.UserContext(), claims.Subject)
		return c.Next()
	}
}

// RequireRole admits admins and callers holding one of roles. With no
// roles only admins pass.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if user.IsAdmin() || user.HasAnyRole(roles...) {
			return c.Next()
		}
		if len(roles) == 0 {
			return engine.ForbiddenError("Admin access required")
		}
		return engine.ForbiddenError("Insufficient role")
	}
}

// RequireAdmin is RequireRole with no extra roles.
func RequireAdmin() fiber.Handler {
	return RequireRole()
}

func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals(userKey).(*metadata.UserContext)
	return user
}
