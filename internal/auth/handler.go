package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"form-engine/internal/engine"
	"form-engine/internal/store"
)

// UserStore is the persistence the auth endpoints need. *store.Store
// implements it.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, token string) (*store.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users  UserStore
	tokens *Tokens
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users UserStore, jwtSecret string) *AuthHandler {
	return &AuthHandler{users: users, tokens: NewTokens(jwtSecret)}
}

type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.users.FindUserByEmail(ctx, body.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logrus.WithError(err).Error("login lookup failed")
		}
		return engine.UnauthorizedError("Invalid email or password")
	}
	if !user.Active {
		return engine.UnauthorizedError("Account is disabled")
	}
	if !CheckPassword(body.Password, user.PasswordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	pair, err := h.generateTokenPair(ctx, user.ID, user.Roles)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. The used token is rotated out.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body tokenRequest
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()

	rt, err := h.users.FindRefreshToken(ctx, body.RefreshToken)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	if time.Now().After(rt.ExpiresAt) {
		_ = h.users.DeleteRefreshToken(ctx, body.RefreshToken)
		return engine.UnauthorizedError("Refresh token expired")
	}
	if !rt.UserActive {
		return engine.UnauthorizedError("Account is disabled")
	}

	if err := h.users.DeleteRefreshToken(ctx, body.RefreshToken); err != nil {
		logrus.WithError(err).Warn("rotate refresh token")
	}

	pair, err := h.generateTokenPair(ctx, rt.UserID, rt.Roles)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body tokenRequest
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	_ = h.users.DeleteRefreshToken(c.Context(), body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
}

func (h *AuthHandler) generateTokenPair(ctx context.Context, userID string, roles []string) (*TokenPair, error) {
	accessToken, err := h.tokens.Access(userID, roles)
	if err != nil {
		logrus.WithError(err).Error("sign access token")
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := NewRefreshToken()
	if err := h.users.CreateRefreshToken(ctx, userID, refreshToken, time.Now().Add(RefreshTokenTTL)); err != nil {
		logrus.WithError(err).Error("store refresh token")
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(h.tokens.AccessTTL.Seconds()),
	}, nil
}
