package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-engine/internal/config"
	"form-engine/internal/engine"
	"form-engine/internal/metadata"
	"form-engine/internal/store"
)

const secret = "test-secret"

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "auth"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx, config.AdminConfig{Email: "admin@localhost", Password: "changeme"}))
	return s
}

func testApp(t *testing.T, s *store.Store) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterAuthRoutes(app, NewAuthHandler(s, secret))
	app.Get("/me", AuthMiddleware(secret), func(c *fiber.Ctx) error {
		return c.JSON(GetUser(c))
	})
	app.Get("/admin", AuthMiddleware(secret), RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/edit", AuthMiddleware(secret), RequireRole("editor"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func login(t *testing.T, app *fiber.App, email, password string) (int, TokenPair) {
	t.Helper()
	status, raw := call(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{"email": email, "password": password})
	var out struct {
		Data TokenPair `json:"data"`
	}
	_ = json.Unmarshal(raw, &out)
	return status, out.Data
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens(secret)
	tok, err := tokens.Access("u1", []string{"editor"})
	require.NoError(t, err)

	claims, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, []string{"editor"}, claims.Roles)
	assert.True(t, claims.User().HasRole("editor"))

	_, err = NewTokens("other").Parse(tok)
	assert.Error(t, err)

	expired := NewTokens(secret)
	expired.AccessTTL = -time.Minute
	old, err := expired.Access("u1", nil)
	require.NoError(t, err)
	_, err = tokens.Parse(old)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword("s3cret", hash))
	assert.False(t, CheckPassword("nope", hash))
}

func TestLogin_RefreshRotates_Logout(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)

	status, _ := login(t, app, "admin@localhost", "wrong")
	assert.Equal(t, 401, status)

	status, pair := login(t, app, "admin@localhost", "changeme")
	require.Equal(t, 200, status)
	require.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, int(AccessTokenTTL.Seconds()), pair.ExpiresIn)

	status, raw := call(t, app, http.MethodGet, "/me", pair.AccessToken, nil)
	require.Equal(t, 200, status)
	var me metadata.UserContext
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.True(t, me.IsAdmin())

	status, raw = call(t, app, http.MethodPost, "/api/auth/refresh", "", fiber.Map{"refresh_token": pair.RefreshToken})
	require.Equal(t, 200, status, string(raw))

	status, _ = call(t, app, http.MethodPost, "/api/auth/refresh", "", fiber.Map{"refresh_token": pair.RefreshToken})
	assert.Equal(t, 401, status)

	var refreshed struct {
		Data TokenPair `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &refreshed))
	status, _ = call(t, app, http.MethodPost, "/api/auth/logout", "", fiber.Map{"refresh_token": refreshed.Data.RefreshToken})
	assert.Equal(t, 200, status)
	_, err := s.FindRefreshToken(context.Background(), refreshed.Data.RefreshToken)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefresh_Expired(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)
	ctx := context.Background()

	u, err := s.FindUserByEmail(ctx, "admin@localhost")
	require.NoError(t, err)
	require.NoError(t, s.CreateRefreshToken(ctx, u.ID, "old", time.Now().Add(-time.Hour)))

	status, raw := call(t, app, http.MethodPost, "/api/auth/refresh", "", fiber.Map{"refresh_token": "old"})
	assert.Equal(t, 401, status)
	assert.Contains(t, string(raw), "expired")
}

func TestMiddleware_Roles(t *testing.T) {
	s := testStore(t)
	app := testApp(t, s)

	status, _ := call(t, app, http.MethodGet, "/me", "", nil)
	assert.Equal(t, 401, status)
	status, _ = call(t, app, http.MethodGet, "/me", "garbage", nil)
	assert.Equal(t, 401, status)

	user, err := NewTokens(secret).Access("u2", []string{"user"})
	require.NoError(t, err)
	status, _ = call(t, app, http.MethodGet, "/admin", user, nil)
	assert.Equal(t, 403, status)
	status, _ = call(t, app, http.MethodGet, "/edit", user, nil)
	assert.Equal(t, 403, status)

	editor, err := NewTokens(secret).Access("u3", []string{"editor"})
	require.NoError(t, err)
	status, _ = call(t, app, http.MethodGet, "/edit", editor, nil)
	assert.Equal(t, 200, status)
}
