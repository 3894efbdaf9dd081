package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayApp(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv("NOTIFY_SERVICE_TOKEN", "gateway-secret")

	app := fiber.New()
	app.Use(GatewayAuthMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func TestGatewayAuthAcceptsBearerToken(t *testing.T) {
	app := newGatewayApp(t)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer gateway-secret")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestGatewayAuthAcceptsRawToken(t *testing.T) {
	app := newGatewayApp(t)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "gateway-secret")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestGatewayAuthRejectsMissingOrWrongToken(t *testing.T) {
	app := newGatewayApp(t)

	req := httptest.NewRequest("GET", "/ping", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestUserContextEnforcedOnSecuredPaths(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware())
	app.Get("/s/me", func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		return c.SendString(userID)
	})
	app.Get("/open", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	// Secured path without user context is rejected.
	resp, err := app.Test(httptest.NewRequest("GET", "/s/me", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	// With the gateway-set header it passes through.
	req := httptest.NewRequest("GET", "/s/me", nil)
	req.Header.Set("X-User-ID", "user-1")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// Unsecured paths don't require it.
	resp, err = app.Test(httptest.NewRequest("GET", "/open", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
