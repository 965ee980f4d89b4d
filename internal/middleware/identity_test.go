package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentityApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireIdentity(), func(c *fiber.Ctx) error {
		userID, role, ok := Identity(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(userID + ":" + role.String())
	})
	return app
}

func TestRequireIdentity(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "user and role",
			headers:    map[string]string{HeaderUserID: "u1", HeaderUserRole: "Teacher"},
			wantStatus: fiber.StatusOK,
			wantBody:   "u1:teacher",
		},
		{
			name:       "first of plural roles",
			headers:    map[string]string{HeaderUserID: "u2", HeaderUserRoles: "school,admin"},
			wantStatus: fiber.StatusOK,
			wantBody:   "u2:school",
		},
		{
			name:       "missing user",
			headers:    map[string]string{HeaderUserRole: "student"},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "unknown role",
			headers:    map[string]string{HeaderUserID: "u1", HeaderUserRole: "admin"},
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "missing role",
			headers:    map[string]string{HeaderUserID: "u1"},
			wantStatus: fiber.StatusBadRequest,
		},
	}

	app := newIdentityApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tt.wantBody, string(body))
			}
		})
	}
}

func TestIdentityWithoutMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, _, ok := Identity(c)
		assert.False(t, ok)
		return c.SendStatus(fiber.StatusNoContent)
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
