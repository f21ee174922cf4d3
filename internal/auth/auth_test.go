package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, exp, err := tm.GenerateToken("u1", domain.RoleSecondLine)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, domain.RoleSecondLine, claims.Role)
}

func TestTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, _, err := tm.GenerateToken("u1", domain.RoleUser)
	require.NoError(t, err)

	_, err = NewTokenManager("other", time.Hour).ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.GenerateToken("u1", domain.RoleUser)
	require.NoError(t, err)
	_, err = tm.ParseToken(old)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "hunter22"))
	assert.ErrorIs(t, ComparePassword(hash, "wrong"), ErrPasswordMismatch)
}

func newAuthApp(t *testing.T) (*fiber.App, *TokenManager, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Users().Create(context.Background(), &domain.User{
		ID: "staff-1", Name: "Sam", Email: "sam@example.com", Role: domain.RoleFirstLine,
	}))
	tm := NewTokenManager("secret", time.Hour)
	mw := NewAuthMiddleware(tm, store.Users(), "jwt")

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.SendStatus(de.HTTPStatus)
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		id, ok := IdentityFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(id.Name)
	})
	app.Get("/staff", mw.Handle, RequireStaff(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })
	return app, tm, store
}

func TestMiddlewareAcceptsBearerAndCookie(t *testing.T) {
	app, tm, _ := newAuthApp(t)
	token, _, err := tm.GenerateToken("staff-1", domain.RoleFirstLine)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: token})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddlewareRejects(t *testing.T) {
	app, tm, _ := newAuthApp(t)
	ghost, _, err := tm.GenerateToken("ghost", domain.RoleAdmin)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"malformed":    "Token abc",
		"bad token":    "Bearer abc",
		"unknown user": "Bearer " + ghost,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRoleGuards(t *testing.T) {
	app, tm, _ := newAuthApp(t)
	token, _, err := tm.GenerateToken("staff-1", domain.RoleFirstLine)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
