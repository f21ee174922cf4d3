package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const identityKey = "auth_identity"

// AuthMiddleware validates bearer tokens (or the session cookie) and loads the
// acting identity.
type AuthMiddleware struct {
	tokens     *TokenManager
	users      repository.UserRepository
	cookieName string
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, cookieName: cookieName}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	identity, err := m.Authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(identityKey, identity)
	return c.Next()
}

// Authenticate resolves the request's credentials without continuing the chain.
func (m *AuthMiddleware) Authenticate(c *fiber.Ctx) (domain.Identity, error) {
	token, err := m.tokenFrom(c)
	if err != nil {
		return domain.Identity{}, err
	}
	return m.Resolve(c.UserContext(), token)
}

// Resolve turns a raw token into the identity of a user that still exists.
func (m *AuthMiddleware) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return domain.Identity{}, apperrors.NewUnauthorized("invalid token")
	}
	user, err := m.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Identity{}, apperrors.NewUnauthorized("user not found")
		}
		return domain.Identity{}, apperrors.MapError(err)
	}
	return user.Identity(), nil
}

func (m *AuthMiddleware) tokenFrom(c *fiber.Ctx) (string, error) {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", apperrors.NewUnauthorized("invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if m.cookieName != "" {
		if cookie := c.Cookies(m.cookieName); cookie != "" {
			return cookie, nil
		}
	}
	return "", apperrors.NewUnauthorized("missing credentials")
}

// IdentityFromContext retrieves the authenticated identity.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok
}

// SetIdentity stores identity on the request. Handler tests use it in place of Handle.
func SetIdentity(c *fiber.Ctx, identity domain.Identity) {
	c.Locals(identityKey, identity)
}
