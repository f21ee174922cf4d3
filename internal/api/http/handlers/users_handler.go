package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// UsersHandler exposes auth endpoints and admin user management.
type UsersHandler struct {
	auth       *service.AuthService
	users      *service.UserService
	validate   *validator.Validate
	cookieName string
	secure     bool
}

// NewUsersHandler constructs handler. When cookieName is set, login also
// sets an HttpOnly session cookie.
func NewUsersHandler(authService *service.AuthService, userService *service.UserService, validate *validator.Validate, cookieName string, secure bool) *UsersHandler {
	return &UsersHandler{auth: authService, users: userService, validate: validate, cookieName: cookieName, secure: secure}
}

// Register handles POST /api/auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	session, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setCookie(c, session)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": sessionResponse(session)})
}

// Login handles POST /api/auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	session, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setCookie(c, session)
	return c.JSON(fiber.Map{"data": sessionResponse(session)})
}

// Logout handles POST /api/auth/logout. Tokens are stateless; only the cookie is cleared.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	if h.cookieName != "" {
		c.Cookie(&fiber.Cookie{
			Name:     h.cookieName,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			HTTPOnly: true,
			Secure:   h.secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /api/auth/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"id":    identity.UserID,
		"name":  identity.Name,
		"email": identity.Email,
		"role":  identity.Role,
	}})
}

// List handles GET /api/admin/users?role=1st-line,2nd-line.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	users, err := h.users.ListUsers(c.UserContext(), identity, splitQuery[domain.Role](c, "role"))
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.NewUserResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateRole handles PATCH /api/admin/users/:id/role.
func (h *UsersHandler) UpdateRole(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.UpdateRoleRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	user, err := h.users.UpdateUserRole(c.UserContext(), identity, c.Params("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

func (h *UsersHandler) setCookie(c *fiber.Ctx, session *service.Session) {
	if h.cookieName == "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func sessionResponse(session *service.Session) fiber.Map {
	return fiber.Map{
		"user": dto.NewUserResponse(session.User),
		"auth": dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
	}
}
