package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Dashboard      *handlers.DashboardHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
	// CreateLimiter, LoginLimiter and RegisterLimiter guard their routes; nil disables them.
	CreateLimiter   fiber.Handler
	LoginLimiter    fiber.Handler
	RegisterLimiter fiber.Handler
	Metrics         http.Handler
	UploadDir       string
	UploadPrefix    string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}
	if cfg.UploadDir != "" && cfg.UploadPrefix != "" {
		app.Static(cfg.UploadPrefix, cfg.UploadDir, fiber.Static{ByteRange: true})
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", orPass(cfg.RegisterLimiter), cfg.Users.Register)
	authGroup.Post("/login", orPass(cfg.LoginLimiter), cfg.Users.Login)
	authGroup.Post("/logout", cfg.Users.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)

	protected := api.Group("", cfg.AuthMiddleware.Handle)

	tickets := protected.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", orPass(cfg.CreateLimiter), cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/responses", cfg.Tickets.AddResponse)
	tickets.Post("/:id/assign", cfg.Tickets.AssignTicket)

	dashboard := protected.Group("/dashboard", auth.RequireStaff())
	dashboard.Get("/", cfg.Dashboard.Summary)
	dashboard.Get("/activity", cfg.Dashboard.Activity)

	// listing staff is also open to assigners; the service decides
	admin := protected.Group("/admin")
	admin.Get("/users", auth.RequireStaff(), cfg.Users.List)
	admin.Patch("/users/:id/role", auth.RequireRole(domain.RoleAdmin), cfg.Users.UpdateRole)

	if cfg.WS != nil {
		app.Get("/ws", cfg.WS.Upgrade, cfg.WS.Handler())
	}
}

func orPass(h fiber.Handler) fiber.Handler {
	if h == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return h
}
