package handlers

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
)

const wsIdentityKey = "ws_identity"

// WSHandler upgrades authenticated requests to realtime connections.
type WSHandler struct {
	ctx       context.Context
	hub       *realtime.Hub
	auth      *auth.AuthMiddleware
	authorize realtime.RoomAuthorizer
	cfg       realtime.ClientConfig
	logger    *zap.Logger
}

// NewWSHandler constructs handler. ctx bounds every connection's lifetime.
func NewWSHandler(ctx context.Context, hub *realtime.Hub, authMiddleware *auth.AuthMiddleware, authorize realtime.RoomAuthorizer, cfg realtime.ClientConfig, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{ctx: ctx, hub: hub, auth: authMiddleware, authorize: authorize, cfg: cfg, logger: logger.Named("ws")}
}

// Upgrade authenticates the handshake. Browsers cannot set headers on a
// websocket request, so a ?token= query value is accepted next to the
// Authorization header and the session cookie.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	var (
		identity domain.Identity
		err      error
	)
	if token := c.Query("token"); token != "" {
		identity, err = h.auth.Resolve(c.UserContext(), token)
	} else {
		identity, err = h.auth.Authenticate(c)
	}
	if err != nil {
		return err
	}
	c.Locals(wsIdentityKey, identity)
	return c.Next()
}

// Handler returns the fiber handler that runs one connection.
func (h *WSHandler) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		identity, ok := conn.Locals(wsIdentityKey).(domain.Identity)
		if !ok {
			_ = conn.Close()
			return
		}
		client := realtime.NewClient(conn, identity, h.hub, h.authorize, h.cfg, h.logger)
		client.Serve(h.ctx)
	})
}
