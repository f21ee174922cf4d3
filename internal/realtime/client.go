package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Conn is the subset of *websocket.Conn the client pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// RoomAuthorizer decides whether id may join room.
type RoomAuthorizer func(ctx context.Context, id domain.Identity, room string) error

// ClientConfig tunes a connection's pumps.
type ClientConfig struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	return c
}

// clientFrame is what browsers send: {"action":"join","room":"ticket:42"}.
type clientFrame struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

type controlReply struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Error string `json:"error,omitempty"`
}

// Client is a websocket Subscriber.
type Client struct {
	id        string
	identity  domain.Identity
	conn      Conn
	hub       *Hub
	authorize RoomAuthorizer
	cfg       ClientConfig
	logger    *zap.Logger

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient wraps conn for identity.
func NewClient(conn Conn, identity domain.Identity, hub *Hub, authorize RoomAuthorizer, cfg ClientConfig, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Client{
		id:        id,
		identity:  identity,
		conn:      conn,
		hub:       hub,
		authorize: authorize,
		cfg:       cfg,
		logger:    logger.With(zap.String("conn_id", id), zap.String("user_id", identity.UserID)),
		send:      make(chan []byte, cfg.SendBuffer),
		closed:    make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() domain.Identity { return c.identity }

// Deliver queues frame for the write pump; it never blocks.
func (c *Client) Deliver(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops both pumps and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// Serve registers the client and blocks until the connection ends.
func (c *Client) Serve(ctx context.Context) {
	if err := c.hub.Register(c); err != nil {
		c.logger.Warn("register failed", zap.Error(err))
		c.Close()
		return
	}
	c.logger.Debug("websocket connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.readPump(ctx)

	_ = c.hub.Unregister(c)
	c.Close()
	wg.Wait()
	c.logger.Debug("websocket disconnected")
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reply(controlReply{Event: "error", Error: "malformed frame"})
		return
	}

	switch frame.Action {
	case "join":
		if !ValidRoom(frame.Room) {
			c.reply(controlReply{Event: "error", Room: frame.Room, Error: ErrInvalidRoom.Error()})
			return
		}
		if c.authorize != nil {
			if err := c.authorize(ctx, c.identity, frame.Room); err != nil {
				c.reply(controlReply{Event: "error", Room: frame.Room, Error: "join denied"})
				return
			}
		}
		if err := c.hub.Join(c, frame.Room); err != nil {
			c.reply(controlReply{Event: "error", Room: frame.Room, Error: err.Error()})
			return
		}
		c.reply(controlReply{Event: "joined", Room: frame.Room})
	case "leave":
		if err := c.hub.Leave(c, frame.Room); err != nil {
			c.reply(controlReply{Event: "error", Room: frame.Room, Error: err.Error()})
			return
		}
		c.reply(controlReply{Event: "left", Room: frame.Room})
	default:
		c.reply(controlReply{Event: "error", Error: "unknown action"})
	}
}

func (c *Client) reply(r controlReply) {
	body, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.Deliver(body)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
