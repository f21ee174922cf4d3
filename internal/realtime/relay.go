package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay mirrors hub publishes across processes over a Redis Pub/Sub channel.
// Frames carry the publishing node id so a node never re-delivers its own frames.
type RedisRelay struct {
	client  *redis.Client
	channel string
	node    string
	logger  *zap.Logger
}

// NewRedisRelay creates a relay bound to channel.
func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		node:    uuid.NewString(),
		logger:  logger.Named("relay"),
	}
}

// Node returns this process's relay identity.
func (r *RedisRelay) Node() string {
	return r.node
}

// Forward publishes msg for other nodes.
func (r *RedisRelay) Forward(ctx context.Context, msg Message) error {
	msg.Origin = r.node
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Run subscribes to the channel and hands foreign frames to hub until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel), zap.String("node", r.node))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(hub, m.Payload)
		}
	}
}

func (r *RedisRelay) handle(hub *Hub, payload string) {
	msg, ok := r.decode(payload)
	if !ok {
		return
	}
	if err := hub.Deliver(msg); err != nil {
		r.logger.Debug("relay delivery skipped", zap.Error(err))
	}
}

// decode parses a relayed frame and rejects our own or malformed ones.
func (r *RedisRelay) decode(payload string) (Message, bool) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("invalid relay payload", zap.Error(err))
		return Message{}, false
	}
	if msg.Origin == r.node || !ValidRoom(msg.Room) || len(msg.Frame) == 0 {
		return Message{}, false
	}
	return msg, true
}
