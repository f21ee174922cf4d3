package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var (
	// ErrHubClosed is returned once Run has exited.
	ErrHubClosed = errors.New("realtime hub closed")
	// ErrUnknownSubscriber is returned when joining before Register.
	ErrUnknownSubscriber = errors.New("subscriber not registered")
	// ErrInvalidRoom is returned for names outside the fixed room kinds.
	ErrInvalidRoom = errors.New("invalid room")
)

// Subscriber is one connected viewer.
type Subscriber interface {
	ID() string
	Identity() domain.Identity
	// Deliver queues frame without blocking; false means the subscriber cannot keep up.
	Deliver(frame []byte) bool
	Close()
}

// Observer receives hub statistics. *observability.Metrics implements it.
type Observer interface {
	ConnectionsChanged(delta int)
	Delivered(event string, n int)
	Dropped(reason string)
}

// Forwarder relays locally published frames to other processes.
type Forwarder interface {
	Forward(ctx context.Context, msg Message) error
}

// Message is a published frame as it travels through the hub and the relay.
type Message struct {
	Origin   string          `json:"origin,omitempty"`
	Room     string          `json:"room"`
	Event    string          `json:"event"`
	Frame    json.RawMessage `json:"frame"`
	Audience *Audience       `json:"audience,omitempty"`
}

type command struct {
	apply func()
	done  chan struct{}
}

// Hub owns room membership. All state is touched only by the Run goroutine, so
// publishes to one room are delivered in call order.
type Hub struct {
	logger   *zap.Logger
	observer Observer

	commands chan command
	stopped  chan struct{}
	stopOnce sync.Once

	forwarder Forwarder

	subs    map[string]Subscriber
	rooms   map[string]map[string]Subscriber
	members map[string]map[string]struct{}
}

// NewHub constructs a hub; call Run to start dispatching.
func NewHub(logger *zap.Logger, observer Observer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logger.Named("hub"),
		observer: observer,
		commands: make(chan command, 256),
		stopped:  make(chan struct{}),
		subs:     make(map[string]Subscriber),
		rooms:    make(map[string]map[string]Subscriber),
		members:  make(map[string]map[string]struct{}),
	}
}

// SetForwarder attaches a cross-process relay. Call before Run.
func (h *Hub) SetForwarder(f Forwarder) {
	h.forwarder = f
}

// Run processes commands until ctx is done, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			cmd.apply()
			close(cmd.done)
		}
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() {
		close(h.stopped)
		for id, sub := range h.subs {
			sub.Close()
			h.remove(id)
		}
		h.logger.Info("realtime hub stopped")
	})
}

// do runs fn on the dispatch goroutine and waits for it to finish.
func (h *Hub) do(fn func()) error {
	cmd := command{apply: fn, done: make(chan struct{})}
	select {
	case <-h.stopped:
		return ErrHubClosed
	case h.commands <- cmd:
	}
	select {
	case <-cmd.done:
		return nil
	case <-h.stopped:
		return ErrHubClosed
	}
}

// Register adds sub to the hub. Staff subscribers join StaffRoom.
func (h *Hub) Register(sub Subscriber) error {
	return h.do(func() {
		if _, exists := h.subs[sub.ID()]; exists {
			return
		}
		h.subs[sub.ID()] = sub
		h.members[sub.ID()] = make(map[string]struct{})
		if h.observer != nil {
			h.observer.ConnectionsChanged(1)
		}
		if sub.Identity().IsStaff() {
			h.join(sub, StaffRoom)
		}
		h.logger.Debug("subscriber registered",
			zap.String("subscriber", sub.ID()),
			zap.String("user_id", sub.Identity().UserID))
	})
}

// Unregister removes sub from every room. Unknown subscribers are ignored.
func (h *Hub) Unregister(sub Subscriber) error {
	return h.do(func() {
		if _, ok := h.subs[sub.ID()]; !ok {
			return
		}
		h.remove(sub.ID())
		h.logger.Debug("subscriber unregistered", zap.String("subscriber", sub.ID()))
	})
}

// Join adds sub to room; joining twice is a no-op.
func (h *Hub) Join(sub Subscriber, room string) error {
	if !ValidRoom(room) {
		return ErrInvalidRoom
	}
	var err error
	doErr := h.do(func() {
		if _, ok := h.subs[sub.ID()]; !ok {
			err = ErrUnknownSubscriber
			return
		}
		h.join(sub, room)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Leave removes sub from room; leaving a room not joined is a no-op.
func (h *Hub) Leave(sub Subscriber, room string) error {
	return h.do(func() {
		h.leave(sub.ID(), room)
	})
}

// Publish delivers payload to every member of room. An empty room is not an error.
func (h *Hub) Publish(ctx context.Context, room string, payload Payload) error {
	return h.PublishTo(ctx, room, payload, nil)
}

// PublishTo delivers payload to the members of room that audience allows.
func (h *Hub) PublishTo(ctx context.Context, room string, payload Payload, audience *Audience) error {
	frame, err := Encode(room, payload)
	if err != nil {
		return err
	}
	msg := Message{Room: room, Event: payload.EventName(), Frame: frame, Audience: audience}
	if err := h.Deliver(msg); err != nil {
		return err
	}
	if h.forwarder != nil {
		if err := h.forwarder.Forward(ctx, msg); err != nil {
			h.logger.Warn("relay forward failed", zap.String("room", room), zap.Error(err))
		}
	}
	return nil
}

// PublishLocal delivers payload to this process's members of room without
// forwarding it. Triggers that every node raises on its own use it.
func (h *Hub) PublishLocal(room string, payload Payload) error {
	frame, err := Encode(room, payload)
	if err != nil {
		return err
	}
	return h.Deliver(Message{Room: room, Event: payload.EventName(), Frame: frame})
}

// Deliver fans an already encoded message out to local members only. The relay
// uses it for frames published on other nodes.
func (h *Hub) Deliver(msg Message) error {
	return h.do(func() {
		h.fanOut(msg)
	})
}

// Rooms lists the rooms sub currently belongs to.
func (h *Hub) Rooms(sub Subscriber) []string {
	var rooms []string
	_ = h.do(func() {
		for room := range h.members[sub.ID()] {
			rooms = append(rooms, room)
		}
	})
	return rooms
}

// RoomSize returns the member count of room.
func (h *Hub) RoomSize(room string) int {
	var n int
	_ = h.do(func() {
		n = len(h.rooms[room])
	})
	return n
}

// ConnectionCount returns the number of registered subscribers.
func (h *Hub) ConnectionCount() int {
	var n int
	_ = h.do(func() {
		n = len(h.subs)
	})
	return n
}

func (h *Hub) join(sub Subscriber, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]Subscriber)
		h.rooms[room] = members
	}
	members[sub.ID()] = sub
	h.members[sub.ID()][room] = struct{}{}
}

func (h *Hub) leave(subID, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, subID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.members[subID]; ok {
		delete(rooms, room)
	}
}

func (h *Hub) remove(subID string) {
	for room := range h.members[subID] {
		h.leave(subID, room)
	}
	delete(h.members, subID)
	delete(h.subs, subID)
	if h.observer != nil {
		h.observer.ConnectionsChanged(-1)
	}
}

func (h *Hub) fanOut(msg Message) {
	members := h.rooms[msg.Room]
	if len(members) == 0 {
		return
	}
	delivered := 0
	var slow []Subscriber
	for _, sub := range members {
		if !msg.Audience.Allows(sub.Identity()) {
			continue
		}
		if sub.Deliver(msg.Frame) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}
	for _, sub := range slow {
		h.logger.Warn("dropping slow subscriber", zap.String("subscriber", sub.ID()), zap.String("room", msg.Room))
		h.remove(sub.ID())
		sub.Close()
		if h.observer != nil {
			h.observer.Dropped("slow_consumer")
		}
	}
	if h.observer != nil {
		h.observer.Delivered(msg.Event, delivered)
	}
}
