package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// pipeConn feeds scripted inbound frames and records outbound ones.
type pipeConn struct {
	inbound chan []byte

	mu      sync.Mutex
	written [][]byte
	closed  bool
	closeCh chan struct{}
	once    sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{inbound: make(chan []byte, 8), closeCh: make(chan struct{})}
}

func (p *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-p.inbound:
		return 1, msg, nil
	case <-p.closeCh:
		return 0, nil, io.EOF
	}
}

func (p *pipeConn) WriteMessage(messageType int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("closed")
	}
	if messageType == 1 {
		p.written = append(p.written, data)
	}
	return nil
}

func (p *pipeConn) SetReadDeadline(time.Time) error           { return nil }
func (p *pipeConn) SetWriteDeadline(time.Time) error          { return nil }
func (p *pipeConn) SetReadLimit(int64)                        {}
func (p *pipeConn) SetPongHandler(func(appData string) error) {}

func (p *pipeConn) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.closeCh)
	})
	return nil
}

func (p *pipeConn) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, w := range p.written {
		var env struct {
			Event string `json:"event"`
		}
		if json.Unmarshal(w, &env) == nil {
			out = append(out, env.Event)
		}
	}
	return out
}

func sendFrame(t *testing.T, conn *pipeConn, action, room string) {
	t.Helper()
	body, err := json.Marshal(clientFrame{Action: action, Room: room})
	require.NoError(t, err)
	conn.inbound <- body
}

func TestClientJoinPublishLeave(t *testing.T) {
	hub := startHub(t, nil)
	conn := newPipeConn()
	id := domain.Identity{UserID: "u1", Name: "Uma", Role: domain.RoleUser}
	denyOthers := func(_ context.Context, who domain.Identity, room string) error {
		if room == TicketRoom("secret") {
			return errors.New("forbidden")
		}
		return nil
	}
	client := NewClient(conn, id, hub, denyOthers, ClientConfig{}, nil)

	done := make(chan struct{})
	go func() {
		client.Serve(context.Background())
		close(done)
	}()

	sendFrame(t, conn, "join", TicketRoom("t1"))
	sendFrame(t, conn, "join", TicketRoom("secret"))
	require.Eventually(t, func() bool { return len(conn.events()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"joined", "error"}, conn.events())
	assert.Equal(t, 0, hub.RoomSize(TicketRoom("secret")))

	require.NoError(t, hub.Publish(context.Background(), TicketRoom("t1"), refresh("hello")))
	require.Eventually(t, func() bool { return len(conn.events()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, EventDashboardRefresh, conn.events()[2])

	sendFrame(t, conn, "leave", TicketRoom("t1"))
	require.Eventually(t, func() bool { return len(conn.events()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.RoomSize(TicketRoom("t1")))

	_ = conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after close")
	}
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestClientRejectsMalformedFrames(t *testing.T) {
	hub := startHub(t, nil)
	conn := newPipeConn()
	client := NewClient(conn, domain.Identity{UserID: "u1"}, hub, nil, ClientConfig{}, nil)
	go client.Serve(context.Background())
	t.Cleanup(func() { _ = conn.Close() })

	conn.inbound <- []byte("not json")
	sendFrame(t, conn, "dance", TicketsListRoom)
	sendFrame(t, conn, "join", "lobby")

	require.Eventually(t, func() bool { return len(conn.events()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"error", "error", "error"}, conn.events())
}

func TestClientDeliverAfterCloseFails(t *testing.T) {
	conn := newPipeConn()
	client := NewClient(conn, domain.Identity{}, NewHub(nil, nil), nil, ClientConfig{SendBuffer: 1}, nil)
	assert.True(t, client.Deliver([]byte("{}")))
	assert.False(t, client.Deliver([]byte("{}")), "buffer full")
	client.Close()
	client.Close()
	assert.False(t, client.Deliver([]byte("{}")))
}
