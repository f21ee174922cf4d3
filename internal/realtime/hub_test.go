package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

type fakeSub struct {
	id       string
	identity domain.Identity

	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func newFakeSub(id string, role domain.Role) *fakeSub {
	return &fakeSub{id: id, identity: domain.Identity{UserID: "user-" + id, Name: id, Role: role}}
}

func (f *fakeSub) ID() string                { return f.id }
func (f *fakeSub) Identity() domain.Identity { return f.identity }

func (f *fakeSub) Deliver(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSub) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSub) envelopes(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (f *fakeSub) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type countingObserver struct {
	mu          sync.Mutex
	connections int
	delivered   map[string]int
	dropped     int
}

func (o *countingObserver) ConnectionsChanged(delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connections += delta
}

func (o *countingObserver) Delivered(event string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.delivered == nil {
		o.delivered = map[string]int{}
	}
	o.delivered[event] += n
}

func (o *countingObserver) Dropped(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func startHub(t *testing.T, observer Observer) *Hub {
	t.Helper()
	hub := NewHub(nil, observer)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func refresh(reason string) DashboardRefresh {
	return DashboardRefresh{Reason: reason, At: time.Unix(0, 0).UTC()}
}

func TestHubNeverJoinedReceivesNothing(t *testing.T) {
	hub := startHub(t, nil)
	ctx := context.Background()
	member := newFakeSub("a", domain.RoleUser)
	outsider := newFakeSub("b", domain.RoleUser)
	require.NoError(t, hub.Register(member))
	require.NoError(t, hub.Register(outsider))
	require.NoError(t, hub.Join(member, TicketRoom("t1")))

	require.NoError(t, hub.Publish(ctx, TicketRoom("t1"), refresh("x")))

	assert.Len(t, member.envelopes(t), 1)
	assert.Empty(t, outsider.envelopes(t))
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	hub := startHub(t, nil)
	ctx := context.Background()
	sub := newFakeSub("a", domain.RoleUser)
	require.NoError(t, hub.Register(sub))
	require.NoError(t, hub.Join(sub, TicketsListRoom))
	require.NoError(t, hub.Publish(ctx, TicketsListRoom, refresh("before")))

	require.NoError(t, hub.Leave(sub, TicketsListRoom))
	require.NoError(t, hub.Leave(sub, TicketsListRoom))
	require.NoError(t, hub.Publish(ctx, TicketsListRoom, refresh("after")))

	envs := sub.envelopes(t)
	require.Len(t, envs, 1)
	assert.Contains(t, string(envs[0].Data), "before")
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := startHub(t, nil)
	sub := newFakeSub("a", domain.RoleUser)
	require.NoError(t, hub.Register(sub))
	require.NoError(t, hub.Join(sub, TicketRoom("t1")))
	require.NoError(t, hub.Join(sub, TicketRoom("t1")))

	require.NoError(t, hub.Publish(context.Background(), TicketRoom("t1"), refresh("once")))
	assert.Len(t, sub.envelopes(t), 1)
	assert.Equal(t, 1, hub.RoomSize(TicketRoom("t1")))
}

func TestHubJoinValidation(t *testing.T) {
	hub := startHub(t, nil)
	sub := newFakeSub("a", domain.RoleUser)
	assert.ErrorIs(t, hub.Join(sub, TicketRoom("t1")), ErrUnknownSubscriber)
	require.NoError(t, hub.Register(sub))
	assert.ErrorIs(t, hub.Join(sub, "random"), ErrInvalidRoom)
	assert.ErrorIs(t, hub.Join(sub, "ticket:"), ErrInvalidRoom)
}

func TestHubStaffAutoJoinStaffRoom(t *testing.T) {
	hub := startHub(t, nil)
	staff := newFakeSub("s", domain.RoleFirstLine)
	user := newFakeSub("u", domain.RoleUser)
	require.NoError(t, hub.Register(staff))
	require.NoError(t, hub.Register(user))

	require.NoError(t, hub.Publish(context.Background(), StaffRoom, refresh("tick")))
	assert.Len(t, staff.envelopes(t), 1)
	assert.Empty(t, user.envelopes(t))
	assert.ElementsMatch(t, []string{StaffRoom}, hub.Rooms(staff))
}

func TestHubUnregisterRemovesFromAllRooms(t *testing.T) {
	obs := &countingObserver{}
	hub := startHub(t, obs)
	sub := newFakeSub("a", domain.RoleAdmin)
	require.NoError(t, hub.Register(sub))
	require.NoError(t, hub.Join(sub, TicketRoom("t1")))
	require.NoError(t, hub.Join(sub, TicketsListRoom))
	assert.Equal(t, 1, obs.connections)

	require.NoError(t, hub.Unregister(sub))
	require.NoError(t, hub.Unregister(sub))

	assert.Empty(t, hub.Rooms(sub))
	assert.Equal(t, 0, hub.RoomSize(TicketsListRoom))
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.Equal(t, 0, obs.connections)
}

func TestHubPreservesOrderWithinRoom(t *testing.T) {
	hub := startHub(t, nil)
	sub := newFakeSub("a", domain.RoleUser)
	require.NoError(t, hub.Register(sub))
	require.NoError(t, hub.Join(sub, TicketRoom("t1")))

	for i := 0; i < 20; i++ {
		require.NoError(t, hub.Publish(context.Background(), TicketRoom("t1"), refresh(fmt.Sprint(i))))
	}
	envs := sub.envelopes(t)
	require.Len(t, envs, 20)
	for i, env := range envs {
		var body DashboardRefresh
		require.NoError(t, json.Unmarshal(env.Data, &body))
		assert.Equal(t, fmt.Sprint(i), body.Reason)
	}
}

func TestHubAudienceFiltersNonStaff(t *testing.T) {
	hub := startHub(t, nil)
	owner := newFakeSub("owner", domain.RoleUser)
	other := newFakeSub("other", domain.RoleUser)
	staff := newFakeSub("staff", domain.RoleSecondLine)
	for _, s := range []*fakeSub{owner, other, staff} {
		require.NoError(t, hub.Register(s))
		require.NoError(t, hub.Join(s, TicketsListRoom))
	}

	err := hub.PublishTo(context.Background(), TicketsListRoom, refresh("x"), &Audience{OwnerID: owner.identity.UserID})
	require.NoError(t, err)

	assert.Len(t, owner.envelopes(t), 1)
	assert.Empty(t, other.envelopes(t))
	assert.Len(t, staff.envelopes(t), 1)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	obs := &countingObserver{}
	hub := startHub(t, obs)
	slow := newFakeSub("slow", domain.RoleUser)
	fast := newFakeSub("fast", domain.RoleUser)
	slow.full = true
	for _, s := range []*fakeSub{slow, fast} {
		require.NoError(t, hub.Register(s))
		require.NoError(t, hub.Join(s, TicketRoom("t1")))
	}

	require.NoError(t, hub.Publish(context.Background(), TicketRoom("t1"), refresh("x")))

	assert.True(t, slow.isClosed())
	assert.Len(t, fast.envelopes(t), 1)
	assert.Equal(t, 1, hub.RoomSize(TicketRoom("t1")))
	assert.Equal(t, 1, obs.dropped)
	assert.Equal(t, 1, obs.delivered[EventDashboardRefresh])
}

func TestHubPublishToEmptyRoomSucceeds(t *testing.T) {
	hub := startHub(t, nil)
	assert.NoError(t, hub.Publish(context.Background(), TicketRoom("nobody"), refresh("x")))
}

func TestHubClosedAfterRunExits(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	sub := newFakeSub("a", domain.RoleUser)
	require.NoError(t, hub.Register(sub))

	cancel()
	<-done

	assert.True(t, sub.isClosed())
	assert.ErrorIs(t, hub.Publish(context.Background(), TicketsListRoom, refresh("x")), ErrHubClosed)
}

type recordingForwarder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recordingForwarder) Forward(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestHubForwardsPublishesButNotRelayedDeliveries(t *testing.T) {
	fwd := &recordingForwarder{}
	hub := NewHub(nil, nil)
	hub.SetForwarder(fwd)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sub := newFakeSub("a", domain.RoleUser)
	require.NoError(t, hub.Register(sub))
	require.NoError(t, hub.Join(sub, TicketsListRoom))

	require.NoError(t, hub.Publish(ctx, TicketsListRoom, refresh("local")))
	frame, err := Encode(TicketsListRoom, refresh("remote"))
	require.NoError(t, err)
	require.NoError(t, hub.Deliver(Message{Room: TicketsListRoom, Event: EventDashboardRefresh, Frame: frame}))

	assert.Len(t, sub.envelopes(t), 2)
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	require.Len(t, fwd.msgs, 1)
	assert.Equal(t, EventDashboardRefresh, fwd.msgs[0].Event)
}

func TestScheduledRefreshStaysOnThisNode(t *testing.T) {
	fwd := &recordingForwarder{}
	hub := NewHub(nil, nil)
	hub.SetForwarder(fwd)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	staff := newFakeSub("s", domain.RoleFirstLine)
	require.NoError(t, hub.Register(staff))

	require.NoError(t, NewBroadcaster(hub, nil).RefreshDashboards(ctx, "scheduled"))

	envs := staff.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, EventDashboardRefresh, envs[0].Event)
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	assert.Empty(t, fwd.msgs)
}
