package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

func broadcastFixture(t *testing.T) (*Hub, events.Dispatcher) {
	t.Helper()
	hub := startHub(t, nil)
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewBroadcaster(hub, nil).RegisterHandlers(dispatcher)
	return hub, dispatcher
}

func lastOf(t *testing.T, sub *fakeSub, event string) json.RawMessage {
	t.Helper()
	envs := sub.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == event {
			return envs[i].Data
		}
	}
	t.Fatalf("no %s frame received", event)
	return nil
}

func TestBroadcasterTicketCreatedGoesToList(t *testing.T) {
	hub, dispatcher := broadcastFixture(t)
	list := newFakeSub("list", domain.RoleAdmin)
	require.NoError(t, hub.Register(list))
	require.NoError(t, hub.Join(list, TicketsListRoom))

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	assignee := "staff-1"
	ticket := &domain.Ticket{
		ID: "t1", Title: "VPN down", Description: "cannot connect", Category: domain.CategoryNetwork,
		Status: domain.StatusOpen, Priority: domain.PriorityMedium, CreatedBy: "u1",
		AssignedTo: &assignee, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventTicketCreated, TicketID: "t1",
		Payload: events.TicketCreatedPayload{Ticket: ticket, CreatorName: "Uma"},
	}))

	var body map[string]any
	require.NoError(t, json.Unmarshal(lastOf(t, list, EventTicketCreated), &body))
	assert.Equal(t, "Uma", body["creator"])
	inner := body["ticket"].(map[string]any)
	assert.Equal(t, "t1", inner["id"])
	assert.Equal(t, "Network", inner["category"])
	assert.NotContains(t, inner, "assignedTo")
	assert.NotContains(t, inner, "responses")

	// staff dashboards are nudged as well
	assert.NotNil(t, lastOf(t, list, EventDashboardRefresh))
}

func TestBroadcasterTicketUpdatedFlags(t *testing.T) {
	hub, dispatcher := broadcastFixture(t)
	detail := newFakeSub("detail", domain.RoleUser)
	detail.identity.UserID = "u1"
	stranger := newFakeSub("stranger", domain.RoleUser)
	for _, s := range []*fakeSub{detail, stranger} {
		require.NoError(t, hub.Register(s))
		require.NoError(t, hub.Join(s, TicketsListRoom))
	}
	require.NoError(t, hub.Join(detail, TicketRoom("t1")))

	changes := domain.ChangeSet{}
	changes.Record(domain.FieldStatus, string(domain.StatusOpen), string(domain.StatusResolved))
	ticket := &domain.Ticket{ID: "t1", Status: domain.StatusResolved, Priority: domain.PriorityHigh, CreatedBy: "u1"}

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventTicketUpdated, TicketID: "t1", Actor: events.Actor{Name: "Ada", Role: domain.RoleAdmin},
		Payload: events.TicketUpdatedPayload{Ticket: ticket, Changes: changes},
	}))

	var upd TicketUpdated
	require.NoError(t, json.Unmarshal(lastOf(t, detail, EventTicketUpdated), &upd))
	assert.True(t, upd.StatusChanged)
	assert.False(t, upd.PriorityChanged)
	assert.False(t, upd.AssignedToChanged)
	assert.Equal(t, "Unassigned", upd.AssignedTo)
	assert.Equal(t, "Ada", upd.UpdatedBy)

	var list TicketListUpdated
	require.NoError(t, json.Unmarshal(lastOf(t, detail, EventTicketListUpdated), &list))
	assert.Equal(t, domain.StatusResolved, list.Status)

	assert.Empty(t, stranger.envelopes(t), "non-owner must not see list updates for other tickets")
}

func TestBroadcasterEmptyChangeSetPublishesNothing(t *testing.T) {
	hub, dispatcher := broadcastFixture(t)
	sub := newFakeSub("a", domain.RoleAdmin)
	require.NoError(t, hub.Register(sub))
	require.NoError(t, hub.Join(sub, TicketRoom("t1")))

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventTicketUpdated, TicketID: "t1",
		Payload: events.TicketUpdatedPayload{Ticket: &domain.Ticket{ID: "t1"}, Changes: domain.ChangeSet{}},
	}))
	assert.Empty(t, sub.envelopes(t))
}

func TestBroadcasterResponseReceived(t *testing.T) {
	hub, dispatcher := broadcastFixture(t)
	sub := newFakeSub("a", domain.RoleUser)
	require.NoError(t, hub.Register(sub))
	require.NoError(t, hub.Join(sub, TicketRoom("t1")))

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventResponseAdded, TicketID: "t1",
		Actor: events.Actor{UserID: "s1", Name: "Sam", Role: domain.RoleFirstLine},
		Payload: events.ResponseAddedPayload{OwnerID: "u1", Response: domain.Response{
			ID: "r1", Text: "checking now", AuthorID: "s1", CreatedAt: at,
			Attachment: &domain.Attachment{URL: "/uploads/x.png", MimeType: "image/png"},
		}},
	}))

	var resp ResponseReceived
	require.NoError(t, json.Unmarshal(lastOf(t, sub, EventResponseReceived), &resp))
	assert.Equal(t, "r1", resp.ResponseID)
	assert.True(t, resp.IsStaff)
	assert.Equal(t, "Sam", resp.UserName)
	assert.Equal(t, "image/png", resp.Attachment.MimeType)
	assert.True(t, at.Equal(resp.Timestamp))
}

func TestBroadcasterTicketDeleted(t *testing.T) {
	hub, dispatcher := broadcastFixture(t)
	viewer := newFakeSub("v", domain.RoleUser)
	viewer.identity.UserID = "u1"
	require.NoError(t, hub.Register(viewer))
	require.NoError(t, hub.Join(viewer, TicketRoom("t1")))
	require.NoError(t, hub.Join(viewer, TicketsListRoom))

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventTicketDeleted, TicketID: "t1", Actor: events.Actor{Name: "Ada"},
		Payload: events.TicketDeletedPayload{OwnerID: "u1"},
	}))

	envs := viewer.envelopes(t)
	require.Len(t, envs, 2)
	assert.Equal(t, TicketRoom("t1"), envs[0].Room)
	assert.Equal(t, TicketsListRoom, envs[1].Room)
}

func TestBroadcasterRejectsWrongPayload(t *testing.T) {
	hub := startHub(t, nil)
	b := NewBroadcaster(hub, nil)
	err := b.onTicketCreated(context.Background(), events.Event{Type: events.EventTicketCreated, Payload: "nope"})
	assert.Error(t, err)
}
