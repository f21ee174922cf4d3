package realtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

// unassignedLabel is shown to viewers when a ticket has no assignee.
const unassignedLabel = "Unassigned"

// Publisher is the part of *Hub the broadcaster needs.
type Publisher interface {
	Publish(ctx context.Context, room string, payload Payload) error
	PublishTo(ctx context.Context, room string, payload Payload, audience *Audience) error
	PublishLocal(room string, payload Payload) error
}

// Broadcaster turns committed domain events into room publishes.
type Broadcaster struct {
	hub    Publisher
	logger *zap.Logger
}

// NewBroadcaster creates a broadcaster publishing through hub.
func NewBroadcaster(hub Publisher, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{hub: hub, logger: logger.Named("broadcaster")}
}

// RegisterHandlers subscribes to the dispatcher.
func (b *Broadcaster) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, b.onTicketCreated)
	dispatcher.Subscribe(events.EventTicketUpdated, b.onTicketUpdated)
	dispatcher.Subscribe(events.EventResponseAdded, b.onResponseAdded)
	dispatcher.Subscribe(events.EventTicketDeleted, b.onTicketDeleted)
}

func (b *Broadcaster) onTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok || payload.Ticket == nil {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	ticket := payload.Ticket
	err := b.hub.PublishTo(ctx, TicketsListRoom, TicketCreated{
		Ticket:  SummaryOf(ticket),
		Creator: payload.CreatorName,
	}, &Audience{OwnerID: ticket.CreatedBy})
	b.refreshDashboards(ctx, "ticket-created", event.Timestamp)
	return err
}

func (b *Broadcaster) onTicketUpdated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketUpdatedPayload)
	if !ok || payload.Ticket == nil {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if payload.Changes.Empty() {
		return nil
	}
	ticket := payload.Ticket
	assignee := payload.AssigneeName
	if ticket.AssignedTo == nil || assignee == "" {
		assignee = unassignedLabel
	}

	detail := TicketUpdated{
		TicketID:            ticket.ID,
		Status:              ticket.Status,
		StatusChanged:       payload.Changes.Has(domain.FieldStatus),
		Priority:            ticket.Priority,
		PriorityChanged:     payload.Changes.Has(domain.FieldPriority),
		AssignedRole:        ticket.AssignedRole,
		AssignedRoleChanged: payload.Changes.Has(domain.FieldAssignedRole),
		AssignedTo:          assignee,
		AssignedToChanged:   payload.Changes.Has(domain.FieldAssignedTo),
		UpdatedAt:           ticket.UpdatedAt,
		UpdatedBy:           event.Actor.Name,
	}
	if err := b.hub.Publish(ctx, TicketRoom(ticket.ID), detail); err != nil {
		return err
	}

	err := b.hub.PublishTo(ctx, TicketsListRoom, TicketListUpdated{
		TicketID:   ticket.ID,
		Status:     ticket.Status,
		Priority:   ticket.Priority,
		AssignedTo: assignee,
		UpdatedAt:  ticket.UpdatedAt,
		UpdatedBy:  event.Actor.Name,
	}, &Audience{OwnerID: ticket.CreatedBy})
	b.refreshDashboards(ctx, "ticket-updated", event.Timestamp)
	return err
}

func (b *Broadcaster) onResponseAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ResponseAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	resp := payload.Response
	err := b.hub.Publish(ctx, TicketRoom(event.TicketID), ResponseReceived{
		ResponseID: resp.ID,
		TicketID:   event.TicketID,
		Text:       resp.Text,
		Attachment: resp.Attachment,
		UserName:   event.Actor.Name,
		IsStaff:    event.Actor.Role.IsStaff(),
		Timestamp:  resp.CreatedAt,
	})
	b.refreshDashboards(ctx, "response-received", event.Timestamp)
	return err
}

func (b *Broadcaster) onTicketDeleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketDeletedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	deleted := TicketDeleted{TicketID: event.TicketID, DeletedBy: event.Actor.Name}
	if err := b.hub.Publish(ctx, TicketRoom(event.TicketID), deleted); err != nil {
		return err
	}
	err := b.hub.PublishTo(ctx, TicketsListRoom, deleted, &Audience{OwnerID: payload.OwnerID})
	b.refreshDashboards(ctx, "ticket-deleted", event.Timestamp)
	return err
}

// RefreshDashboards asks this node's staff dashboards to re-fetch. The cron
// refresher runs on every node, so the trigger is not relayed.
func (b *Broadcaster) RefreshDashboards(_ context.Context, reason string) error {
	return b.hub.PublishLocal(StaffRoom, DashboardRefresh{Reason: reason, At: time.Now().UTC()})
}

func (b *Broadcaster) refreshDashboards(ctx context.Context, reason string, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := b.hub.Publish(ctx, StaffRoom, DashboardRefresh{Reason: reason, At: at}); err != nil {
		b.logger.Debug("dashboard refresh publish failed", zap.Error(err))
	}
}
