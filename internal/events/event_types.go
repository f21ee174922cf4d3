package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated EventType = "ticket_created"
	EventTicketUpdated EventType = "ticket_updated"
	EventResponseAdded EventType = "response_added"
	EventTicketDeleted EventType = "ticket_deleted"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Name   string      `json:"name"`
	Role   domain.Role `json:"role"`
}

// ActorFrom copies the relevant parts of an identity.
func ActorFrom(id domain.Identity) Actor {
	return Actor{UserID: id.UserID, Name: id.Name, Role: id.Role}
}

// Event represents a domain event emitted by services after a mutation commits.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload carries the stored ticket and the creator's display name.
type TicketCreatedPayload struct {
	Ticket      *domain.Ticket `json:"ticket"`
	CreatorName string         `json:"creator_name"`
}

// TicketUpdatedPayload carries the post-update ticket and its non-empty change set.
// AssigneeName is empty when the ticket is unassigned.
type TicketUpdatedPayload struct {
	Ticket       *domain.Ticket   `json:"ticket"`
	Changes      domain.ChangeSet `json:"changes"`
	AssigneeName string           `json:"assignee_name,omitempty"`
}

// ResponseAddedPayload payload.
type ResponseAddedPayload struct {
	OwnerID  string          `json:"owner_id"`
	Response domain.Response `json:"response"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
}
