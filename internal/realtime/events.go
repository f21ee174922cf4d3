package realtime

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Event names on the wire.
const (
	EventTicketCreated     = "ticket-created"
	EventTicketUpdated     = "ticket-updated"
	EventTicketListUpdated = "ticket-list-updated"
	EventResponseReceived  = "response-received"
	EventTicketDeleted     = "ticket-deleted"
	EventDashboardRefresh  = "dashboard-refresh"
)

// Payload is implemented by every typed event body.
type Payload interface {
	EventName() string
}

// Envelope is the frame written to a connection.
type Envelope struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps payload for room into a JSON frame.
func Encode(room string, payload Payload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: payload.EventName(), Room: room, Data: data})
}

// TicketSummary is the public projection of a ticket broadcast to list viewers.
type TicketSummary struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// SummaryOf projects t without assignment or conversation data.
func SummaryOf(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		Status:      t.Status,
		Priority:    t.Priority,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TicketCreated announces a new ticket to list viewers.
type TicketCreated struct {
	Ticket  TicketSummary `json:"ticket"`
	Creator string        `json:"creator"`
}

func (TicketCreated) EventName() string { return EventTicketCreated }

// TicketUpdated carries new values plus a changed flag per tracked field.
// AssignedTo is the assignee display name, "Unassigned" when empty.
type TicketUpdated struct {
	TicketID            string                `json:"ticketId"`
	Status              domain.TicketStatus   `json:"status"`
	StatusChanged       bool                  `json:"statusChanged"`
	Priority            domain.TicketPriority `json:"priority"`
	PriorityChanged     bool                  `json:"priorityChanged"`
	AssignedRole        domain.AssignedRole   `json:"assignedRole"`
	AssignedRoleChanged bool                  `json:"assignedRoleChanged"`
	AssignedTo          string                `json:"assignedTo"`
	AssignedToChanged   bool                  `json:"assignedToChanged"`
	UpdatedAt           time.Time             `json:"updatedAt"`
	UpdatedBy           string                `json:"updatedBy"`
}

func (TicketUpdated) EventName() string { return EventTicketUpdated }

// TicketListUpdated is the reduced update sent to list viewers.
type TicketListUpdated struct {
	TicketID   string                `json:"ticketId"`
	Status     domain.TicketStatus   `json:"status"`
	Priority   domain.TicketPriority `json:"priority"`
	AssignedTo string                `json:"assignedTo"`
	UpdatedAt  time.Time             `json:"updatedAt"`
	UpdatedBy  string                `json:"updatedBy"`
}

func (TicketListUpdated) EventName() string { return EventTicketListUpdated }

// ResponseReceived announces a new conversation entry. ResponseID is stable so
// clients can drop frames they have already rendered.
type ResponseReceived struct {
	ResponseID string             `json:"responseId"`
	TicketID   string             `json:"ticketId"`
	Text       string             `json:"text"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
	UserName   string             `json:"userName"`
	IsStaff    bool               `json:"isStaff"`
	Timestamp  time.Time          `json:"timestamp"`
}

func (ResponseReceived) EventName() string { return EventResponseReceived }

// TicketDeleted tells viewers a ticket was removed.
type TicketDeleted struct {
	TicketID  string `json:"ticketId"`
	DeletedBy string `json:"deletedBy"`
}

func (TicketDeleted) EventName() string { return EventTicketDeleted }

// DashboardRefresh tells staff dashboards to re-fetch their aggregate.
type DashboardRefresh struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

func (DashboardRefresh) EventName() string { return EventDashboardRefresh }

// Audience narrows a publish to staff plus the owner of a ticket.
// A nil *Audience means every member of the room.
type Audience struct {
	OwnerID string `json:"ownerId"`
}

// Allows reports whether id may receive the frame.
func (a *Audience) Allows(id domain.Identity) bool {
	if a == nil || id.IsStaff() {
		return true
	}
	return a.OwnerID != "" && id.UserID == a.OwnerID
}
