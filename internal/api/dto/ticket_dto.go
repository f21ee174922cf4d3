package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload. Priority defaults to Medium.
type CreateTicketRequest struct {
	Title       string                `json:"title" validate:"required,max=200"`
	Description string                `json:"description" validate:"required,max=10000"`
	Category    domain.TicketCategory `json:"category" validate:"required,oneof=Hardware Software Network Account Other"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=Low Medium High Critical"`
}

// UpdateTicketRequest lists fields to set; absent fields stay untouched.
// assignedTo "" unassigns.
type UpdateTicketRequest struct {
	Status       *domain.TicketStatus   `json:"status" validate:"omitempty,oneof=Open 'In Progress' Resolved Closed"`
	Priority     *domain.TicketPriority `json:"priority" validate:"omitempty,oneof=Low Medium High Critical"`
	AssignedRole *domain.AssignedRole   `json:"assignedRole" validate:"omitempty,oneof=unassigned 1st-line 2nd-line"`
	AssignedTo   *string                `json:"assignedTo"`
}

// AssignTicketRequest payload. An empty assignedTo unassigns.
type AssignTicketRequest struct {
	AssignedTo   string               `json:"assignedTo"`
	AssignedRole *domain.AssignedRole `json:"assignedRole" validate:"omitempty,oneof=unassigned 1st-line 2nd-line"`
}

// CreateResponseRequest is the JSON form of a response; multipart uploads send
// the same field as a form value next to the file.
type CreateResponseRequest struct {
	Text string `json:"text" form:"text" validate:"max=10000"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     domain.TicketCategory `json:"category"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	AssignedRole domain.AssignedRole   `json:"assignedRole"`
	CreatedBy    string                `json:"createdBy"`
	AssignedTo   *string               `json:"assignedTo"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
	ResolvedAt   *time.Time            `json:"resolvedAt,omitempty"`
}

// UserRef is a user id with its display name.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Creator    UserRef            `json:"creator"`
	Assignee   *UserRef           `json:"assignee,omitempty"`
	Responses  []ResponseResponse `json:"responses"`
	Activities []ActivityResponse `json:"activities"`
}

// ResponseResponse represents one conversation entry.
type ResponseResponse struct {
	ID         string             `json:"id"`
	Text       string             `json:"text"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
	Author     UserRef            `json:"author"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// ActivityResponse is one audit entry.
type ActivityResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Actor     UserRef   `json:"actor"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeResponse echoes what an update changed.
type ChangeResponse struct {
	Ticket  TicketSummary    `json:"ticket"`
	Changes domain.ChangeSet `json:"changes"`
}
