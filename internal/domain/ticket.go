package domain

import "time"

// TicketCategory classifies the reported problem.
type TicketCategory string

const (
	CategoryHardware TicketCategory = "Hardware"
	CategorySoftware TicketCategory = "Software"
	CategoryNetwork  TicketCategory = "Network"
	CategoryAccount  TicketCategory = "Account"
	CategoryOther    TicketCategory = "Other"
)

// Categories lists every category in display order.
var Categories = []TicketCategory{CategoryHardware, CategorySoftware, CategoryNetwork, CategoryAccount, CategoryOther}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "Open"
	StatusInProgress TicketStatus = "In Progress"
	StatusResolved   TicketStatus = "Resolved"
	StatusClosed     TicketStatus = "Closed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []TicketStatus{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "Low"
	PriorityMedium   TicketPriority = "Medium"
	PriorityHigh     TicketPriority = "High"
	PriorityCritical TicketPriority = "Critical"
)

// AssignedRole is the support tier a ticket is routed to.
type AssignedRole string

const (
	AssignedUnassigned AssignedRole = "unassigned"
	AssignedFirstLine  AssignedRole = "1st-line"
	AssignedSecondLine AssignedRole = "2nd-line"
)

// AssignedRoles lists every tier, unassigned last.
var AssignedRoles = []AssignedRole{AssignedFirstLine, AssignedSecondLine, AssignedUnassigned}

// Attachment references a stored blob.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
}

// Response is one entry in a ticket's conversation thread.
type Response struct {
	ID         string
	Text       string
	Attachment *Attachment
	AuthorID   string
	CreatedAt  time.Time
}

// Activity is an immutable audit trail entry.
type Activity struct {
	ID        string
	Action    string
	ActorID   string
	Message   string
	Timestamp time.Time
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	Title        string
	Description  string
	Category     TicketCategory
	Status       TicketStatus
	Priority     TicketPriority
	AssignedRole AssignedRole
	CreatedBy    string
	AssignedTo   *string
	Responses    []Response
	Activities   []Activity
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		cp.AssignedTo = &v
	}
	if t.ResolvedAt != nil {
		v := *t.ResolvedAt
		cp.ResolvedAt = &v
	}
	cp.Responses = make([]Response, len(t.Responses))
	for i, r := range t.Responses {
		if r.Attachment != nil {
			att := *r.Attachment
			r.Attachment = &att
		}
		cp.Responses[i] = r
	}
	cp.Activities = append([]Activity(nil), t.Activities...)
	return &cp
}

func (c TicketCategory) Valid() bool {
	switch c {
	case CategoryHardware, CategorySoftware, CategoryNetwork, CategoryAccount, CategoryOther:
		return true
	}
	return false
}

func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

func (p TicketPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders priorities from Low (0) to Critical (3).
func (p TicketPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

func (r AssignedRole) Valid() bool {
	switch r {
	case AssignedUnassigned, AssignedFirstLine, AssignedSecondLine:
		return true
	}
	return false
}
