package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var (
	// ErrNotFound is returned when a ticket or user id does not resolve.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key (user email) is already taken.
	ErrConflict = errors.New("record already exists")
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedBy     *string
	AssignedTo    *string
	Statuses      []domain.TicketStatus
	Priorities    []domain.TicketPriority
	Categories    []domain.TicketCategory
	AssignedRoles []domain.AssignedRole
	Limit         int
	Offset        int
}

// TicketPatch describes a partial field update. Nil pointers leave a column untouched.
type TicketPatch struct {
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority
	AssignedRole  *domain.AssignedRole
	SetAssignedTo bool
	AssignedTo    *string
	ResolvedAt    *time.Time
	UpdatedAt     time.Time
}

// ResponseEntry is a response joined with its ticket for activity feeds.
type ResponseEntry struct {
	TicketID    string
	TicketTitle string
	Response    domain.Response
}

// UserFilter narrows user listings.
type UserFilter struct {
	Roles []domain.Role
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Find(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	FindByID(ctx context.Context, id string) (*domain.Ticket, error)
	Insert(ctx context.Context, ticket *domain.Ticket) error
	UpdateFields(ctx context.Context, id string, patch TicketPatch) (*domain.Ticket, error)
	AppendResponse(ctx context.Context, ticketID string, response *domain.Response) error
	AppendActivity(ctx context.Context, ticketID string, activity *domain.Activity) error
	RecentResponses(ctx context.Context, filter TicketFilter, limit int) ([]ResponseEntry, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
	IncrementCounter(ctx context.Context, userID string, field domain.CounterField, delta int) error
}

// Store groups the repositories behind one transactional boundary.
type Store interface {
	Tickets() TicketRepository
	Users() UserRepository
	// WithinTx runs fn against a transactional view. Every write made through tx is
	// committed together when fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Ping(ctx context.Context) error
}
