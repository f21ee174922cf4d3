package domain

import "time"

// Role enumerates the access level of an account.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleFirstLine  Role = "1st-line"
	RoleSecondLine Role = "2nd-line"
)

// IsStaff reports whether the role belongs to support staff.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleFirstLine || r == RoleSecondLine
}

func (r Role) Valid() bool {
	return r == RoleUser || r.IsStaff()
}

// CounterField names a per-user ticket counter.
type CounterField string

const (
	CounterAssigned CounterField = "tickets_assigned"
	CounterResolved CounterField = "tickets_resolved"
	CounterClosed   CounterField = "tickets_closed"
)

func (f CounterField) Valid() bool {
	return f == CounterAssigned || f == CounterResolved || f == CounterClosed
}

// User is an account that can open tickets or work on them.
type User struct {
	ID              string
	Name            string
	Email           string
	PasswordHash    string
	Role            Role
	TicketsAssigned int
	TicketsResolved int
	TicketsClosed   int
	CreatedAt       time.Time
}

// Identity returns the principal view of the user.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
