package policy

import (
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Action is an operation subject to access control.
type Action string

const (
	ActionViewTicket    Action = "viewTicket"
	ActionRespond       Action = "respond"
	ActionUpdateFields  Action = "updateFields"
	ActionAssign        Action = "assign"
	ActionDeleteTicket  Action = "deleteTicket"
	ActionViewDashboard Action = "viewDashboard"
	ActionManageUsers   Action = "manageUsers"
)

// AssignmentMode selects who may change assignedTo/assignedRole.
type AssignmentMode string

const (
	// AssignAdminOnly restricts assignment to admins; assignedRole follows the same rule.
	AssignAdminOnly AssignmentMode = "admin"
	// AssignAnyStaff lets every staff role assign tickets.
	AssignAnyStaff AssignmentMode = "staff"
)

// ParseAssignmentMode maps a config value to a mode.
func ParseAssignmentMode(v string) (AssignmentMode, error) {
	switch AssignmentMode(strings.ToLower(strings.TrimSpace(v))) {
	case "", AssignAdminOnly:
		return AssignAdminOnly, nil
	case AssignAnyStaff:
		return AssignAnyStaff, nil
	}
	return "", fmt.Errorf("unknown assignment policy %q", v)
}

// Policy evaluates role-based access. The zero value uses AssignAdminOnly.
type Policy struct {
	Assignment AssignmentMode
}

// New builds a policy for the given assignment mode.
func New(mode AssignmentMode) Policy {
	return Policy{Assignment: mode}
}

// CanPerform reports whether id may perform action, optionally against ticket.
// It has no side effects and keeps no state.
func (p Policy) CanPerform(id domain.Identity, action Action, ticket *domain.Ticket) bool {
	switch action {
	case ActionViewTicket, ActionRespond:
		if id.IsStaff() {
			return true
		}
		return ticket != nil && id.UserID != "" && ticket.CreatedBy == id.UserID
	case ActionUpdateFields, ActionViewDashboard:
		return id.IsStaff()
	case ActionAssign:
		if p.Assignment == AssignAnyStaff {
			return id.IsStaff()
		}
		return id.Role == domain.RoleAdmin
	case ActionDeleteTicket, ActionManageUsers:
		return id.Role == domain.RoleAdmin
	}
	return false
}

// ActionForField returns the action guarding a tracked ticket field.
func (p Policy) ActionForField(field domain.TrackedField) Action {
	switch field {
	case domain.FieldAssignedTo:
		return ActionAssign
	case domain.FieldAssignedRole:
		if p.Assignment == AssignAnyStaff {
			return ActionUpdateFields
		}
		return ActionAssign
	default:
		return ActionUpdateFields
	}
}
