package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var allActions = []Action{
	ActionViewTicket, ActionRespond, ActionUpdateFields, ActionAssign,
	ActionDeleteTicket, ActionViewDashboard, ActionManageUsers,
}

func identity(role domain.Role) domain.Identity {
	return domain.Identity{UserID: "u-" + string(role), Name: string(role), Role: role}
}

func TestCanPerformMatrix(t *testing.T) {
	owner := identity(domain.RoleUser)
	stranger := domain.Identity{UserID: "someone-else", Role: domain.RoleUser}
	ticket := &domain.Ticket{ID: "t-1", CreatedBy: owner.UserID}
	p := New(AssignAdminOnly)

	cases := []struct {
		name   string
		who    domain.Identity
		action Action
		want   bool
	}{
		{"owner views", owner, ActionViewTicket, true},
		{"owner responds", owner, ActionRespond, true},
		{"stranger views", stranger, ActionViewTicket, false},
		{"stranger responds", stranger, ActionRespond, false},
		{"owner updates", owner, ActionUpdateFields, false},
		{"first line views", identity(domain.RoleFirstLine), ActionViewTicket, true},
		{"first line updates", identity(domain.RoleFirstLine), ActionUpdateFields, true},
		{"first line assigns", identity(domain.RoleFirstLine), ActionAssign, false},
		{"second line dashboard", identity(domain.RoleSecondLine), ActionViewDashboard, true},
		{"second line deletes", identity(domain.RoleSecondLine), ActionDeleteTicket, false},
		{"admin assigns", identity(domain.RoleAdmin), ActionAssign, true},
		{"admin deletes", identity(domain.RoleAdmin), ActionDeleteTicket, true},
		{"admin manages users", identity(domain.RoleAdmin), ActionManageUsers, true},
		{"user dashboard", owner, ActionViewDashboard, false},
		{"user manages users", owner, ActionManageUsers, false},
		{"unknown action", identity(domain.RoleAdmin), Action("explode"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.CanPerform(tc.who, tc.action, ticket))
		})
	}
}

func TestCanPerformWithoutTicket(t *testing.T) {
	p := New(AssignAdminOnly)
	assert.False(t, p.CanPerform(identity(domain.RoleUser), ActionViewTicket, nil))
	assert.True(t, p.CanPerform(identity(domain.RoleAdmin), ActionViewTicket, nil))
}

func TestCanPerformIsDeterministic(t *testing.T) {
	p := New(AssignAnyStaff)
	ticket := &domain.Ticket{CreatedBy: "u-user"}
	roles := []domain.Role{domain.RoleUser, domain.RoleAdmin, domain.RoleFirstLine, domain.RoleSecondLine}
	for _, role := range roles {
		for _, action := range allActions {
			first := p.CanPerform(identity(role), action, ticket)
			for i := 0; i < 5; i++ {
				assert.Equal(t, first, p.CanPerform(identity(role), action, ticket), "%s/%s", role, action)
			}
		}
	}
}

func TestAssignmentModes(t *testing.T) {
	staff := identity(domain.RoleSecondLine)

	strict := New(AssignAdminOnly)
	assert.False(t, strict.CanPerform(staff, ActionAssign, nil))
	assert.Equal(t, ActionAssign, strict.ActionForField(domain.FieldAssignedRole))
	assert.Equal(t, ActionUpdateFields, strict.ActionForField(domain.FieldStatus))

	loose := New(AssignAnyStaff)
	assert.True(t, loose.CanPerform(staff, ActionAssign, nil))
	assert.Equal(t, ActionUpdateFields, loose.ActionForField(domain.FieldAssignedRole))
	assert.Equal(t, ActionAssign, loose.ActionForField(domain.FieldAssignedTo))

	var zero Policy
	assert.False(t, zero.CanPerform(staff, ActionAssign, nil))
}

func TestParseAssignmentMode(t *testing.T) {
	mode, err := ParseAssignmentMode("")
	require.NoError(t, err)
	assert.Equal(t, AssignAdminOnly, mode)

	mode, err = ParseAssignmentMode(" Staff ")
	require.NoError(t, err)
	assert.Equal(t, AssignAnyStaff, mode)

	_, err = ParseAssignmentMode("everyone")
	assert.Error(t, err)
}
