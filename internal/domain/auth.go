package domain

// Identity is the resolved acting principal for a request or connection.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   Role
}

// IsStaff reports whether the identity acts as support staff.
func (i Identity) IsStaff() bool {
	return i.Role.IsStaff()
}
