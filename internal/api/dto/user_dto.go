package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// UserRegisterRequest payload for new users.
type UserRegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateRoleRequest changes a user's role. Admin cannot be granted.
type UpdateRoleRequest struct {
	Role domain.Role `json:"role" validate:"required,oneof=user 1st-line 2nd-line"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Role            domain.Role `json:"role"`
	TicketsAssigned int         `json:"ticketsAssigned"`
	TicketsResolved int         `json:"ticketsResolved"`
	TicketsClosed   int         `json:"ticketsClosed"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// NewUserResponse projects u without credentials.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		TicketsAssigned: u.TicketsAssigned,
		TicketsResolved: u.TicketsResolved,
		TicketsClosed:   u.TicketsClosed,
		CreatedAt:       u.CreatedAt,
	}
}
