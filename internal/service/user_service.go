package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/policy"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// UserService manages accounts and their roles.
type UserService struct {
	store   repository.Store
	policy  policy.Policy
	logger  *zap.Logger
	timeout time.Duration
}

// NewUserService constructs the service.
func NewUserService(store repository.Store, pol policy.Policy, logger *zap.Logger, timeout time.Duration) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &UserService{store: store, policy: pol, logger: logger.Named("users"), timeout: timeout}
}

// ListUsers returns accounts, optionally narrowed to roles. Admins may list
// everyone; callers allowed to assign tickets may list staff to pick an assignee.
func (s *UserService) ListUsers(ctx context.Context, actor domain.Identity, roles []domain.Role) ([]domain.User, error) {
	switch {
	case s.policy.CanPerform(actor, policy.ActionManageUsers, nil):
	case s.policy.CanPerform(actor, policy.ActionAssign, nil):
		if len(roles) == 0 {
			roles = staffRoles
		}
		for _, r := range roles {
			if !r.IsStaff() {
				return nil, apperrors.NewForbidden("only staff accounts can be listed")
			}
		}
	default:
		return nil, apperrors.NewForbidden("not allowed to list users")
	}
	for _, r := range roles {
		if !r.Valid() {
			return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(r)})
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	users, err := s.store.Users().List(ctx, repository.UserFilter{Roles: roles})
	if err != nil {
		return nil, translateStoreError(err, "user")
	}
	return users, nil
}

// UpdateUserRole changes a user's role. Granting or revoking admin is refused,
// as is changing one's own role.
func (s *UserService) UpdateUserRole(ctx context.Context, actor domain.Identity, userID string, role domain.Role) (*domain.User, error) {
	if !s.policy.CanPerform(actor, policy.ActionManageUsers, nil) {
		return nil, apperrors.NewForbidden("only admins can change roles")
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(role)})
	}
	if role == domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role cannot be granted")
	}
	if userID == actor.UserID {
		return nil, apperrors.NewForbidden("cannot change your own role")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var updated *domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.Role == domain.RoleAdmin {
			return apperrors.NewForbidden("admin accounts cannot be demoted")
		}
		if err := tx.Users().UpdateRole(ctx, userID, role); err != nil {
			return err
		}
		user.Role = role
		updated = user
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "user")
	}
	s.logger.Info("user role changed",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.String("by", actor.UserID))
	return updated, nil
}
