package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/policy"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestListUsers(t *testing.T) {
	h := newHarness(t, policy.AssignAdminOnly)
	ctx := context.Background()
	svc := NewUserService(h.store, policy.New(policy.AssignAdminOnly), nil, 0)

	everyone, err := svc.ListUsers(ctx, admin, nil)
	require.NoError(t, err)
	assert.Len(t, everyone, 5)

	staff, err := svc.ListUsers(ctx, admin, []domain.Role{domain.RoleFirstLine, domain.RoleSecondLine})
	require.NoError(t, err)
	assert.Len(t, staff, 2)

	_, err = svc.ListUsers(ctx, firstLine, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	staffMode := NewUserService(h.store, policy.New(policy.AssignAnyStaff), nil, 0)
	assignable, err := staffMode.ListUsers(ctx, firstLine, nil)
	require.NoError(t, err)
	assert.Len(t, assignable, 3)
	_, err = staffMode.ListUsers(ctx, firstLine, []domain.Role{domain.RoleUser})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestUpdateUserRole(t *testing.T) {
	h := newHarness(t, policy.AssignAdminOnly)
	ctx := context.Background()
	svc := NewUserService(h.store, policy.New(policy.AssignAdminOnly), nil, 0)

	updated, err := svc.UpdateUserRole(ctx, admin, owner.UserID, domain.RoleSecondLine)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSecondLine, updated.Role)
	assert.Equal(t, domain.RoleSecondLine, h.user(t, owner.UserID).Role)

	_, err = svc.UpdateUserRole(ctx, admin, stranger.UserID, domain.RoleAdmin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = svc.UpdateUserRole(ctx, admin, stranger.UserID, domain.Role("root"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.UpdateUserRole(ctx, firstLine, stranger.UserID, domain.RoleFirstLine)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = svc.UpdateUserRole(ctx, admin, "ghost", domain.RoleUser)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestRegisterAndLogin(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewAuthService(config.AuthConfig{JWTSecret: "s", AccessTokenTTLMinutes: 5, BcryptCost: 4}, store.Users(), nil)
	ctx := context.Background()

	session, err := svc.Register(ctx, "Uma", "Uma@Example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, session.User.Role)
	assert.NotEmpty(t, session.Token)

	claims, err := svc.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.Subject)

	_, err = svc.Register(ctx, "Uma", "uma@example.com", "password1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = svc.Register(ctx, "", "not-an-email", "short")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.Login(ctx, "uma@example.com", "password1")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "uma@example.com", "wrong-password")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}
