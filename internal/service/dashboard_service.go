package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/dashboard"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/policy"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

var staffRoles = []domain.Role{domain.RoleAdmin, domain.RoleFirstLine, domain.RoleSecondLine}

// DashboardService loads the snapshot behind the staff dashboard.
type DashboardService struct {
	store   repository.Store
	policy  policy.Policy
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewDashboardService constructs the service.
func NewDashboardService(store repository.Store, pol policy.Policy, logger *zap.Logger, timeout time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &DashboardService{
		store:   store,
		policy:  pol,
		logger:  logger.Named("dashboard"),
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Summary computes the dashboard for actor. Admins see every ticket and all
// staff; other staff see the tickets assigned to them and their own row.
func (s *DashboardService) Summary(ctx context.Context, actor domain.Identity) (*dashboard.Summary, error) {
	if !s.policy.CanPerform(actor, policy.ActionViewDashboard, nil) {
		return nil, apperrors.NewForbidden("staff only")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := repository.TicketFilter{}
	if actor.Role != domain.RoleAdmin {
		userID := actor.UserID
		filter.AssignedTo = &userID
	}

	tickets, err := s.store.Tickets().Find(ctx, filter)
	if err != nil {
		return nil, translateStoreError(err, "ticket")
	}
	responses, err := s.store.Tickets().RecentResponses(ctx, filter, dashboard.ActivityLimit)
	if err != nil {
		return nil, translateStoreError(err, "ticket")
	}

	var staff []domain.User
	if actor.Role == domain.RoleAdmin {
		staff, err = s.store.Users().List(ctx, repository.UserFilter{Roles: staffRoles})
		if err != nil {
			return nil, translateStoreError(err, "user")
		}
	} else {
		self, err := s.store.Users().GetByID(ctx, actor.UserID)
		if err != nil {
			return nil, translateStoreError(err, "user")
		}
		staff = []domain.User{*self}
	}

	// only the newest tickets can reach the activity feed
	recent := tickets
	if len(recent) > dashboard.ActivityLimit {
		recent = recent[:dashboard.ActivityLimit]
	}
	ids := make([]string, 0, len(recent)+len(responses))
	for _, t := range recent {
		ids = append(ids, t.CreatedBy)
	}
	events := make([]dashboard.ResponseEvent, 0, len(responses))
	for _, r := range responses {
		ids = append(ids, r.Response.AuthorID)
		events = append(events, dashboard.ResponseEvent{
			TicketID:    r.TicketID,
			TicketTitle: r.TicketTitle,
			AuthorID:    r.Response.AuthorID,
			At:          r.Response.CreatedAt,
		})
	}
	names, err := displayNames(ctx, s.store, ids)
	if err != nil {
		return nil, translateStoreError(err, "user")
	}

	summary := dashboard.Compute(dashboard.Input{
		Tickets:   tickets,
		Staff:     staff,
		Responses: events,
		Names:     names,
	}, s.now())
	s.logger.Debug("dashboard computed",
		zap.String("user_id", actor.UserID),
		zap.Int("tickets", summary.Stats.Total))
	return &summary, nil
}
