package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/policy"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	activityCreate = "create"
	activityUpdate = "update"

	defaultStoreTimeout = 5 * time.Second
)

// MutationRecorder receives the outcome of every ticket mutation.
type MutationRecorder interface {
	RecordMutation(operation string, err error)
}

// TicketService is the ticket update engine: it validates and authorizes a
// mutation, applies it in one store transaction and announces what changed.
type TicketService struct {
	store      repository.Store
	policy     policy.Policy
	dispatcher events.Dispatcher
	metrics    MutationRecorder
	logger     *zap.Logger
	timeout    time.Duration
	now        func() time.Time
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Store        repository.Store
	Policy       policy.Policy
	Dispatcher   events.Dispatcher
	Metrics      MutationRecorder
	Logger       *zap.Logger
	StoreTimeout time.Duration
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
}

// TicketUpdateInput lists requested field values; nil fields are untouched.
// AssignedTo pointing at "" clears the assignee.
type TicketUpdateInput struct {
	Status       *domain.TicketStatus
	Priority     *domain.TicketPriority
	AssignedRole *domain.AssignedRole
	AssignedTo   *string
}

func (in TicketUpdateInput) fields() []domain.TrackedField {
	var out []domain.TrackedField
	if in.Status != nil {
		out = append(out, domain.FieldStatus)
	}
	if in.Priority != nil {
		out = append(out, domain.FieldPriority)
	}
	if in.AssignedRole != nil {
		out = append(out, domain.FieldAssignedRole)
	}
	if in.AssignedTo != nil {
		out = append(out, domain.FieldAssignedTo)
	}
	return out
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses      []domain.TicketStatus
	Priorities    []domain.TicketPriority
	Categories    []domain.TicketCategory
	AssignedRoles []domain.AssignedRole
	// Mine limits staff to tickets assigned to themselves.
	Mine   bool
	Limit  int
	Offset int
}

// TicketDetail is a ticket plus display names for every user it references.
type TicketDetail struct {
	Ticket *domain.Ticket
	Names  map[string]string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &TicketService{
		store:      deps.Store,
		policy:     deps.Policy,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("tickets"),
		timeout:    timeout,
		now:        clock,
	}
}

// CreateTicket validates input, stores a new Open ticket and announces it.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Identity, input TicketCreateInput) (ticket *domain.Ticket, err error) {
	defer s.record("create", &err)

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}
	if !input.Category.Valid() {
		details["category"] = "must be one of Hardware, Software, Network, Account, Other"
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		details["priority"] = "must be one of Low, Medium, High, Critical"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	now := s.now()
	ticket = &domain.Ticket{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		Category:     input.Category,
		Status:       domain.StatusOpen,
		Priority:     priority,
		AssignedRole: domain.AssignedUnassigned,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Activities: []domain.Activity{{
			ID:        uuid.NewString(),
			Action:    activityCreate,
			ActorID:   actor.UserID,
			Message:   "ticket created",
			Timestamp: now,
		}},
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return tx.Tickets().Insert(ctx, ticket)
	})
	if err != nil {
		return nil, s.translate(err, "ticket")
	}

	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("user_id", actor.UserID))
	s.publish(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   events.TicketCreatedPayload{Ticket: ticket.Clone(), CreatorName: actor.Name},
	})
	return ticket, nil
}

// ListTickets returns tickets visible to actor: staff see all, users their own.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Identity, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses:      filter.Statuses,
		Priorities:    filter.Priorities,
		Categories:    filter.Categories,
		AssignedRoles: filter.AssignedRoles,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	}
	userID := actor.UserID
	switch {
	case !actor.IsStaff():
		repoFilter.CreatedBy = &userID
	case filter.Mine:
		repoFilter.AssignedTo = &userID
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()
	tickets, err := s.store.Tickets().Find(ctx, repoFilter)
	if err != nil {
		return nil, s.translate(err, "ticket")
	}
	return tickets, nil
}

// GetTicket loads a ticket the actor may view, with display names resolved.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Identity, ticketID string) (*TicketDetail, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	ticket, err := s.store.Tickets().FindByID(ctx, ticketID)
	if err != nil {
		return nil, s.translate(err, "ticket")
	}
	if !s.policy.CanPerform(actor, policy.ActionViewTicket, ticket) {
		return nil, apperrors.NewForbidden("not allowed to view this ticket")
	}

	ids := []string{ticket.CreatedBy}
	if ticket.AssignedTo != nil {
		ids = append(ids, *ticket.AssignedTo)
	}
	for _, r := range ticket.Responses {
		ids = append(ids, r.AuthorID)
	}
	for _, a := range ticket.Activities {
		ids = append(ids, a.ActorID)
	}
	names, err := displayNames(ctx, s.store, ids)
	if err != nil {
		return nil, s.translate(err, "user")
	}
	return &TicketDetail{Ticket: ticket, Names: names}, nil
}

// AddResponse appends a response to the ticket conversation and bumps updatedAt.
func (s *TicketService) AddResponse(ctx context.Context, actor domain.Identity, ticketID, text string, attachment *domain.Attachment) (response *domain.Response, err error) {
	defer s.record("respond", &err)

	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return nil, apperrors.NewValidationError("response needs text or an attachment", map[string]any{"text": "required"})
	}

	now := s.now()
	response = &domain.Response{
		ID:         uuid.NewString(),
		Text:       text,
		Attachment: attachment,
		AuthorID:   actor.UserID,
		CreatedAt:  now,
	}

	var ownerID string
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		ticket, err := tx.Tickets().FindByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if !s.policy.CanPerform(actor, policy.ActionRespond, ticket) {
			return apperrors.NewForbidden("not allowed to respond to this ticket")
		}
		ownerID = ticket.CreatedBy
		if err := tx.Tickets().AppendResponse(ctx, ticketID, response); err != nil {
			return err
		}
		_, err = tx.Tickets().UpdateFields(ctx, ticketID, repository.TicketPatch{UpdatedAt: now})
		return err
	})
	if err != nil {
		return nil, s.translate(err, "ticket")
	}

	s.publish(ctx, events.Event{
		Type:      events.EventResponseAdded,
		TicketID:  ticketID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   events.ResponseAddedPayload{OwnerID: ownerID, Response: *response},
	})
	return response, nil
}

// AuthorizeResponse reports whether actor may respond to the ticket, without
// writing anything. Callers check it before storing an attachment.
func (s *TicketService) AuthorizeResponse(ctx context.Context, actor domain.Identity, ticketID string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	ticket, err := s.store.Tickets().FindByID(ctx, ticketID)
	if err != nil {
		return s.translate(err, "ticket")
	}
	if !s.policy.CanPerform(actor, policy.ActionRespond, ticket) {
		return apperrors.NewForbidden("not allowed to respond to this ticket")
	}
	return nil
}

// UpdateTicket applies the requested field values. The returned change set lists
// only fields whose value actually changed; when it is empty nothing is written
// and no event is published.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Identity, ticketID string, input TicketUpdateInput) (changes domain.ChangeSet, ticket *domain.Ticket, err error) {
	defer s.record("update", &err)

	requested := input.fields()
	if len(requested) == 0 {
		return nil, nil, apperrors.NewValidationError("no fields to update", nil)
	}
	if err := validateUpdate(input); err != nil {
		return nil, nil, err
	}

	now := s.now()
	var assigneeName string
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		current, err := tx.Tickets().FindByID(ctx, ticketID)
		if err != nil {
			return err
		}
		for _, field := range requested {
			if !s.policy.CanPerform(actor, s.policy.ActionForField(field), current) {
				return apperrors.NewForbidden("not allowed to change " + string(field))
			}
		}

		changes = diff(current, input)
		if changes.Empty() {
			ticket = current
			return nil
		}

		var newAssignee *domain.User
		if ch, ok := changes[domain.FieldAssignedTo]; ok && ch.New != "" {
			newAssignee, err = tx.Users().GetByID(ctx, ch.New)
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("assignee", map[string]any{"assignedTo": ch.New})
			}
			if err != nil {
				return err
			}
			if !newAssignee.Role.IsStaff() {
				return apperrors.NewValidationError("assignee must be a staff member", map[string]any{"assignedTo": ch.New})
			}
		}

		patch, adjustments := plan(current, changes, now)
		if _, err := tx.Tickets().UpdateFields(ctx, ticketID, patch); err != nil {
			return err
		}
		for _, adj := range adjustments {
			if err := tx.Users().IncrementCounter(ctx, adj.userID, adj.field, adj.delta); err != nil {
				return err
			}
		}
		if err := tx.Tickets().AppendActivity(ctx, ticketID, &domain.Activity{
			ID:        uuid.NewString(),
			Action:    activityUpdate,
			ActorID:   actor.UserID,
			Message:   changes.Describe(),
			Timestamp: now,
		}); err != nil {
			return err
		}

		ticket, err = tx.Tickets().FindByID(ctx, ticketID)
		if err != nil {
			return err
		}
		switch {
		case newAssignee != nil:
			assigneeName = newAssignee.Name
		case ticket.AssignedTo != nil:
			names, err := displayNames(ctx, tx, []string{*ticket.AssignedTo})
			if err != nil {
				return err
			}
			assigneeName = names[*ticket.AssignedTo]
		}
		return nil
	})
	if err != nil {
		return nil, nil, s.translate(err, "ticket")
	}
	if changes.Empty() {
		return changes, ticket, nil
	}

	s.logger.Info("ticket updated",
		zap.String("ticket_id", ticketID),
		zap.String("user_id", actor.UserID),
		zap.String("changes", changes.Describe()))
	s.publish(ctx, events.Event{
		Type:      events.EventTicketUpdated,
		TicketID:  ticketID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   events.TicketUpdatedPayload{Ticket: ticket.Clone(), Changes: changes, AssigneeName: assigneeName},
	})
	return changes, ticket, nil
}

// AssignTicket sets assignedTo (and assignedRole). When role is nil and the
// assignee is first or second line staff, the ticket is routed to that tier.
func (s *TicketService) AssignTicket(ctx context.Context, actor domain.Identity, ticketID, assigneeID string, role *domain.AssignedRole) (domain.ChangeSet, *domain.Ticket, error) {
	input := TicketUpdateInput{AssignedTo: &assigneeID, AssignedRole: role}
	if role == nil && assigneeID != "" {
		lookupCtx, cancel := s.bounded(ctx)
		user, err := s.store.Users().GetByID(lookupCtx, assigneeID)
		cancel()
		if err == nil {
			if tier, ok := tierFor(user.Role); ok {
				input.AssignedRole = &tier
			}
		}
	}
	return s.UpdateTicket(ctx, actor, ticketID, input)
}

// DeleteTicket removes a ticket with its responses and activities. Admin only.
func (s *TicketService) DeleteTicket(ctx context.Context, actor domain.Identity, ticketID string) (err error) {
	defer s.record("delete", &err)

	if !s.policy.CanPerform(actor, policy.ActionDeleteTicket, nil) {
		return apperrors.NewForbidden("only admins can delete tickets")
	}

	var deleted *domain.Ticket
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		ticket, err := tx.Tickets().FindByID(ctx, ticketID)
		if err != nil {
			return err
		}
		deleted = ticket
		return tx.Tickets().Delete(ctx, ticketID)
	})
	if err != nil {
		return s.translate(err, "ticket")
	}

	s.logger.Info("ticket deleted", zap.String("ticket_id", ticketID), zap.String("user_id", actor.UserID))
	s.publish(ctx, events.Event{
		Type:      events.EventTicketDeleted,
		TicketID:  ticketID,
		Actor:     events.ActorFrom(actor),
		Timestamp: s.now(),
		Payload:   events.TicketDeletedPayload{OwnerID: deleted.CreatedBy, Title: deleted.Title},
	})
	return nil
}

// AuthorizeRoom decides websocket room joins: ticket rooms follow viewTicket,
// the staff room follows viewDashboard, the list room is open to everyone.
func (s *TicketService) AuthorizeRoom(ctx context.Context, actor domain.Identity, room string) error {
	switch {
	case room == realtime.TicketsListRoom:
		return nil
	case room == realtime.StaffRoom:
		if !s.policy.CanPerform(actor, policy.ActionViewDashboard, nil) {
			return apperrors.NewForbidden("staff only")
		}
		return nil
	}
	ticketID, ok := realtime.TicketIDFromRoom(room)
	if !ok {
		return apperrors.NewValidationError("unknown room", map[string]any{"room": room})
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	ticket, err := s.store.Tickets().FindByID(ctx, ticketID)
	if err != nil {
		return s.translate(err, "ticket")
	}
	if !s.policy.CanPerform(actor, policy.ActionViewTicket, ticket) {
		return apperrors.NewForbidden("not allowed to view this ticket")
	}
	return nil
}

type counterAdjustment struct {
	userID string
	field  domain.CounterField
	delta  int
}

// diff compares requested values with the pre-mutation ticket.
func diff(current *domain.Ticket, in TicketUpdateInput) domain.ChangeSet {
	changes := domain.ChangeSet{}
	if in.Status != nil {
		changes.Record(domain.FieldStatus, string(current.Status), string(*in.Status))
	}
	if in.Priority != nil {
		changes.Record(domain.FieldPriority, string(current.Priority), string(*in.Priority))
	}
	if in.AssignedRole != nil {
		changes.Record(domain.FieldAssignedRole, string(current.AssignedRole), string(*in.AssignedRole))
	}
	if in.AssignedTo != nil {
		changes.Record(domain.FieldAssignedTo, deref(current.AssignedTo), *in.AssignedTo)
	}
	return changes
}

// plan turns a non-empty change set into a field patch and counter deltas.
func plan(current *domain.Ticket, changes domain.ChangeSet, now time.Time) (repository.TicketPatch, []counterAdjustment) {
	patch := repository.TicketPatch{UpdatedAt: now}
	var adjustments []counterAdjustment

	assignee := deref(current.AssignedTo)
	if ch, ok := changes[domain.FieldAssignedTo]; ok {
		patch.SetAssignedTo = true
		if ch.New != "" {
			v := ch.New
			patch.AssignedTo = &v
		}
		if ch.Old != "" {
			adjustments = append(adjustments, counterAdjustment{ch.Old, domain.CounterAssigned, -1})
		}
		if ch.New != "" {
			adjustments = append(adjustments, counterAdjustment{ch.New, domain.CounterAssigned, 1})
		}
		assignee = ch.New
	}
	if ch, ok := changes[domain.FieldPriority]; ok {
		v := domain.TicketPriority(ch.New)
		patch.Priority = &v
	}
	if ch, ok := changes[domain.FieldAssignedRole]; ok {
		v := domain.AssignedRole(ch.New)
		patch.AssignedRole = &v
	}
	if ch, ok := changes[domain.FieldStatus]; ok {
		from, to := domain.TicketStatus(ch.Old), domain.TicketStatus(ch.New)
		patch.Status = &to
		switch to {
		case domain.StatusResolved:
			if from != domain.StatusOpen && from != domain.StatusInProgress {
				break
			}
			if current.ResolvedAt == nil {
				at := now
				patch.ResolvedAt = &at
			}
			if assignee != "" {
				adjustments = append(adjustments, counterAdjustment{assignee, domain.CounterResolved, 1})
			}
		case domain.StatusClosed:
			if assignee != "" {
				adjustments = append(adjustments, counterAdjustment{assignee, domain.CounterClosed, 1})
			}
		}
	}
	return patch, adjustments
}

func validateUpdate(in TicketUpdateInput) error {
	details := map[string]any{}
	if in.Status != nil && !in.Status.Valid() {
		details["status"] = "must be one of Open, In Progress, Resolved, Closed"
	}
	if in.Priority != nil && !in.Priority.Valid() {
		details["priority"] = "must be one of Low, Medium, High, Critical"
	}
	if in.AssignedRole != nil && !in.AssignedRole.Valid() {
		details["assignedRole"] = "must be one of unassigned, 1st-line, 2nd-line"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket update", details)
	}
	return nil
}

func tierFor(role domain.Role) (domain.AssignedRole, bool) {
	switch role {
	case domain.RoleFirstLine:
		return domain.AssignedFirstLine, true
	case domain.RoleSecondLine:
		return domain.AssignedSecondLine, true
	}
	return "", false
}

func (s *TicketService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// translate maps store errors to domain errors; resource names the NotFound subject.
func (s *TicketService) translate(err error, resource string) error {
	return translateStoreError(err, resource)
}

func (s *TicketService) record(operation string, err *error) {
	if s.metrics != nil {
		s.metrics.RecordMutation(operation, *err)
	}
}

// publish hands a committed event to the dispatcher. It detaches from the
// request deadline so fan-out is not cut short by a slow mutation.
func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(context.WithoutCancel(ctx), event)
}

func translateStoreError(err error, resource string) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, nil)
	}
	if errors.Is(err, repository.ErrConflict) {
		return apperrors.NewConflict(resource+" already exists", nil)
	}
	return apperrors.MapError(err)
}

// displayNames resolves user ids to names, skipping ids that no longer exist.
func displayNames(ctx context.Context, store repository.Store, ids []string) (map[string]string, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	users, err := store.Users().GetByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for id, u := range users {
		names[id] = u.Name
	}
	return names, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
