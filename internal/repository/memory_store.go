package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// FailHook lets tests inject a failure before a named write ("tickets.update",
// "users.increment", ...). Returning a non-nil error aborts that write.
type FailHook func(op string) error

type memoryData struct {
	tickets map[string]*domain.Ticket
	users   map[string]*domain.User
}

func (d *memoryData) clone() *memoryData {
	cp := &memoryData{
		tickets: make(map[string]*domain.Ticket, len(d.tickets)),
		users:   make(map[string]*domain.User, len(d.users)),
	}
	for id, t := range d.tickets {
		cp.tickets[id] = t.Clone()
	}
	for id, u := range d.users {
		user := *u
		cp.users[id] = &user
	}
	return cp
}

// MemoryStore keeps everything in process. It is used when no Postgres DSN is
// configured and as the store double in tests.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memoryData
	inTx bool
	fail *FailHook
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	var hook FailHook
	return &MemoryStore{
		mu:   &sync.Mutex{},
		data: &memoryData{tickets: map[string]*domain.Ticket{}, users: map[string]*domain.User{}},
		fail: &hook,
	}
}

// SetFailHook installs (or clears, with nil) the write failure hook.
func (s *MemoryStore) SetFailHook(hook FailHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.fail = hook
}

func (s *MemoryStore) Tickets() TicketRepository { return memoryTickets{s} }

func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// WithinTx stages every write on a copy and swaps it in only when fn succeeds
// and ctx is still live. The store lock is held for the whole transaction.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemoryStore{mu: s.mu, data: s.data.clone(), inTx: true, fail: s.fail}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// enter takes the lock unless already inside a transaction and checks ctx.
func (s *MemoryStore) enter(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.inTx {
		return func() {}, nil
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

func (s *MemoryStore) check(op string) error {
	if hook := *s.fail; hook != nil {
		return hook(op)
	}
	return nil
}

type memoryTickets struct{ s *MemoryStore }

func (r memoryTickets) Find(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result []domain.Ticket
	for _, t := range r.s.data.tickets {
		if matchTicket(t, filter) {
			cp := t.Clone()
			cp.Responses = nil
			cp.Activities = nil
			result = append(result, *cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter.Offset, filter.Limit), nil
}

func (r memoryTickets) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, ok := r.s.data.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (r memoryTickets) Insert(ctx context.Context, ticket *domain.Ticket) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.s.check("tickets.insert"); err != nil {
		return err
	}
	if _, exists := r.s.data.tickets[ticket.ID]; exists {
		return ErrConflict
	}
	r.s.data.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r memoryTickets) UpdateFields(ctx context.Context, id string, patch TicketPatch) (*domain.Ticket, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := r.s.check("tickets.update"); err != nil {
		return nil, err
	}
	t, ok := r.s.data.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.AssignedRole != nil {
		t.AssignedRole = *patch.AssignedRole
	}
	if patch.SetAssignedTo {
		if patch.AssignedTo == nil {
			t.AssignedTo = nil
		} else {
			v := *patch.AssignedTo
			t.AssignedTo = &v
		}
	}
	if patch.ResolvedAt != nil {
		v := *patch.ResolvedAt
		t.ResolvedAt = &v
	}
	t.UpdatedAt = laterOf(t.UpdatedAt, patch.UpdatedAt)
	return t.Clone(), nil
}

func (r memoryTickets) AppendResponse(ctx context.Context, ticketID string, response *domain.Response) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.s.check("tickets.response"); err != nil {
		return err
	}
	t, ok := r.s.data.tickets[ticketID]
	if !ok {
		return ErrNotFound
	}
	resp := *response
	if response.Attachment != nil {
		att := *response.Attachment
		resp.Attachment = &att
	}
	t.Responses = append(t.Responses, resp)
	return nil
}

func (r memoryTickets) AppendActivity(ctx context.Context, ticketID string, activity *domain.Activity) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.s.check("tickets.activity"); err != nil {
		return err
	}
	t, ok := r.s.data.tickets[ticketID]
	if !ok {
		return ErrNotFound
	}
	t.Activities = append(t.Activities, *activity)
	return nil
}

func (r memoryTickets) RecentResponses(ctx context.Context, filter TicketFilter, limit int) ([]ResponseEntry, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if limit <= 0 {
		limit = 5
	}
	var entries []ResponseEntry
	for _, t := range r.s.data.tickets {
		if !matchTicket(t, filter) {
			continue
		}
		for _, resp := range t.Responses {
			entries = append(entries, ResponseEntry{TicketID: t.ID, TicketTitle: t.Title, Response: resp})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Response.CreatedAt.After(entries[j].Response.CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r memoryTickets) Delete(ctx context.Context, id string) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.s.check("tickets.delete"); err != nil {
		return err
	}
	if _, ok := r.s.data.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.data.tickets, id)
	return nil
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(ctx context.Context, user *domain.User) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.s.check("users.create"); err != nil {
		return err
	}
	email := strings.ToLower(user.Email)
	for _, existing := range r.s.data.users {
		if existing.ID == user.ID || existing.Email == email {
			return ErrConflict
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	cp := *user
	cp.Email = email
	r.s.data.users[user.ID] = &cp
	return nil
}

func (r memoryUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memoryUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	email = strings.ToLower(email)
	for _, u := range r.s.data.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r memoryUsers) GetByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := r.s.data.users[id]; ok {
			result[id] = *u
		}
	}
	return result, nil
}

func (r memoryUsers) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result []domain.User
	for _, u := range r.s.data.users {
		if len(filter.Roles) > 0 && !contains(filter.Roles, u.Role) {
			continue
		}
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (r memoryUsers) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.s.check("users.role"); err != nil {
		return err
	}
	u, ok := r.s.data.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

func (r memoryUsers) IncrementCounter(ctx context.Context, userID string, field domain.CounterField, delta int) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.s.check("users.increment"); err != nil {
		return err
	}
	u, ok := r.s.data.users[userID]
	if !ok {
		return ErrNotFound
	}
	var counter *int
	switch field {
	case domain.CounterAssigned:
		counter = &u.TicketsAssigned
	case domain.CounterResolved:
		counter = &u.TicketsResolved
	case domain.CounterClosed:
		counter = &u.TicketsClosed
	default:
		return fmt.Errorf("unknown counter %q", field)
	}
	*counter += delta
	if *counter < 0 {
		*counter = 0
	}
	return nil
}

func matchTicket(t *domain.Ticket, f TicketFilter) bool {
	if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, t.Category) {
		return false
	}
	if len(f.AssignedRoles) > 0 && !contains(f.AssignedRoles, t.AssignedRole) {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
