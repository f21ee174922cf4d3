package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func seedTicket(t *testing.T, s *MemoryStore, id, owner string, created time.Time) {
	t.Helper()
	require.NoError(t, s.Tickets().Insert(context.Background(), &domain.Ticket{
		ID:           id,
		Title:        "ticket " + id,
		Category:     domain.CategoryNetwork,
		Status:       domain.StatusOpen,
		Priority:     domain.PriorityMedium,
		AssignedRole: domain.AssignedUnassigned,
		CreatedBy:    owner,
		CreatedAt:    created,
		UpdatedAt:    created,
	}))
}

func TestMemoryStoreFindFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedTicket(t, s, "a", "u1", base)
	seedTicket(t, s, "b", "u2", base.Add(time.Hour))
	seedTicket(t, s, "c", "u1", base.Add(2*time.Hour))

	all, err := s.Tickets().Find(ctx, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	owner := "u1"
	mine, err := s.Tickets().Find(ctx, TicketFilter{CreatedBy: &owner})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	page, err := s.Tickets().Find(ctx, TicketFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	seedTicket(t, s, "a", "u1", time.Now())

	got, err := s.Tickets().FindByID(context.Background(), "a")
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := s.Tickets().FindByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "ticket a", again.Title)
}

func TestMemoryStoreUpdatedAtNeverMovesBack(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	seedTicket(t, s, "a", "u1", now)

	status := domain.StatusInProgress
	updated, err := s.Tickets().UpdateFields(context.Background(), "a", TicketPatch{Status: &status, UpdatedAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, now, updated.UpdatedAt)
	assert.Equal(t, domain.StatusInProgress, updated.Status)
}

func TestMemoryStoreCounterClampsAtZero(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Users().Create(ctx, &domain.User{ID: "s1", Name: "Sam", Email: "Sam@Example.com", Role: domain.RoleFirstLine}))

	require.NoError(t, s.Users().IncrementCounter(ctx, "s1", domain.CounterAssigned, 1))
	require.NoError(t, s.Users().IncrementCounter(ctx, "s1", domain.CounterAssigned, -1))
	require.NoError(t, s.Users().IncrementCounter(ctx, "s1", domain.CounterAssigned, -1))

	u, err := s.Users().GetByEmail(ctx, "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, u.TicketsAssigned)

	assert.ErrorIs(t, s.Users().IncrementCounter(ctx, "missing", domain.CounterAssigned, 1), ErrNotFound)
	assert.ErrorIs(t, s.Users().Create(ctx, &domain.User{ID: "s2", Email: "sam@example.com"}), ErrConflict)
}

func TestMemoryStoreTransactionRollsBack(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedTicket(t, s, "a", "u1", time.Now())
	require.NoError(t, s.Users().Create(ctx, &domain.User{ID: "s1", Email: "s1@example.com", Role: domain.RoleFirstLine}))

	boom := errors.New("boom")
	s.SetFailHook(func(op string) error {
		if op == "users.increment" {
			return boom
		}
		return nil
	})

	err := s.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		status := domain.StatusResolved
		if _, err := tx.Tickets().UpdateFields(ctx, "a", TicketPatch{Status: &status, UpdatedAt: time.Now()}); err != nil {
			return err
		}
		return tx.Users().IncrementCounter(ctx, "s1", domain.CounterResolved, 1)
	})
	assert.ErrorIs(t, err, boom)

	ticket, err := s.Tickets().FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, ticket.Status)
}

func TestMemoryStoreTransactionCommits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedTicket(t, s, "a", "u1", time.Now())

	err := s.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.Tickets().AppendResponse(ctx, "a", &domain.Response{ID: "r1", Text: "hi", CreatedAt: time.Now()})
	})
	require.NoError(t, err)

	ticket, err := s.Tickets().FindByID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, ticket.Responses, 1)
	assert.Equal(t, "r1", ticket.Responses[0].ID)
}

func TestMemoryStoreCancelledContextDiscardsWrites(t *testing.T) {
	s := NewMemoryStore()
	seedTicket(t, s, "a", "u1", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		err := tx.Tickets().AppendActivity(ctx, "a", &domain.Activity{ID: "x", Action: "update"})
		cancel()
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)

	ticket, err := s.Tickets().FindByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, ticket.Activities)
}

func TestMemoryStoreRecentResponses(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	seedTicket(t, s, "a", "u1", base)
	seedTicket(t, s, "b", "u2", base)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Tickets().AppendResponse(ctx, "a", &domain.Response{ID: "a" + string(rune('0'+i)), CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
		require.NoError(t, s.Tickets().AppendResponse(ctx, "b", &domain.Response{ID: "b" + string(rune('0'+i)), CreatedAt: base.Add(time.Duration(i)*time.Minute + time.Second)}))
	}

	entries, err := s.Tickets().RecentResponses(ctx, TicketFilter{}, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "b3", entries[0].Response.ID)
	assert.Equal(t, "a3", entries[1].Response.ID)
	assert.Equal(t, "b", entries[0].TicketID)
}
