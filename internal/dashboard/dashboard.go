// Package dashboard computes staff dashboard aggregates from a snapshot of
// tickets and users. It performs no I/O.
package dashboard

import (
	"math"
	"sort"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const (
	// CriticalLimit caps the critical ticket list.
	CriticalLimit = 5
	// ActivityLimit caps the recent activity feed.
	ActivityLimit = 5
	// UnknownActor is shown when an activity's actor no longer resolves.
	UnknownActor = "Unknown"
)

// Activity kinds in the recent feed.
const (
	KindCreated  = "created"
	KindResponse = "response"
)

// ResponseEvent is a response joined with its ticket title.
type ResponseEvent struct {
	TicketID    string
	TicketTitle string
	AuthorID    string
	At          time.Time
}

// Input is the snapshot the aggregate is computed from.
type Input struct {
	Tickets   []domain.Ticket
	Staff     []domain.User
	Responses []ResponseEvent
	// Names resolves actor ids for the activity feed.
	Names map[string]string
}

// Stats counts tickets per status.
type Stats struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
}

// Share is one bucket of a distribution.
type Share struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// RoleBreakdown counts one support tier's tickets per status.
type RoleBreakdown struct {
	Role       domain.AssignedRole `json:"role"`
	Total      int                 `json:"total"`
	Open       int                 `json:"open"`
	InProgress int                 `json:"inProgress"`
	Resolved   int                 `json:"resolved"`
	Closed     int                 `json:"closed"`
}

// CriticalTicket is an open High or Critical ticket.
type CriticalTicket struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	AssignedRole domain.AssignedRole   `json:"assignedRole"`
	CreatedAt    time.Time             `json:"createdAt"`
}

// Performance is one staff member's counters and resolution rate.
type Performance struct {
	UserID         string      `json:"userId"`
	Name           string      `json:"name"`
	Role           domain.Role `json:"role"`
	Assigned       int         `json:"assigned"`
	Resolved       int         `json:"resolved"`
	Closed         int         `json:"closed"`
	ResolutionRate int         `json:"resolutionRate"`
}

// ActivityEntry is one item of the recent activity feed.
type ActivityEntry struct {
	Kind        string    `json:"kind"`
	TicketID    string    `json:"ticketId"`
	TicketTitle string    `json:"ticketTitle"`
	ActorName   string    `json:"actorName"`
	At          time.Time `json:"at"`
}

// Summary is the full dashboard aggregate.
type Summary struct {
	Stats                Stats            `json:"stats"`
	StatusDistribution   []Share          `json:"statusDistribution"`
	CategoryDistribution []Share          `json:"categoryDistribution"`
	RoleStats            []RoleBreakdown  `json:"roleStats"`
	CriticalTickets      []CriticalTicket `json:"criticalTickets"`
	StaffPerformance     []Performance    `json:"staffPerformance"`
	RecentActivity       []ActivityEntry  `json:"recentActivity"`
	GeneratedAt          time.Time        `json:"generatedAt"`
}

// Compute builds the aggregate for in.
func Compute(in Input, now time.Time) Summary {
	stats := countStatuses(in.Tickets)

	statusCounts := make(map[string]int, len(domain.Statuses))
	categoryCounts := make(map[string]int, len(domain.Categories))
	for _, t := range in.Tickets {
		statusCounts[string(t.Status)]++
		categoryCounts[string(t.Category)]++
	}

	return Summary{
		Stats:                stats,
		StatusDistribution:   distribution(labels(domain.Statuses), statusCounts, stats.Total),
		CategoryDistribution: distribution(labels(domain.Categories), categoryCounts, stats.Total),
		RoleStats:            roleStats(in.Tickets),
		CriticalTickets:      criticalTickets(in.Tickets),
		StaffPerformance:     performance(in.Staff),
		RecentActivity:       RecentActivity(in),
		GeneratedAt:          now,
	}
}

// Percent returns round(100*count/total), or 0 when total is 0.
func Percent(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(count) / float64(total)))
}

// ResolutionRate returns round(100*(resolved+closed)/assigned), or 0 with nothing assigned.
func ResolutionRate(assigned, resolved, closed int) int {
	if assigned <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(resolved+closed) / float64(assigned)))
}

// RecentActivity merges ticket creation and response events, newest first.
func RecentActivity(in Input) []ActivityEntry {
	entries := make([]ActivityEntry, 0, len(in.Tickets)+len(in.Responses))
	for _, t := range in.Tickets {
		entries = append(entries, ActivityEntry{
			Kind:        KindCreated,
			TicketID:    t.ID,
			TicketTitle: t.Title,
			ActorName:   nameOf(in.Names, t.CreatedBy),
			At:          t.CreatedAt,
		})
	}
	for _, r := range in.Responses {
		entries = append(entries, ActivityEntry{
			Kind:        KindResponse,
			TicketID:    r.TicketID,
			TicketTitle: r.TicketTitle,
			ActorName:   nameOf(in.Names, r.AuthorID),
			At:          r.At,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.After(entries[j].At)
	})
	if len(entries) > ActivityLimit {
		entries = entries[:ActivityLimit]
	}
	return entries
}

func countStatuses(tickets []domain.Ticket) Stats {
	stats := Stats{Total: len(tickets)}
	for _, t := range tickets {
		switch t.Status {
		case domain.StatusOpen:
			stats.Open++
		case domain.StatusInProgress:
			stats.InProgress++
		case domain.StatusResolved:
			stats.Resolved++
		case domain.StatusClosed:
			stats.Closed++
		}
	}
	return stats
}

func distribution(order []string, counts map[string]int, total int) []Share {
	shares := make([]Share, 0, len(order))
	for _, label := range order {
		shares = append(shares, Share{Label: label, Count: counts[label], Percent: Percent(counts[label], total)})
	}
	return shares
}

func roleStats(tickets []domain.Ticket) []RoleBreakdown {
	byRole := make(map[domain.AssignedRole]*RoleBreakdown, len(domain.AssignedRoles))
	out := make([]RoleBreakdown, len(domain.AssignedRoles))
	for i, role := range domain.AssignedRoles {
		out[i].Role = role
		byRole[role] = &out[i]
	}
	for _, t := range tickets {
		rb, ok := byRole[t.AssignedRole]
		if !ok {
			rb = byRole[domain.AssignedUnassigned]
		}
		rb.Total++
		switch t.Status {
		case domain.StatusOpen:
			rb.Open++
		case domain.StatusInProgress:
			rb.InProgress++
		case domain.StatusResolved:
			rb.Resolved++
		case domain.StatusClosed:
			rb.Closed++
		}
	}
	return out
}

func criticalTickets(tickets []domain.Ticket) []CriticalTicket {
	var out []CriticalTicket
	for _, t := range tickets {
		if t.Status == domain.StatusResolved {
			continue
		}
		if t.Priority != domain.PriorityHigh && t.Priority != domain.PriorityCritical {
			continue
		}
		out = append(out, CriticalTicket{
			ID:           t.ID,
			Title:        t.Title,
			Priority:     t.Priority,
			Status:       t.Status,
			AssignedRole: t.AssignedRole,
			CreatedAt:    t.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank(); ri != rj {
			return ri > rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > CriticalLimit {
		out = out[:CriticalLimit]
	}
	return out
}

func performance(staff []domain.User) []Performance {
	out := make([]Performance, 0, len(staff))
	for _, u := range staff {
		out = append(out, Performance{
			UserID:         u.ID,
			Name:           u.Name,
			Role:           u.Role,
			Assigned:       u.TicketsAssigned,
			Resolved:       u.TicketsResolved,
			Closed:         u.TicketsClosed,
			ResolutionRate: ResolutionRate(u.TicketsAssigned, u.TicketsResolved, u.TicketsClosed),
		})
	}
	return out
}

func nameOf(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return UnknownActor
}

func labels[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
