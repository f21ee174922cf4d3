package realtime

import "strings"

const (
	// TicketsListRoom receives list-level events for the ticket overview.
	TicketsListRoom = "tickets-list"
	// StaffRoom is the staff broadcast group used for dashboard refresh triggers.
	// Staff connections join it on registration.
	StaffRoom = "staff"

	ticketRoomPrefix = "ticket:"
)

// TicketRoom names the detail room for one ticket.
func TicketRoom(ticketID string) string {
	return ticketRoomPrefix + ticketID
}

// TicketIDFromRoom extracts the ticket id from a detail room name.
func TicketIDFromRoom(room string) (string, bool) {
	id, ok := strings.CutPrefix(room, ticketRoomPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ValidRoom reports whether room is one of the fixed room kinds.
func ValidRoom(room string) bool {
	if room == TicketsListRoom || room == StaffRoom {
		return true
	}
	_, ok := TicketIDFromRoom(room)
	return ok
}
