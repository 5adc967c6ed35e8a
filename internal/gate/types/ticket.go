package types

import "time"

// Ticket is the device-local copy of an authoritative ticket.
//
// UsedLocallyAt is set when this device consumed the ticket and the
// authority has not yet reported it as used. It never travels in a
// snapshot from the authority.
type Ticket struct {
	TicketID      string     `json:"ticket_id"`
	EventID       string     `json:"event_id"`
	UserID        string     `json:"user_id"`
	Tier          string     `json:"tier"`
	SeatNumber    string     `json:"seat_number,omitempty"`
	IsUsed        bool       `json:"is_used"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidUntil    time.Time  `json:"valid_until"`
	UsedLocallyAt *time.Time `json:"used_locally_at,omitempty"`
}

// InWindow reports whether t falls inside [ValidFrom, ValidUntil].
// A zero bound is treated as open.
func (tk Ticket) InWindow(t time.Time) bool {
	if !tk.ValidFrom.IsZero() && t.Before(tk.ValidFrom) {
		return false
	}
	if !tk.ValidUntil.IsZero() && t.After(tk.ValidUntil) {
		return false
	}
	return true
}

// Snapshot is a full-replace download of authoritative data for one event.
type Snapshot struct {
	EventID     string        `json:"event_id"`
	Tickets     []Ticket      `json:"tickets"`
	Staff       []StaffMember `json:"staff"`
	GeneratedAt time.Time     `json:"generated_at"`
}
