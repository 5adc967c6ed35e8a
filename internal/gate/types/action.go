package types

import "time"

type ActionType string

const (
	ActionValidateTicket   ActionType = "validate-ticket"
	ActionUpdateAttendance ActionType = "update-attendance"
	ActionPurchaseTicket   ActionType = "purchase-ticket"
)

// Known reports whether t is one of the action types the authority accepts.
func (t ActionType) Known() bool {
	switch t {
	case ActionValidateTicket, ActionUpdateAttendance, ActionPurchaseTicket:
		return true
	}
	return false
}

// Payload carries action arguments. Values are limited to strings,
// numbers, bools, nested maps and slices so every encoder round-trips them.
type Payload map[string]any

// String returns the string value stored under key, or "".
func (p Payload) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// QueuedAction is a mutating call waiting for the authority.
type QueuedAction struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	Payload    Payload    `json:"payload"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	RetryCount int        `json:"retry_count"`
	LastError  string     `json:"last_error,omitempty"`
}
