// Package authority defines the device's view of the central ticket
// authority. Transports live in subpackages.
package authority

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

var (
	// ErrUnavailable wraps any transport-level failure (network down,
	// timeout, 5xx). Callers treat it as "offline".
	ErrUnavailable = errors.New("authority unavailable")

	// ErrRejected means the authority understood the request and refused it.
	ErrRejected = errors.New("authority rejected request")
)

// Reject reasons the authority may return for a pushed validation record.
const (
	ReasonDuplicateAdmission = "duplicate_admission"
	ReasonUnknownTicket      = "unknown_ticket"
)

// PushResult is the authority's verdict on one pushed validation record.
type PushResult struct {
	RecordID string `json:"record_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Client is everything the gate core needs from the authority.
//
// Execute carries the action id as an idempotency key; the authority must
// treat a re-delivered id as already applied.
type Client interface {
	Ping(ctx context.Context) error
	PushValidations(ctx context.Context, recs []types.ValidationRecord) ([]PushResult, error)
	FetchSnapshot(ctx context.Context, eventID string) (types.Snapshot, error)
	Execute(ctx context.Context, a types.QueuedAction) error
}
