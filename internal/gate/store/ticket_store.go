package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

var ErrNotFound = errors.New("not found")

// TicketStore is the durable backing of the local ticket cache.
// ReplaceAll must be atomic: either every ticket is written or none.
type TicketStore interface {
	LoadAll(ctx context.Context) ([]types.Ticket, error)
	ReplaceAll(ctx context.Context, tickets []types.Ticket) error
	// MarkUsed flips is_used for an unused ticket and reports whether
	// this call made the change.
	MarkUsed(ctx context.Context, ticketID string, usedAt time.Time) (bool, error)
}
