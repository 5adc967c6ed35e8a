package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// ValidationLog persists validation records as an append-only log.
// Only the sync status of a pending record may change.
type ValidationLog interface {
	Append(ctx context.Context, rec types.ValidationRecord) error
	// ListPending returns pending records oldest first. limit <= 0 means all.
	ListPending(ctx context.Context, limit int) ([]types.ValidationRecord, error)
	MarkSynced(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, id string, note string) error
	CountPending(ctx context.Context) (int, error)
	// PruneOlderThan deletes synced records created before cutoff.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
