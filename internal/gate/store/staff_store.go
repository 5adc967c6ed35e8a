package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// StaffStore is the read-mostly staff cache. Get returns ErrNotFound for
// unknown staff ids.
type StaffStore interface {
	Get(ctx context.Context, staffID string) (types.StaffMember, error)
	Upsert(ctx context.Context, s types.StaffMember) error
	ReplaceAll(ctx context.Context, staff []types.StaffMember) error
}

// AccessLogStore persists authorization attempts for audit.
type AccessLogStore interface {
	RecordAccess(ctx context.Context, e types.AccessLogEntry) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
