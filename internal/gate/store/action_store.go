package store

import (
	"context"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// ActionStore persists the action queue. List returns actions in queue
// order; order survives restarts.
type ActionStore interface {
	Push(ctx context.Context, a types.QueuedAction) error
	List(ctx context.Context) ([]types.QueuedAction, error)
	Remove(ctx context.Context, id string) error
	// Requeue stores the updated retry state of a and moves it to the tail
	// (or the head when toHead is set).
	Requeue(ctx context.Context, a types.QueuedAction, toHead bool) error
	Len(ctx context.Context) (int, error)
}
