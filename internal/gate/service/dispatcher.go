package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/turnstile/internal/authority"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

var ErrNoHandler = errors.New("no handler for action type")

// ActionHandler performs one queued action against the authority.
type ActionHandler func(ctx context.Context, a types.QueuedAction) error

// Dispatcher routes actions to handlers by type.
type Dispatcher map[types.ActionType]ActionHandler

func (d Dispatcher) Dispatch(ctx context.Context, a types.QueuedAction) error {
	h, ok := d[a.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoHandler, a.Type)
	}
	return h(ctx, a)
}

// NewAuthorityDispatcher sends every known action type to c.Execute.
func NewAuthorityDispatcher(c authority.Client) Dispatcher {
	d := make(Dispatcher, 3)
	for _, t := range []types.ActionType{
		types.ActionValidateTicket,
		types.ActionUpdateAttendance,
		types.ActionPurchaseTicket,
	} {
		d[t] = c.Execute
	}
	return d
}
