// Package memory is an in-process authority for tests and dev mode.
//
// It keeps one snapshot per event, admits each ticket at most once across
// every device that pushes to it, and applies each action id once.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/authority"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type Authority struct {
	mu sync.Mutex

	snapshots map[string]types.Snapshot
	// admitted maps ticket id to the record id that first admitted it.
	admitted map[string]string
	pushed   []types.ValidationRecord
	executed []types.QueuedAction
	seen     map[string]struct{}
	attempts map[string]int

	offline     bool
	failActions map[types.ActionType]error
}

func New(snaps ...types.Snapshot) *Authority {
	a := &Authority{
		snapshots:   make(map[string]types.Snapshot, len(snaps)),
		admitted:    make(map[string]string),
		seen:        make(map[string]struct{}),
		attempts:    make(map[string]int),
		failActions: make(map[types.ActionType]error),
	}
	for _, s := range snaps {
		a.snapshots[s.EventID] = s
	}
	return a
}

var _ authority.Client = (*Authority)(nil)

// SetOffline makes every call fail with authority.ErrUnavailable.
func (a *Authority) SetOffline(offline bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.offline = offline
}

// FailActions makes Execute return err for actions of type t. A nil err
// clears the failure.
func (a *Authority) FailActions(t types.ActionType, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.failActions, t)
		return
	}
	a.failActions[t] = err
}

// PutSnapshot replaces the snapshot served for s.EventID.
func (a *Authority) PutSnapshot(s types.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots[s.EventID] = s
}

func (a *Authority) Ping(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offline {
		return authority.ErrUnavailable
	}
	return nil
}

func (a *Authority) PushValidations(_ context.Context, recs []types.ValidationRecord) ([]authority.PushResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offline {
		return nil, authority.ErrUnavailable
	}

	results := make([]authority.PushResult, 0, len(recs))
	for _, rec := range recs {
		a.pushed = append(a.pushed, rec)
		res := authority.PushResult{RecordID: rec.ID, Accepted: true}

		if rec.Status == types.StatusValid {
			if first, ok := a.admitted[rec.TicketID]; ok && first != rec.ID {
				res.Accepted = false
				res.Reason = authority.ReasonDuplicateAdmission
			} else {
				a.admitted[rec.TicketID] = rec.ID
				a.markUsedLocked(rec.EventID, rec.TicketID)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Authority) FetchSnapshot(_ context.Context, eventID string) (types.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offline {
		return types.Snapshot{}, authority.ErrUnavailable
	}
	s, ok := a.snapshots[eventID]
	if !ok {
		return types.Snapshot{}, fmt.Errorf("%w: unknown event %q", authority.ErrRejected, eventID)
	}
	out := s
	out.Tickets = slices.Clone(s.Tickets)
	out.Staff = slices.Clone(s.Staff)
	out.GeneratedAt = time.Now().UTC()
	return out, nil
}

func (a *Authority) Execute(_ context.Context, act types.QueuedAction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts[act.ID]++
	if a.offline {
		return authority.ErrUnavailable
	}
	if err := a.failActions[act.Type]; err != nil {
		return err
	}
	if !act.Type.Known() {
		return fmt.Errorf("%w: unknown action type %q", authority.ErrRejected, act.Type)
	}
	if _, dup := a.seen[act.ID]; dup {
		return nil
	}
	a.seen[act.ID] = struct{}{}
	a.executed = append(a.executed, act)

	if act.Type == types.ActionValidateTicket {
		a.markUsedLocked(act.Payload.String("event_id"), act.Payload.String("ticket_id"))
	}
	return nil
}

func (a *Authority) markUsedLocked(eventID, ticketID string) {
	s, ok := a.snapshots[eventID]
	if !ok {
		return
	}
	tickets := slices.Clone(s.Tickets)
	for i := range tickets {
		if tickets[i].TicketID == ticketID {
			tickets[i].IsUsed = true
		}
	}
	s.Tickets = tickets
	a.snapshots[eventID] = s
}

// Pushed returns every record ever pushed, in arrival order.
func (a *Authority) Pushed() []types.ValidationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.pushed)
}

// Executed returns the actions applied, in order, without re-deliveries.
func (a *Authority) Executed() []types.QueuedAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.executed)
}

// Attempts returns how many times Execute was called for an action id.
func (a *Authority) Attempts(actionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts[actionID]
}
