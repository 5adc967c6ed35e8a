package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

// DefaultMaxRetries is how many failed attempts an action gets before it
// is discarded.
const DefaultMaxRetries = 3

var ErrUnknownActionType = errors.New("unknown action type")

// RequeuePolicy decides where a failed action goes for its next attempt.
type RequeuePolicy string

const (
	RequeueTail RequeuePolicy = "tail"
	RequeueHead RequeuePolicy = "head"
)

type QueueConfig struct {
	MaxRetries int
	Policy     RequeuePolicy
	Now        func() time.Time
}

// DrainReport summarises one Drain pass.
type DrainReport struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Discarded int `json:"discarded"`
}

// ActionQueue is the durable FIFO of mutations waiting for the authority.
type ActionQueue struct {
	store  store.ActionStore
	cfg    QueueConfig
	events telemetry.Emitter

	// drainMu serialises Drain passes.
	drainMu sync.Mutex
}

func NewActionQueue(st store.ActionStore, cfg QueueConfig, em telemetry.Emitter) *ActionQueue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Policy != RequeueHead {
		cfg.Policy = RequeueTail
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if em == nil {
		em = telemetry.Nop()
	}
	return &ActionQueue{store: st, cfg: cfg, events: em}
}

// Enqueue appends a new action with retry_count 0.
func (q *ActionQueue) Enqueue(ctx context.Context, t types.ActionType, p types.Payload) (types.QueuedAction, error) {
	a := q.newAction(t, p)
	if err := q.push(ctx, a); err != nil {
		return types.QueuedAction{}, err
	}
	return a, nil
}

func (q *ActionQueue) newAction(t types.ActionType, p types.Payload) types.QueuedAction {
	if p == nil {
		p = types.Payload{}
	}
	return types.QueuedAction{
		ID:         uuid.NewString(),
		Type:       t,
		Payload:    p,
		EnqueuedAt: q.cfg.Now(),
	}
}

func (q *ActionQueue) push(ctx context.Context, a types.QueuedAction) error {
	if !a.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}
	if err := q.store.Push(ctx, a); err != nil {
		return fmt.Errorf("enqueue action: %w", err)
	}
	q.events.Emit(telemetry.New(telemetry.ActionEnqueued, telemetry.Fields{
		"action_id": a.ID,
		"type":      string(a.Type),
	}))
	return nil
}

// Drain makes one pass over the actions queued when it starts, attempting
// each exactly once. Successes are removed. A failure bumps retry_count;
// below the ceiling the action is requeued, at the ceiling it is dropped.
//
// Cancelling ctx stops the pass; actions not yet attempted stay untouched.
func (q *ActionQueue) Drain(ctx context.Context, d Dispatcher) (DrainReport, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	var rep DrainReport
	pending, err := q.store.List(ctx)
	if err != nil {
		return rep, fmt.Errorf("list actions: %w", err)
	}

	// Head requeues are applied after the pass, newest first, so failed
	// actions keep their relative order at the front. A failed write leaves
	// the row with its previous retry_count.
	var toHead []types.QueuedAction
	defer func() {
		bg := context.WithoutCancel(ctx)
		for i := len(toHead) - 1; i >= 0; i-- {
			a := toHead[i]
			if err := q.store.Requeue(bg, a, true); err != nil {
				q.events.Emit(telemetry.New(telemetry.ActionRequeueFailed, telemetry.Fields{
					"action_id":   a.ID,
					"type":        string(a.Type),
					"retry_count": a.RetryCount,
					"error":       err.Error(),
				}))
			}
		}
	}()

	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Attempted++

		dispatchErr := d.Dispatch(ctx, a)
		if dispatchErr == nil {
			if err := q.store.Remove(ctx, a.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return rep, fmt.Errorf("remove action %s: %w", a.ID, err)
			}
			rep.Succeeded++
			q.events.Emit(telemetry.New(telemetry.ActionExecuted, telemetry.Fields{
				"action_id": a.ID,
				"type":      string(a.Type),
			}))
			continue
		}

		a.RetryCount++
		a.LastError = dispatchErr.Error()
		fields := telemetry.Fields{
			"action_id":   a.ID,
			"type":        string(a.Type),
			"retry_count": a.RetryCount,
			"error":       a.LastError,
		}

		if a.RetryCount >= q.cfg.MaxRetries {
			if err := q.store.Remove(ctx, a.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return rep, fmt.Errorf("discard action %s: %w", a.ID, err)
			}
			rep.Discarded++
			q.events.Emit(telemetry.New(telemetry.ActionDiscarded, fields))
			continue
		}

		if q.cfg.Policy == RequeueHead {
			toHead = append(toHead, a)
		} else if err := q.store.Requeue(ctx, a, false); err != nil {
			return rep, fmt.Errorf("requeue action %s: %w", a.ID, err)
		}
		rep.Retried++
		q.events.Emit(telemetry.New(telemetry.ActionRetried, fields))
	}
	return rep, nil
}

func (q *ActionQueue) Len(ctx context.Context) (int, error) {
	return q.store.Len(ctx)
}

func (q *ActionQueue) List(ctx context.Context) ([]types.QueuedAction, error) {
	return q.store.List(ctx)
}
