package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

var ErrNotAuthorized = errors.New("staff member not authorized")

// Connectivity reports whether the authority is believed reachable.
type Connectivity interface {
	Online() bool
}

// Gate is the entry point for a scanning device: authorize the operator,
// validate the ticket locally, then hand the admission to the authority
// right away or park it in the action queue.
type Gate struct {
	access     *AccessControl
	validator  *Validator
	queue      *ActionQueue
	dispatcher Dispatcher
	conn       Connectivity
	deviceID   string
	events     telemetry.Emitter
}

type GateDeps struct {
	Access     *AccessControl
	Validator  *Validator
	Queue      *ActionQueue
	Dispatcher Dispatcher
	Conn       Connectivity
}

func NewGate(deps GateDeps, deviceID string, em telemetry.Emitter) *Gate {
	if em == nil {
		em = telemetry.Nop()
	}
	return &Gate{
		access:     deps.Access,
		validator:  deps.Validator,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		conn:       deps.Conn,
		deviceID:   deviceID,
		events:     em,
	}
}

// Scan handles one scan end to end. A denied operator gets
// ErrNotAuthorized and no validation record is written.
//
// The returned result is meaningful whenever its Status is set, even if
// err is non-nil (for example ErrRecordNotPersisted).
func (g *Gate) Scan(ctx context.Context, req types.ScanRequest) (types.ScanResult, error) {
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.GateID = strings.TrimSpace(req.GateID)
	req.EventID = strings.TrimSpace(req.EventID)
	if req.EventID == "" {
		// Scope the operator check to the event named by the QR payload,
		// else to the event of the cached ticket.
		if in, err := ParseScanInput(req.Input); err == nil {
			req.EventID = in.EventID
			if req.EventID == "" {
				if t, ok := g.validator.cache.Get(in.TicketID); ok {
					req.EventID = t.EventID
				}
			}
		}
	}

	ac := types.AccessContext{GateID: req.GateID, EventID: req.EventID}
	if !g.access.Authorize(ctx, req.StaffID, "scan", "ticket", ac) {
		return types.ScanResult{}, ErrNotAuthorized
	}

	res, err := g.validator.Validate(ctx, req)
	if res.Status != types.StatusValid {
		return res, err
	}

	payload := types.Payload{
		"ticket_id":  res.TicketID,
		"event_id":   req.EventID,
		"gate_id":    req.GateID,
		"staff_id":   req.StaffID,
		"device_id":  g.deviceID,
		"record_id":  res.RecordID,
		"scanned_at": res.Metadata.ScannedAt.Format(time.RFC3339Nano),
	}
	if t, ok := g.validator.cache.Get(res.TicketID); ok && req.EventID == "" {
		payload["event_id"] = t.EventID
	}
	if _, subErr := g.Submit(ctx, types.ActionValidateTicket, payload); subErr != nil {
		err = errors.Join(err, fmt.Errorf("submit admission: %w", subErr))
	}
	return res, err
}

// Submit sends a mutating action to the authority when online. If the
// device is offline or the call fails, the action is queued under the
// same id so a later delivery is recognised as the same request. The bool
// reports whether the action was queued.
func (g *Gate) Submit(ctx context.Context, t types.ActionType, p types.Payload) (bool, error) {
	if !t.Known() {
		return false, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
	a := g.queue.newAction(t, p)

	if g.conn != nil && g.conn.Online() {
		err := g.dispatcher.Dispatch(ctx, a)
		if err == nil {
			g.events.Emit(telemetry.New(telemetry.ActionExecuted, telemetry.Fields{
				"action_id": a.ID,
				"type":      string(a.Type),
				"immediate": true,
			}))
			return false, nil
		}
		a.LastError = err.Error()
	}

	if err := g.queue.push(ctx, a); err != nil {
		return false, err
	}
	return true, nil
}
