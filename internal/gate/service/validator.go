package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

// ErrRecordNotPersisted is returned alongside a verdict when the
// validation record could not be appended. The verdict itself still holds.
var ErrRecordNotPersisted = errors.New("validation record not persisted")

type ValidatorConfig struct {
	DeviceID string
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// Validator decides scans against the local ticket cache and records
// every attempt in the validation log.
type Validator struct {
	cache    *TicketCache
	log      store.ValidationLog
	deviceID string
	now      func() time.Time
	events   telemetry.Emitter
}

func NewValidator(cache *TicketCache, log store.ValidationLog, cfg ValidatorConfig, em telemetry.Emitter) *Validator {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if em == nil {
		em = telemetry.Nop()
	}
	return &Validator{
		cache:    cache,
		log:      log,
		deviceID: cfg.DeviceID,
		now:      cfg.Now,
		events:   em,
	}
}

// Validate runs the decision rules in order; the first match wins:
//
//  1. ticket not cached               -> invalid   (not_found_locally)
//  2. ticket already used             -> duplicate (already_used)
//  3. ticket belongs to another event -> invalid   (wrong_event)
//  4. outside its validity window     -> expired   (not_yet_valid | expired)
//  5. consume it; a lost race is a duplicate and a storage failure is
//     invalid (offline_validation_failed)
//
// Exactly one pending ValidationRecord is appended per call that gets past
// input parsing.
func (v *Validator) Validate(ctx context.Context, req types.ScanRequest) (types.ScanResult, error) {
	in, err := ParseScanInput(req.Input)
	if err != nil {
		return types.ScanResult{}, err
	}

	now := v.now()
	eventID := in.EventID
	if eventID == "" {
		eventID = strings.TrimSpace(req.EventID)
	}

	status, reason, ticket := v.decide(ctx, in.TicketID, eventID, now)

	res := types.ScanResult{
		Status:   status,
		Reason:   reason,
		TicketID: in.TicketID,
	}
	if status == types.StatusValid {
		res.Metadata = &types.ScanMetadata{
			GateID:     req.GateID,
			StaffID:    req.StaffID,
			ScannedAt:  now,
			Tier:       ticket.Tier,
			SeatNumber: ticket.SeatNumber,
		}
	}

	recEvent := eventID
	if recEvent == "" {
		recEvent = ticket.EventID
	}
	rec := types.ValidationRecord{
		ID:         uuid.NewString(),
		TicketID:   in.TicketID,
		EventID:    recEvent,
		GateID:     req.GateID,
		StaffID:    req.StaffID,
		DeviceID:   v.deviceID,
		Timestamp:  now,
		Status:     status,
		Reason:     reason,
		SyncStatus: types.SyncPending,
	}

	v.events.Emit(telemetry.New(telemetry.ValidationDecided, telemetry.Fields{
		"ticket_id": in.TicketID,
		"gate_id":   req.GateID,
		"staff_id":  req.StaffID,
		"status":    string(status),
		"reason":    reason,
	}))

	if err := v.log.Append(ctx, rec); err != nil {
		v.events.Emit(telemetry.New(telemetry.ValidationNotPersisted, telemetry.Fields{
			"ticket_id": in.TicketID,
			"error":     err.Error(),
		}))
		return res, fmt.Errorf("%w: %v", ErrRecordNotPersisted, err)
	}
	res.RecordID = rec.ID
	return res, nil
}

func (v *Validator) decide(ctx context.Context, ticketID, eventID string, now time.Time) (types.ValidationStatus, string, types.Ticket) {
	t, ok := v.cache.Get(ticketID)
	switch {
	case !ok:
		return types.StatusInvalid, types.ReasonNotFoundLocally, t
	case t.IsUsed:
		return types.StatusDuplicate, types.ReasonAlreadyUsed, t
	case eventID != "" && t.EventID != eventID:
		return types.StatusInvalid, types.ReasonWrongEvent, t
	case !t.ValidFrom.IsZero() && now.Before(t.ValidFrom):
		return types.StatusExpired, types.ReasonNotYetValid, t
	case !t.InWindow(now):
		return types.StatusExpired, types.ReasonExpired, t
	}

	won, err := v.cache.MarkUsed(ctx, t.TicketID, now)
	switch {
	case err != nil:
		return types.StatusInvalid, types.ReasonOfflineValidation, t
	case !won:
		return types.StatusDuplicate, types.ReasonAlreadyUsed, t
	}
	return types.StatusValid, types.ReasonAccepted, t
}
