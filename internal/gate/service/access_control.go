package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

var (
	ErrInvalidStaffID = errors.New("staff_id is required")
	ErrUnknownRole    = errors.New("unknown role")
)

// Authorization reasons written to the access log.
const (
	AccessGranted          = "granted"
	AccessStaffUnknown     = "staff_unknown"
	AccessStaffInactive    = "staff_inactive"
	AccessEventNotAssigned = "event_not_assigned"
	AccessGateNotAssigned  = "gate_not_assigned"
	AccessPermissionDenied = "permission_denied"
	AccessLookupFailed     = "lookup_failed"
)

// AccessControl decides whether a staff member may act in a gate/event
// context. Every decision is written to the access log.
type AccessControl struct {
	staff  store.StaffStore
	log    store.AccessLogStore
	now    func() time.Time
	events telemetry.Emitter
}

func NewAccessControl(staff store.StaffStore, log store.AccessLogStore, em telemetry.Emitter) *AccessControl {
	if em == nil {
		em = telemetry.Nop()
	}
	return &AccessControl{
		staff:  staff,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		events: em,
	}
}

// Authorize looks the staff member up and applies HasPermission. The
// decision is audited before it is returned; a failed audit write does
// not change it.
func (a *AccessControl) Authorize(ctx context.Context, staffID, action, resource string, ac types.AccessContext) bool {
	staffID = strings.TrimSpace(staffID)

	var (
		granted bool
		reason  string
	)
	m, err := a.staff.Get(ctx, staffID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		reason = AccessStaffUnknown
	case err != nil:
		reason = AccessLookupFailed
	default:
		granted, reason = evaluate(m, action, resource, ac)
	}

	a.record(ctx, staffID, action, resource, ac, granted, reason)
	return granted
}

// HasPermission is the pure authorization predicate.
func HasPermission(m types.StaffMember, action, resource string, ac types.AccessContext) bool {
	granted, _ := evaluate(m, action, resource, ac)
	return granted
}

func evaluate(m types.StaffMember, action, resource string, ac types.AccessContext) (bool, string) {
	if !m.IsActive {
		return false, AccessStaffInactive
	}
	if ac.EventID != "" && !m.HasEvent(ac.EventID) {
		return false, AccessEventNotAssigned
	}
	if ac.GateID != "" && !m.HasGate(ac.GateID) {
		return false, AccessGateNotAssigned
	}
	for _, p := range m.Permissions {
		if p.Matches(action, resource) {
			return true, AccessGranted
		}
	}
	return false, AccessPermissionDenied
}

func (a *AccessControl) record(
	ctx context.Context,
	staffID, action, resource string,
	ac types.AccessContext,
	granted bool,
	reason string,
) {
	entry := types.AccessLogEntry{
		StaffID:  staffID,
		Action:   action,
		Resource: resource,
		GateID:   ac.GateID,
		EventID:  ac.EventID,
		Granted:  granted,
		Reason:   reason,
		At:       a.now(),
	}

	kind := telemetry.AccessDenied
	if granted {
		kind = telemetry.AccessGranted
	}
	fields := telemetry.Fields{
		"staff_id": staffID,
		"action":   action,
		"resource": resource,
		"reason":   reason,
	}
	if err := a.log.RecordAccess(ctx, entry); err != nil {
		fields["audit_error"] = err.Error()
	}
	a.events.Emit(telemetry.New(kind, fields))
}

// Assign creates or replaces a staff member. Permissions always come
// from the role.
func (a *AccessControl) Assign(ctx context.Context, m types.StaffMember) error {
	m.StaffID = strings.TrimSpace(m.StaffID)
	if m.StaffID == "" {
		return ErrInvalidStaffID
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, m.Role)
	}
	return a.staff.Upsert(ctx, m.WithDerivedPermissions())
}

func (a *AccessControl) ChangeRole(ctx context.Context, staffID string, role types.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return a.update(ctx, staffID, func(m *types.StaffMember) {
		m.Role = role
		*m = m.WithDerivedPermissions()
	})
}

// Deactivate soft-disables a staff member; the record is kept.
func (a *AccessControl) Deactivate(ctx context.Context, staffID string) error {
	return a.update(ctx, staffID, func(m *types.StaffMember) { m.IsActive = false })
}

func (a *AccessControl) RecordLogin(ctx context.Context, staffID string) error {
	at := a.now()
	return a.update(ctx, staffID, func(m *types.StaffMember) { m.LastLogin = &at })
}

func (a *AccessControl) update(ctx context.Context, staffID string, fn func(*types.StaffMember)) error {
	m, err := a.staff.Get(ctx, strings.TrimSpace(staffID))
	if err != nil {
		return fmt.Errorf("get staff %q: %w", staffID, err)
	}
	fn(&m)
	return a.staff.Upsert(ctx, m)
}
