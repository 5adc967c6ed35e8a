package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/turnstile/internal/gate/service"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store/memory"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type failingAccessLog struct{}

func (failingAccessLog) RecordAccess(context.Context, types.AccessLogEntry) error {
	return errors.New("audit disk full")
}

func (failingAccessLog) PruneOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

// ═══════════════════════════════════════════════════════════════════════════
// Authorize
// ═══════════════════════════════════════════════════════════════════════════

func TestAuthorize_ScannerScopedToAssignedEvent(t *testing.T) {
	ctx := context.Background()
	logs := memory.NewAccessLogStore()
	ac := service.NewAccessControl(memory.NewStaffStore(sampleStaff()...), logs, nil)

	assert.True(t, ac.Authorize(ctx, "scanner-1", "scan", "ticket", types.AccessContext{EventID: "E1"}))
	assert.False(t, ac.Authorize(ctx, "scanner-1", "scan", "ticket", types.AccessContext{EventID: "E2"}))

	entries := logs.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Granted)
	assert.Equal(t, service.AccessGranted, entries[0].Reason)
	assert.False(t, entries[1].Granted)
	assert.Equal(t, service.AccessEventNotAssigned, entries[1].Reason)
	assert.Equal(t, "E2", entries[1].EventID)
}

func TestAuthorize_DenialReasons(t *testing.T) {
	cases := []struct {
		name     string
		staffID  string
		action   string
		resource string
		ctx      types.AccessContext
		reason   string
	}{
		{"unknown staff", "ghost", "scan", "ticket", types.AccessContext{}, service.AccessStaffUnknown},
		{"inactive", "inactive-1", "scan", "ticket", types.AccessContext{EventID: "E1"}, service.AccessStaffInactive},
		{"wrong gate", "scanner-1", "scan", "ticket", types.AccessContext{GateID: "G2"}, service.AccessGateNotAssigned},
		{"no permission", "scanner-1", "override", "validation", types.AccessContext{}, service.AccessPermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := memory.NewAccessLogStore()
			ac := service.NewAccessControl(memory.NewStaffStore(sampleStaff()...), logs, nil)

			assert.False(t, ac.Authorize(context.Background(), tc.staffID, tc.action, tc.resource, tc.ctx))
			entries := logs.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.reason, entries[0].Reason)
		})
	}
}

func TestAuthorize_AuditFailureDoesNotChangeDecision(t *testing.T) {
	ac := service.NewAccessControl(memory.NewStaffStore(sampleStaff()...), failingAccessLog{}, nil)
	assert.True(t, ac.Authorize(context.Background(), "scanner-1", "scan", "ticket", types.AccessContext{EventID: "E1", GateID: "G1"}))
}

// ═══════════════════════════════════════════════════════════════════════════
// Role table
// ═══════════════════════════════════════════════════════════════════════════

func TestHasPermission_RoleTable(t *testing.T) {
	checks := []struct {
		action, resource string
		want             map[types.Role]bool
	}{
		{"scan", "ticket", map[types.Role]bool{types.RoleScanner: true, types.RoleSupervisor: true, types.RoleManager: true, types.RoleAdmin: true}},
		{"view", "report", map[types.Role]bool{types.RoleSupervisor: true, types.RoleManager: true, types.RoleAdmin: true}},
		{"override", "validation", map[types.Role]bool{types.RoleSupervisor: true, types.RoleManager: true, types.RoleAdmin: true}},
		{"update", "attendance", map[types.Role]bool{types.RoleManager: true, types.RoleAdmin: true}},
		{"manage", "staff", map[types.Role]bool{types.RoleManager: true, types.RoleAdmin: true}},
		{"scan", "wristband", map[types.Role]bool{types.RoleManager: true, types.RoleAdmin: true}},
		{"delete", "event", map[types.Role]bool{types.RoleAdmin: true}},
	}

	roles := []types.Role{types.RoleScanner, types.RoleSupervisor, types.RoleManager, types.RoleAdmin}
	for _, c := range checks {
		for _, r := range roles {
			m := types.StaffMember{StaffID: "s", Role: r, IsActive: true}.WithDerivedPermissions()
			got := service.HasPermission(m, c.action, c.resource, types.AccessContext{})
			assert.Equal(t, c.want[r], got, "%s may %s:%s", r, c.action, c.resource)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Staff lifecycle
// ═══════════════════════════════════════════════════════════════════════════

func TestAssign_DerivesPermissionsFromRole(t *testing.T) {
	ctx := context.Background()
	staff := memory.NewStaffStore()
	ac := service.NewAccessControl(staff, memory.NewAccessLogStore(), nil)

	require.NoError(t, ac.Assign(ctx, types.StaffMember{
		StaffID:     "s1",
		Role:        types.RoleScanner,
		IsActive:    true,
		Permissions: []types.Permission{{Action: "*", Resource: "*"}},
	}))

	got, err := staff.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.PermissionsFor(types.RoleScanner), got.Permissions)
}

func TestAssign_RejectsUnknownRoleAndEmptyID(t *testing.T) {
	ac := service.NewAccessControl(memory.NewStaffStore(), memory.NewAccessLogStore(), nil)

	assert.ErrorIs(t, ac.Assign(context.Background(), types.StaffMember{StaffID: "s1", Role: "janitor"}), service.ErrUnknownRole)
	assert.ErrorIs(t, ac.Assign(context.Background(), types.StaffMember{Role: types.RoleAdmin}), service.ErrInvalidStaffID)
}

func TestChangeRole_RederivesPermissions(t *testing.T) {
	ctx := context.Background()
	staff := memory.NewStaffStore(sampleStaff()...)
	ac := service.NewAccessControl(staff, memory.NewAccessLogStore(), nil)

	assert.False(t, ac.Authorize(ctx, "scanner-1", "view", "report", types.AccessContext{}))
	require.NoError(t, ac.ChangeRole(ctx, "scanner-1", types.RoleSupervisor))
	assert.True(t, ac.Authorize(ctx, "scanner-1", "view", "report", types.AccessContext{}))

	assert.ErrorIs(t, ac.ChangeRole(ctx, "ghost", types.RoleAdmin), store.ErrNotFound)
}

func TestDeactivate_IsSoft(t *testing.T) {
	ctx := context.Background()
	staff := memory.NewStaffStore(sampleStaff()...)
	ac := service.NewAccessControl(staff, memory.NewAccessLogStore(), nil)

	require.NoError(t, ac.Deactivate(ctx, "scanner-1"))

	got, err := staff.Get(ctx, "scanner-1")
	require.NoError(t, err, "record kept")
	assert.False(t, got.IsActive)
	assert.False(t, ac.Authorize(ctx, "scanner-1", "scan", "ticket", types.AccessContext{}))
}

func TestRecordLogin(t *testing.T) {
	ctx := context.Background()
	staff := memory.NewStaffStore(sampleStaff()...)
	ac := service.NewAccessControl(staff, memory.NewAccessLogStore(), nil)

	require.NoError(t, ac.RecordLogin(ctx, "super-1"))
	got, _ := staff.Get(ctx, "super-1")
	assert.NotNil(t, got.LastLogin)
}
