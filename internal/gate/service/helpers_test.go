package service_test

import (
	"context"
	"testing"
	"time"

	authmem "github.com/BrandonDHaskell/turnstile/internal/authority/memory"
	"github.com/BrandonDHaskell/turnstile/internal/gate/service"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store/memory"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sampleTickets() []types.Ticket {
	return []types.Ticket{
		{
			TicketID: "T1", EventID: "E1", UserID: "U1", Tier: "vip", SeatNumber: "A-12",
			ValidFrom: t0.Add(-2 * time.Hour), ValidUntil: t0.Add(4 * time.Hour),
		},
		{
			TicketID: "T2", EventID: "E1", UserID: "U2", Tier: "general",
			ValidFrom: t0.Add(-2 * time.Hour), ValidUntil: t0.Add(4 * time.Hour),
		},
		{
			TicketID: "T3", EventID: "E2", UserID: "U3", Tier: "general",
			ValidFrom: t0.Add(-2 * time.Hour), ValidUntil: t0.Add(4 * time.Hour),
		},
		{
			TicketID: "T-used", EventID: "E1", UserID: "U4", Tier: "general", IsUsed: true,
			ValidFrom: t0.Add(-2 * time.Hour), ValidUntil: t0.Add(4 * time.Hour),
		},
		{
			TicketID: "T-future", EventID: "E1", UserID: "U5", Tier: "general",
			ValidFrom: t0.Add(time.Hour), ValidUntil: t0.Add(4 * time.Hour),
		},
		{
			TicketID: "T-past", EventID: "E1", UserID: "U6", Tier: "general",
			ValidFrom: t0.Add(-6 * time.Hour), ValidUntil: t0.Add(-time.Hour),
		},
	}
}

func sampleStaff() []types.StaffMember {
	return []types.StaffMember{
		{StaffID: "scanner-1", Role: types.RoleScanner, EventIDs: []string{"E1"}, GateIDs: []string{"G1"}, IsActive: true},
		{StaffID: "super-1", Role: types.RoleSupervisor, EventIDs: []string{"E1", "E2"}, GateIDs: []string{"G1", "G2"}, IsActive: true},
		{StaffID: "inactive-1", Role: types.RoleScanner, EventIDs: []string{"E1"}, GateIDs: []string{"G1"}, IsActive: false},
	}
}

// device wires a complete gate core over in-memory stores, the way
// cmd/turnstile-gate wires it over SQLite.
type device struct {
	ctx context.Context

	tickets   *memory.TicketStore
	records   *memory.ValidationLog
	actions   *memory.ActionStore
	staff     *memory.StaffStore
	accessLog *memory.AccessLogStore
	events    *telemetry.Recorder

	cache     *service.TicketCache
	validator *service.Validator
	access    *service.AccessControl
	queue     *service.ActionQueue
	sync      *service.SyncCoordinator
	gate      *service.Gate
}

func newDevice(t *testing.T, deviceID string, auth *authmem.Authority, eventIDs ...string) *device {
	t.Helper()

	d := &device{
		ctx:       context.Background(),
		tickets:   memory.NewTicketStore(sampleTickets()...),
		records:   memory.NewValidationLog(),
		actions:   memory.NewActionStore(),
		staff:     memory.NewStaffStore(sampleStaff()...),
		accessLog: memory.NewAccessLogStore(),
		events:    telemetry.NewRecorder(),
	}

	d.cache = service.NewTicketCache(d.tickets, d.events)
	d.cache.Load(d.ctx)
	d.validator = service.NewValidator(d.cache, d.records, service.ValidatorConfig{
		DeviceID: deviceID,
		Now:      fixedClock(t0),
	}, d.events)
	d.access = service.NewAccessControl(d.staff, d.accessLog, d.events)
	d.queue = service.NewActionQueue(d.actions, service.QueueConfig{Now: fixedClock(t0)}, d.events)

	dispatcher := service.NewAuthorityDispatcher(auth)
	d.sync = service.NewSyncCoordinator(service.SyncDeps{
		Client:     auth,
		Queue:      d.queue,
		Dispatcher: dispatcher,
		Records:    d.records,
		Cache:      d.cache,
		Staff:      d.staff,
	}, service.SyncConfig{EventIDs: eventIDs, BatchSize: 2}, d.events, nil)
	d.gate = service.NewGate(service.GateDeps{
		Access:     d.access,
		Validator:  d.validator,
		Queue:      d.queue,
		Dispatcher: dispatcher,
		Conn:       d.sync,
	}, deviceID, d.events)
	return d
}

func authoritySnapshots() []types.Snapshot {
	var e1, e2 types.Snapshot
	e1.EventID, e2.EventID = "E1", "E2"
	for _, tk := range sampleTickets() {
		switch tk.EventID {
		case "E1":
			e1.Tickets = append(e1.Tickets, tk)
		case "E2":
			e2.Tickets = append(e2.Tickets, tk)
		}
	}
	e1.Staff = sampleStaff()
	e2.Staff = sampleStaff()[1:2]
	return []types.Snapshot{e1, e2}
}

func scan(staffID, gateID, eventID, input string) types.ScanRequest {
	return types.ScanRequest{StaffID: staffID, GateID: gateID, EventID: eventID, Input: input}
}
