package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmem "github.com/BrandonDHaskell/turnstile/internal/authority/memory"
	"github.com/BrandonDHaskell/turnstile/internal/gate/service"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

// ═══════════════════════════════════════════════════════════════════════════
// Decision rules
// ═══════════════════════════════════════════════════════════════════════════

func TestValidate_Outcomes(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		event  string
		status types.ValidationStatus
		reason string
	}{
		{"absent", "T404", "E1", types.StatusInvalid, types.ReasonNotFoundLocally},
		{"wrong event", "T3", "E1", types.StatusInvalid, types.ReasonWrongEvent},
		{"already used", "T-used", "E1", types.StatusDuplicate, types.ReasonAlreadyUsed},
		{"already used under another event", "T-used", "E2", types.StatusDuplicate, types.ReasonAlreadyUsed},
		{"not yet valid", "T-future", "E1", types.StatusExpired, types.ReasonNotYetValid},
		{"expired", "T-past", "E1", types.StatusExpired, types.ReasonExpired},
		{"accepted", "T1", "E1", types.StatusValid, types.ReasonAccepted},
		{"accepted without event context", "T3", "", types.StatusValid, types.ReasonAccepted},
		{"qr payload event wins", `{"ticket_id":"T3","event_id":"E2"}`, "E1", types.StatusValid, types.ReasonAccepted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDevice(t, "dev-1", authmem.New())

			res, err := d.validator.Validate(d.ctx, scan("scanner-1", "G1", tc.event, tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.reason, res.Reason)

			recs := d.records.Records()
			require.Len(t, recs, 1, "every attempt leaves exactly one record")
			assert.Equal(t, types.SyncPending, recs[0].SyncStatus)
			assert.Equal(t, tc.status, recs[0].Status)
			assert.Equal(t, "dev-1", recs[0].DeviceID)
			assert.Equal(t, res.RecordID, recs[0].ID)
		})
	}
}

func TestValidate_UsedTicketIsNotMutated(t *testing.T) {
	d := newDevice(t, "dev-1", authmem.New())
	before, _ := d.tickets.Ticket("T-used")

	res, err := d.validator.Validate(d.ctx, scan("scanner-1", "G1", "E1", "T-used"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusDuplicate, res.Status)

	after, _ := d.tickets.Ticket("T-used")
	assert.Equal(t, before, after)
}

func TestValidate_WindowBoundsInclusive(t *testing.T) {
	for _, at := range []time.Time{t0.Add(-2 * time.Hour), t0.Add(4 * time.Hour)} {
		d := newDevice(t, "dev-1", authmem.New())
		v := service.NewValidator(d.cache, d.records, service.ValidatorConfig{Now: fixedClock(at)}, nil)

		res, err := v.Validate(d.ctx, scan("scanner-1", "G1", "E1", "T1"))
		require.NoError(t, err)
		assert.Equal(t, types.StatusValid, res.Status, "at %s", at)
	}
}

func TestValidate_ValidThenDuplicate(t *testing.T) {
	d := newDevice(t, "dev-1", authmem.New())

	first, err := d.validator.Validate(d.ctx, scan("scanner-1", "G1", "E1", "T1"))
	require.NoError(t, err)
	second, err := d.validator.Validate(d.ctx, scan("scanner-1", "G1", "E1", "T1"))
	require.NoError(t, err)

	assert.Equal(t, types.StatusValid, first.Status)
	require.NotNil(t, first.Metadata)
	assert.Equal(t, "vip", first.Metadata.Tier)
	assert.Equal(t, "A-12", first.Metadata.SeatNumber)
	assert.Equal(t, "G1", first.Metadata.GateID)
	assert.True(t, first.Metadata.ScannedAt.Equal(t0))

	assert.Equal(t, types.StatusDuplicate, second.Status)
	assert.Nil(t, second.Metadata)
	assert.Len(t, d.records.Records(), 2)
}

func TestValidate_StorageFailureIsInvalid(t *testing.T) {
	d := newDevice(t, "dev-1", authmem.New())
	d.tickets.FailWrites = errors.New("disk full")

	res, err := d.validator.Validate(d.ctx, scan("scanner-1", "G1", "E1", "T1"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusInvalid, res.Status)
	assert.Equal(t, types.ReasonOfflineValidation, res.Reason)

	got, _ := d.cache.Get("T1")
	assert.False(t, got.IsUsed, "not auto-retried, not consumed")
}

func TestValidate_RecordAppendFailureStillReturnsVerdict(t *testing.T) {
	d := newDevice(t, "dev-1", authmem.New())
	d.records.FailAppend = errors.New("log full")

	res, err := d.validator.Validate(d.ctx, scan("scanner-1", "G1", "E1", "T1"))
	require.ErrorIs(t, err, service.ErrRecordNotPersisted)
	assert.Equal(t, types.StatusValid, res.Status)
	assert.Empty(t, res.RecordID)
	assert.Len(t, d.events.OfKind(telemetry.ValidationNotPersisted), 1)
}

func TestValidate_EmptyInputRecordsNothing(t *testing.T) {
	d := newDevice(t, "dev-1", authmem.New())

	_, err := d.validator.Validate(d.ctx, scan("scanner-1", "G1", "E1", "   "))
	require.ErrorIs(t, err, service.ErrEmptyScanInput)
	assert.Empty(t, d.records.Records())
}

// ═══════════════════════════════════════════════════════════════════════════
// Scan input
// ═══════════════════════════════════════════════════════════════════════════

func TestParseScanInput(t *testing.T) {
	cases := []struct {
		raw  string
		want service.ScanInput
	}{
		{"T1", service.ScanInput{TicketID: "T1"}},
		{"  T1\n", service.ScanInput{TicketID: "T1"}},
		{`{"ticket_id":"T1","event_id":"E1"}`, service.ScanInput{TicketID: "T1", EventID: "E1"}},
		{`{"ticketId":"T1","eventId":"E1"}`, service.ScanInput{TicketID: "T1", EventID: "E1"}},
		{`{broken`, service.ScanInput{TicketID: `{broken`}},
	}
	for _, tc := range cases {
		got, err := service.ParseScanInput(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := service.ParseScanInput(`{"event_id":"E1"}`)
	assert.ErrorIs(t, err, service.ErrEmptyScanInput)
}
