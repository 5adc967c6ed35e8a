package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/turnstile/internal/gate/service"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store/memory"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

// ═══════════════════════════════════════════════════════════════════════════
// Load
// ═══════════════════════════════════════════════════════════════════════════

func TestTicketCache_LoadFailureStartsEmpty(t *testing.T) {
	st := memory.NewTicketStore(sampleTickets()...)
	st.FailLoad = errors.New("corrupt file")
	rec := telemetry.NewRecorder()

	c := service.NewTicketCache(st, rec)
	n := c.Load(context.Background())

	assert.Equal(t, 0, n)
	_, ok := c.Get("T1")
	assert.False(t, ok)
	assert.Len(t, rec.OfKind(telemetry.CacheLoadFailed), 1)
}

func TestTicketCache_LoadPopulates(t *testing.T) {
	c := service.NewTicketCache(memory.NewTicketStore(sampleTickets()...), nil)
	assert.Equal(t, len(sampleTickets()), c.Load(context.Background()))

	got, ok := c.Get(" T1 ")
	require.True(t, ok)
	assert.Equal(t, "vip", got.Tier)
}

// ═══════════════════════════════════════════════════════════════════════════
// MarkUsed
// ═══════════════════════════════════════════════════════════════════════════

func TestTicketCache_MarkUsedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTicketStore(sampleTickets()...)
	c := service.NewTicketCache(st, nil)
	c.Load(ctx)

	won, err := c.MarkUsed(ctx, "T1", t0)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = c.MarkUsed(ctx, "T1", t0)
	require.NoError(t, err)
	assert.False(t, won)

	stored, _ := st.Ticket("T1")
	assert.True(t, stored.IsUsed, "persisted before visible")
	require.NotNil(t, stored.UsedLocallyAt)
	assert.True(t, stored.UsedLocallyAt.Equal(t0))
}

func TestTicketCache_MarkUsedStorageFailureLeavesTicketUnused(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTicketStore(sampleTickets()...)
	c := service.NewTicketCache(st, nil)
	c.Load(ctx)
	st.FailWrites = errors.New("disk full")

	won, err := c.MarkUsed(ctx, "T1", t0)
	assert.Error(t, err)
	assert.False(t, won)

	got, _ := c.Get("T1")
	assert.False(t, got.IsUsed)
}

func TestTicketCache_MarkUsedUnknownTicket(t *testing.T) {
	c := service.NewTicketCache(memory.NewTicketStore(), nil)
	won, err := c.MarkUsed(context.Background(), "nope", t0)
	require.NoError(t, err)
	assert.False(t, won)
}

// ═══════════════════════════════════════════════════════════════════════════
// Replace
// ═══════════════════════════════════════════════════════════════════════════

func TestTicketCache_ReplaceKeepsLocalConsumption(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTicketStore(sampleTickets()...)
	c := service.NewTicketCache(st, nil)
	c.Load(ctx)

	_, err := c.MarkUsed(ctx, "T1", t0)
	require.NoError(t, err)

	// The authority has not heard about the admission yet.
	require.NoError(t, c.Replace(ctx, sampleTickets()))

	got, _ := c.Get("T1")
	assert.True(t, got.IsUsed)
	require.NotNil(t, got.UsedLocallyAt)

	stored, _ := st.Ticket("T1")
	assert.True(t, stored.IsUsed, "sticky flag persisted too")

	// Now it has.
	confirmed := sampleTickets()
	confirmed[0].IsUsed = true
	require.NoError(t, c.Replace(ctx, confirmed))

	got, _ = c.Get("T1")
	assert.True(t, got.IsUsed)
	assert.Nil(t, got.UsedLocallyAt)
}

func TestTicketCache_ReplaceDropsTicketsMissingFromSnapshot(t *testing.T) {
	ctx := context.Background()
	c := service.NewTicketCache(memory.NewTicketStore(sampleTickets()...), nil)
	c.Load(ctx)

	require.NoError(t, c.Replace(ctx, sampleTickets()[:1]))

	_, ok := c.Get("T2")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Tickets)
}

func TestTicketCache_ReplaceTrimsTicketIDs(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTicketStore()
	c := service.NewTicketCache(st, nil)

	require.NoError(t, c.Replace(ctx, []types.Ticket{{TicketID: " T9 ", EventID: "E1", Tier: "general"}}))

	_, ok := c.Get("T9")
	require.True(t, ok)
	won, err := c.MarkUsed(ctx, " T9 ", t0)
	require.NoError(t, err)
	assert.True(t, won)

	// Same keys after a restart.
	reloaded := service.NewTicketCache(st, nil)
	reloaded.Load(ctx)
	got, ok := reloaded.Get("T9")
	require.True(t, ok)
	assert.True(t, got.IsUsed)
}

func TestTicketCache_ReplaceFailureKeepsPreviousContents(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTicketStore(sampleTickets()...)
	c := service.NewTicketCache(st, nil)
	c.Load(ctx)
	st.FailWrites = errors.New("disk full")

	err := c.Replace(ctx, []types.Ticket{{TicketID: "X", EventID: "E9"}})
	require.Error(t, err)

	_, ok := c.Get("T1")
	assert.True(t, ok)
	_, ok = c.Get("X")
	assert.False(t, ok)
}

func TestTicketCache_Stats(t *testing.T) {
	ctx := context.Background()
	c := service.NewTicketCache(memory.NewTicketStore(sampleTickets()...), nil)
	c.Load(ctx)
	_, err := c.MarkUsed(ctx, "T2", t0)
	require.NoError(t, err)

	assert.Equal(t, service.CacheStats{Tickets: 6, Used: 2, UsedLocally: 1}, c.Stats())
}
