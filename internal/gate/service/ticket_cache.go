package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

// TicketCache is the in-memory view of the local ticket store. Every
// mutation is written to the store before the in-memory map changes, and
// the mutex keeps MarkUsed and Replace from interleaving.
type TicketCache struct {
	mu      sync.RWMutex
	store   store.TicketStore
	tickets map[string]types.Ticket
	events  telemetry.Emitter
}

type CacheStats struct {
	Tickets     int `json:"tickets"`
	Used        int `json:"used"`
	UsedLocally int `json:"used_locally"`
}

func NewTicketCache(st store.TicketStore, em telemetry.Emitter) *TicketCache {
	if em == nil {
		em = telemetry.Nop()
	}
	return &TicketCache{
		store:   st,
		tickets: make(map[string]types.Ticket),
		events:  em,
	}
}

// Load fills the cache from durable storage. A load failure leaves the
// cache empty; the device keeps running and the next snapshot repopulates it.
func (c *TicketCache) Load(ctx context.Context) int {
	tickets, err := c.store.LoadAll(ctx)
	if err != nil {
		c.events.Emit(telemetry.New(telemetry.CacheLoadFailed, telemetry.Fields{"error": err.Error()}))
		tickets = nil
	}

	next := make(map[string]types.Ticket, len(tickets))
	for _, t := range tickets {
		next[t.TicketID] = t
	}

	c.mu.Lock()
	c.tickets = next
	c.mu.Unlock()

	if err == nil {
		c.events.Emit(telemetry.New(telemetry.CacheLoaded, telemetry.Fields{"tickets": len(next)}))
	}
	return len(next)
}

// Replace overwrites the cache with an authoritative ticket set.
//
// A ticket this device consumed stays used while the authority still
// reports it unused; an authoritative is_used=true clears the local mark.
func (c *TicketCache) Replace(ctx context.Context, tickets []types.Ticket) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make([]types.Ticket, 0, len(tickets))
	next := make(map[string]types.Ticket, len(tickets))
	sticky := 0
	for _, t := range tickets {
		t.TicketID = strings.TrimSpace(t.TicketID)
		t.UsedLocallyAt = nil
		if !t.IsUsed {
			if local, ok := c.tickets[t.TicketID]; ok && local.UsedLocallyAt != nil {
				t.IsUsed = true
				t.UsedLocallyAt = local.UsedLocallyAt
				sticky++
			}
		}
		merged = append(merged, t)
		next[t.TicketID] = t
	}

	if err := c.store.ReplaceAll(ctx, merged); err != nil {
		return fmt.Errorf("replace tickets: %w", err)
	}
	c.tickets = next

	c.events.Emit(telemetry.New(telemetry.CacheReplaced, telemetry.Fields{
		"tickets":       len(next),
		"kept_local_use": sticky,
	}))
	return nil
}

func (c *TicketCache) Get(ticketID string) (types.Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickets[strings.TrimSpace(ticketID)]
	return t, ok
}

// MarkUsed consumes a ticket and reports whether this call won. The change
// is persisted before it becomes visible.
func (c *TicketCache) MarkUsed(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ticketID = strings.TrimSpace(ticketID)
	t, ok := c.tickets[ticketID]
	if !ok || t.IsUsed {
		return false, nil
	}

	won, err := c.store.MarkUsed(ctx, ticketID, at)
	if err != nil {
		return false, fmt.Errorf("mark used: %w", err)
	}

	// The store is authoritative for the flag; even a lost race means the
	// ticket is consumed.
	t.IsUsed = true
	if won {
		usedAt := at
		t.UsedLocallyAt = &usedAt
	}
	c.tickets[ticketID] = t
	return won, nil
}

func (c *TicketCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var st CacheStats
	st.Tickets = len(c.tickets)
	for _, t := range c.tickets {
		if t.IsUsed {
			st.Used++
		}
		if t.UsedLocallyAt != nil {
			st.UsedLocally++
		}
	}
	return st
}
