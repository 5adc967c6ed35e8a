package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// TicketStore is an in-memory TicketStore for tests and dev environments.
// Set FailWrites to make every mutating call fail.
type TicketStore struct {
	mu         sync.RWMutex
	tickets    map[string]types.Ticket
	FailWrites error
	FailLoad   error
}

func NewTicketStore(seed ...types.Ticket) *TicketStore {
	s := &TicketStore{tickets: make(map[string]types.Ticket, len(seed))}
	for _, t := range seed {
		s.tickets[t.TicketID] = t
	}
	return s
}

func (s *TicketStore) LoadAll(_ context.Context) ([]types.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailLoad != nil {
		return nil, s.FailLoad
	}
	out := make([]types.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	return out, nil
}

func (s *TicketStore) ReplaceAll(_ context.Context, tickets []types.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	next := make(map[string]types.Ticket, len(tickets))
	for _, t := range tickets {
		next[t.TicketID] = t
	}
	s.tickets = next
	return nil
}

func (s *TicketStore) MarkUsed(_ context.Context, ticketID string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return false, s.FailWrites
	}
	t, ok := s.tickets[ticketID]
	if !ok || t.IsUsed {
		return false, nil
	}
	t.IsUsed = true
	t.UsedLocallyAt = &usedAt
	s.tickets[ticketID] = t
	return true, nil
}

// Ticket returns the stored copy of a ticket.  Test-only helper.
func (s *TicketStore) Ticket(ticketID string) (types.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	return t, ok
}
