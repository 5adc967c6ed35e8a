package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type StaffStore struct {
	mu    sync.RWMutex
	staff map[string]types.StaffMember
}

func NewStaffStore(seed ...types.StaffMember) *StaffStore {
	s := &StaffStore{staff: make(map[string]types.StaffMember, len(seed))}
	for _, m := range seed {
		s.staff[m.StaffID] = m.WithDerivedPermissions()
	}
	return s
}

func (s *StaffStore) Get(_ context.Context, staffID string) (types.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.staff[staffID]
	if !ok {
		return types.StaffMember{}, store.ErrNotFound
	}
	return m, nil
}

func (s *StaffStore) Upsert(_ context.Context, m types.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff[m.StaffID] = m
	return nil
}

func (s *StaffStore) ReplaceAll(_ context.Context, staff []types.StaffMember) error {
	next := make(map[string]types.StaffMember, len(staff))
	for _, m := range staff {
		next[m.StaffID] = m.WithDerivedPermissions()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff = next
	return nil
}

// AccessLogStore is an in-memory append-only log of authorization attempts.
// It is intended for use in tests and dev environments.
type AccessLogStore struct {
	mu      sync.Mutex
	entries []types.AccessLogEntry
}

func NewAccessLogStore() *AccessLogStore {
	return &AccessLogStore{}
}

func (s *AccessLogStore) RecordAccess(_ context.Context, e types.AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return nil
}

func (s *AccessLogStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.At.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// Entries returns a copy of all recorded entries.  Test-only helper.
func (s *AccessLogStore) Entries() []types.AccessLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AccessLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
