package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// ActionStore keeps the action queue in a slice; index 0 is the head.
type ActionStore struct {
	mu      sync.Mutex
	actions []types.QueuedAction
}

func NewActionStore() *ActionStore {
	return &ActionStore{}
}

func (s *ActionStore) Push(_ context.Context, a types.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	return nil
}

func (s *ActionStore) List(_ context.Context) ([]types.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.QueuedAction, len(s.actions))
	copy(out, s.actions)
	return out, nil
}

func (s *ActionStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return store.ErrNotFound
	}
	s.actions = append(s.actions[:i], s.actions[i+1:]...)
	return nil
}

func (s *ActionStore) Requeue(_ context.Context, a types.QueuedAction, toHead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(a.ID)
	if i < 0 {
		return store.ErrNotFound
	}
	s.actions = append(s.actions[:i], s.actions[i+1:]...)
	if toHead {
		s.actions = append([]types.QueuedAction{a}, s.actions...)
	} else {
		s.actions = append(s.actions, a)
	}
	return nil
}

func (s *ActionStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions), nil
}

func (s *ActionStore) index(id string) int {
	for i, a := range s.actions {
		if a.ID == id {
			return i
		}
	}
	return -1
}
