package client

import (
	"context"
	"sync"
)

type ConnectionStatus struct {
	Connected        bool `json:"connected"`
	ParticipantCount int  `json:"participantCount"`
}

// State is the small session record the extension persists. The core does not
// care where it lives.
type State struct {
	UserId           string           `json:"userId"`
	UserName         string           `json:"userName"`
	CurrentRoomId    string           `json:"currentRoomId"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
}

type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// MemoryStateStore keeps the session state in memory. Useful on its own for
// tests and as the default store.
type MemoryStateStore struct {
	mu    sync.RWMutex
	state State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (s *MemoryStateStore) Load(ctx context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state, nil
}

func (s *MemoryStateStore) Save(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state

	return nil
}
