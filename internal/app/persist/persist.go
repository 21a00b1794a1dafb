/*
Package persist saves and restores the presence set.

The whole state is one document: every user record, ghosts included, plus the banned
addresses. Backends store it verbatim; a failed load leaves the server starting empty.
*/
package persist

import (
	"context"
	"errors"
	"sync"

	"gridroom/internal/app/user"
)

// State is the persisted snapshot.
type State struct {
	Users     []user.User `json:"users"`
	BannedIPs []string    `json:"bannedIps"`
}

// ErrNoState is returned by Load when nothing has been saved yet.
var ErrNoState = errors.New("no saved state")

// Store is a persistence backend.
type Store interface {
	// Load returns the last saved state, or ErrNoState.
	Load(ctx context.Context) (State, error)

	// Save replaces the saved state.
	Save(ctx context.Context, s State) error

	// Close releases backend resources.
	Close() error
}

// Memory keeps the state in process. It is the default when no backend is configured.
type Memory struct {
	mu    sync.Mutex
	state *State
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return State{}, ErrNoState
	}
	return clone(*m.state), nil
}

func (m *Memory) Save(_ context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := clone(s)
	m.state = &c
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func clone(s State) State {
	out := State{
		Users:     make([]user.User, len(s.Users)),
		BannedIPs: append([]string{}, s.BannedIPs...),
	}
	for i := range s.Users {
		out.Users[i] = s.Users[i].Clone()
	}
	return out
}
