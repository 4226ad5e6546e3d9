package session

import (
	"sync"

	"github.com/relaygate/relaygate/internal/gateway/provider"
)

// State is the lifecycle state of one session.
type State int

const (
	// StatePending means no client has been constructed yet.
	StatePending State = iota
	// StateConnecting means the client is created and initialization is in
	// flight.
	StateConnecting
	// StateAwaitingAuth means a pairing challenge was shown.
	StateAwaitingAuth
	// StateAuthenticated means pairing succeeded.
	StateAuthenticated
	// StateReady means the connection is fully operational.
	StateReady
	// StateDisconnected is terminal; the entry is removed.
	StateDisconnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting-auth"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the volatile runtime projection of one registry record. It
// exclusively owns its provider client; a client handle is never shared
// across sessions.
type Session struct {
	id          string
	description string
	client      provider.Client

	mu    sync.RWMutex
	state State
}

// ID returns the stable session identifier.
func (s *Session) ID() string {
	return s.id
}

// Description returns the free-form session label.
func (s *Session) Description() string {
	return s.description
}

// Client returns the provider client owned by this session.
func (s *Session) Client() provider.Client {
	return s.client
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
