// Package session implements the gateway's orchestration core: it creates,
// tracks, and tears down provider sessions, binds each provider client's
// lifecycle events to registry updates and bus announcements, and recovers
// every registered session at startup.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/relaygate/relaygate/internal/common/apperrors"
	"github.com/relaygate/relaygate/internal/gateway/auth"
	"github.com/relaygate/relaygate/internal/gateway/eventbus"
	"github.com/relaygate/relaygate/internal/gateway/provider"
	"github.com/relaygate/relaygate/internal/gateway/registry"
)

// ReconnectPolicy bounds the automatic reconnect attempted after a provider
// connection is lost. Attempts of zero disables reconnection.
type ReconnectPolicy struct {
	Attempts uint
	Delay    time.Duration
}

// Manager owns the in-memory session table and enforces at most one live
// client per session id. The durable registry is the persistent projection
// of the table; the manager keeps the two converged.
type Manager struct {
	store    *registry.Store
	bus      *eventbus.EventBus
	verifier auth.Verifier
	factory  provider.Factory
	policy   ReconnectPolicy

	mu       sync.RWMutex
	sessions map[string]*Session
	reserved map[string]struct{} // ids whose client is still being constructed
}

// NewManager creates a session manager bound to its registry store, event
// bus, credential verifier, and provider factory.
func NewManager(store *registry.Store, bus *eventbus.EventBus, verifier auth.Verifier, factory provider.Factory, policy ReconnectPolicy) *Manager {
	return &Manager{
		store:    store,
		bus:      bus,
		verifier: verifier,
		factory:  factory,
		policy:   policy,
		sessions: make(map[string]*Session),
		reserved: make(map[string]struct{}),
	}
}

// announce publishes a session event on the bus.
func (m *Manager) announce(id, event string, data any) {
	m.bus.Publish(SessionTopic(id, event), Announcement{Event: event, Data: data}, publishTimeout)
}

// CreateSession constructs a provider client for id, binds its lifecycle
// events, registers the in-memory entry, and inserts a registry record with
// ready=false if none exists yet. Duplicate ids are rejected.
func (m *Manager) CreateSession(ctx context.Context, id, description string) apperrors.Error {
	if err := registry.ValidateSessionID(id); err != nil {
		return err
	}

	blob, berr := m.store.LoadBlob(id)
	if berr != nil {
		// a missing or unreadable blob only forces a fresh pairing
		log.Warn().Str("session_id", id).Err(berr).Msg("unable to load credential blob")
		blob = nil
	}

	// reserve the id so duplicates are rejected while the client is being
	// constructed, without holding the lock across a slow factory
	m.mu.Lock()
	_, live := m.sessions[id]
	_, pending := m.reserved[id]
	if live || pending {
		m.mu.Unlock()
		return ErrDuplicateSession.Msg("session already exists: " + id)
	}
	m.reserved[id] = struct{}{}
	m.mu.Unlock()

	client, err := m.factory(id, blob)
	if err != nil {
		m.mu.Lock()
		delete(m.reserved, id)
		m.mu.Unlock()
		return provider.ErrProviderInit.MsgErr("unable to construct provider client", err)
	}
	s := &Session{
		id:          id,
		description: description,
		client:      client,
		state:       StateConnecting,
	}
	m.mu.Lock()
	delete(m.reserved, id)
	m.sessions[id] = s
	m.mu.Unlock()

	log.Info().Str("session_id", id).Msg("creating session")
	m.announce(id, EventMessage, StatusMessage{ID: id, Text: "Creating session..."})

	if err := m.store.InsertIfAbsent(registry.Record{ID: id, Description: description}); err != nil {
		// in-memory state stays authoritative for the running process
		log.Error().Str("session_id", id).Err(err).Msg("unable to persist session record")
	}

	go m.pump(s)

	if err := client.Initialize(ctx); err != nil {
		log.Error().Str("session_id", id).Err(err).Msg("provider initialization failed")
	}
	return nil
}

// RemoveSession authenticates the token and, on success, deletes the
// persisted credential blob and registry record, tears down any live client,
// and broadcasts a removal confirmation. On auth failure it broadcasts a
// denial and mutates nothing. Removing an id with no live entry is not an
// error.
func (m *Manager) RemoveSession(ctx context.Context, id, token string) apperrors.Error {
	if !m.verifier.Verify(token) {
		log.Warn().Str("session_id", id).Msg("session removal denied")
		m.announce(id, EventRemoveSession, RemovalPayload{ID: id, Status: false, Message: "failed"})
		return ErrUnauthorized
	}

	if err := m.store.DeleteBlob(id); err != nil {
		log.Error().Str("session_id", id).Err(err).Msg("unable to delete credential blob")
	}
	if err := m.store.Remove(id); err != nil {
		log.Error().Str("session_id", id).Err(err).Msg("unable to remove session record")
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		if err := s.client.Destroy(); err != nil {
			log.Warn().Str("session_id", id).Err(err).Msg("error destroying provider client")
		}
	}

	log.Info().Str("session_id", id).Msg("session removed")
	m.announce(id, EventRemoveSession, RemovalPayload{ID: id, Status: true, Message: "success"})
	return nil
}

// GetSession returns the live session for id.
func (m *Manager) GetSession(id string) (*Session, apperrors.Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, exists := m.sessions[id]; exists {
		return s, nil
	}
	return nil, ErrSessionNotFound.Msg("session not found: " + id)
}

// ListSessions returns all live sessions.
func (m *Manager) ListSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// RecoverAll re-instantiates every session recorded in the registry. Stale
// ready flags are ignored; readiness is recomputed once the fresh client
// reports ready.
func (m *Manager) RecoverAll(ctx context.Context) apperrors.Error {
	records, err := m.store.Load()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if cerr := m.CreateSession(ctx, rec.ID, rec.Description); cerr != nil {
			log.Error().Str("session_id", rec.ID).Err(cerr).Msg("unable to recover session")
		}
	}
	log.Info().Int("count", len(records)).Msg("session recovery complete")
	return nil
}

// Shutdown destroys every live client. The registry is left untouched so
// sessions are recovered on the next start.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.client.Destroy()
	}
}

// pump consumes one provider client's lifecycle events in emission order and
// applies the state machine transitions. It exits when the event channel
// closes or a disconnect is processed.
func (m *Manager) pump(s *Session) {
	for ev := range s.client.Events() {
		switch ev.Type {
		case provider.EventQR:
			m.handleQR(s, ev.QR)
		case provider.EventAuthenticated:
			m.handleAuthenticated(s, ev.Credentials)
		case provider.EventReady:
			m.handleReady(s)
		case provider.EventAuthFailure:
			m.handleAuthFailure(s)
		case provider.EventDisconnected:
			m.handleDisconnected(s, ev.Reason)
			return
		}
	}
}

func (m *Manager) handleQR(s *Session, challenge string) {
	s.setState(StateAwaitingAuth)
	src, err := qrDataURL(challenge)
	if err != nil {
		log.Error().Str("session_id", s.id).Err(err).Msg("unable to render pairing code")
		return
	}
	m.announce(s.id, EventQR, QRPayload{ID: s.id, Src: src})
	m.announce(s.id, EventMessage, StatusMessage{ID: s.id, Text: "QR code received, scan please!"})
}

func (m *Manager) handleAuthenticated(s *Session, credentials []byte) {
	s.setState(StateAuthenticated)
	m.announce(s.id, EventAuthenticated, IDPayload{ID: s.id})
	m.announce(s.id, EventMessage, StatusMessage{ID: s.id, Text: "Session is authenticated!"})
	if err := m.store.SaveBlob(s.id, credentials); err != nil {
		log.Error().Str("session_id", s.id).Err(err).Msg("unable to persist credential blob")
	}
}

func (m *Manager) handleReady(s *Session) {
	s.setState(StateReady)
	m.announce(s.id, EventReady, IDPayload{ID: s.id})
	m.announce(s.id, EventMessage, StatusMessage{ID: s.id, Text: "Session is ready!"})
	if err := m.store.UpsertReady(s.id); err != nil {
		log.Error().Str("session_id", s.id).Err(err).Msg("unable to persist ready flag")
	}
}

// handleAuthFailure broadcasts the failure without mutating state; the
// provider retries pairing on its own.
func (m *Manager) handleAuthFailure(s *Session) {
	log.Warn().Str("session_id", s.id).Msg("pairing rejected")
	m.announce(s.id, EventMessage, StatusMessage{ID: s.id, Text: "Auth failure, restarting..."})
}

// handleDisconnected tears the session down: the credential blob and the
// registry record are deleted, the entry removed, and a bounded reconnect is
// scheduled. If the entry was already removed explicitly, no reconnect is
// attempted.
func (m *Manager) handleDisconnected(s *Session, reason string) {
	s.setState(StateDisconnected)
	log.Warn().Str("session_id", s.id).Str("reason", reason).Msg("session disconnected")
	m.announce(s.id, EventMessage, StatusMessage{ID: s.id, Text: "Session is disconnected!"})

	if err := m.store.DeleteBlob(s.id); err != nil {
		log.Error().Str("session_id", s.id).Err(err).Msg("unable to delete credential blob")
	}
	if err := m.store.Remove(s.id); err != nil {
		log.Error().Str("session_id", s.id).Err(err).Msg("unable to remove session record")
	}

	m.mu.Lock()
	current, ok := m.sessions[s.id]
	owned := ok && current == s
	if owned {
		delete(m.sessions, s.id)
	}
	m.mu.Unlock()

	_ = s.client.Destroy()
	m.announce(s.id, EventRemoveSession, s.id)

	if owned && m.policy.Attempts > 0 {
		go m.reconnectLoop(s.id, s.description)
	}
}

// reconnectLoop re-creates a disconnected session with exponential backoff
// and a capped attempt count, avoiding a reconnect storm against a failing
// provider.
func (m *Manager) reconnectLoop(id, description string) {
	err := retry.Do(func() error {
		cerr := m.CreateSession(context.Background(), id, description)
		if cerr == nil {
			return nil
		}
		if errors.Is(cerr, ErrDuplicateSession) {
			return retry.Unrecoverable(cerr)
		}
		return cerr
	},
		retry.Attempts(m.policy.Attempts),
		retry.Delay(m.policy.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Error().Str("session_id", id).Err(err).Msg("reconnect abandoned")
		m.announce(id, EventMessage, StatusMessage{ID: id, Text: "Reconnect failed, session removed"})
	}
}
