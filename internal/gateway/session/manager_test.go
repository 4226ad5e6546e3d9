package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/relaygate/internal/gateway/auth"
	"github.com/relaygate/relaygate/internal/gateway/eventbus"
	"github.com/relaygate/relaygate/internal/gateway/provider"
	"github.com/relaygate/relaygate/internal/gateway/provider/loopback"
	"github.com/relaygate/relaygate/internal/gateway/registry"
)

const testToken = "test-secret"

// captureFactory wraps the loopback factory and records every client it
// hands out.
type captureFactory struct {
	mu      sync.Mutex
	clients []*loopback.Client
}

func (f *captureFactory) New(id string, credentials []byte) (provider.Client, error) {
	c, err := loopback.New(id, credentials)
	if err != nil {
		return nil, err
	}
	lc := c.(*loopback.Client)
	f.mu.Lock()
	f.clients = append(f.clients, lc)
	f.mu.Unlock()
	return lc, nil
}

func (f *captureFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *captureFactory) last() *loopback.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}

func newTestManager(t *testing.T, policy ReconnectPolicy) (*Manager, *registry.Store, *captureFactory, <-chan eventbus.Event) {
	t.Helper()
	store, err := registry.NewStore(t.TempDir())
	require.Nil(t, err)
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)
	factory := &captureFactory{}
	m := NewManager(store, bus, auth.NewStaticVerifier(testToken), factory.New, policy)
	t.Cleanup(m.Shutdown)

	events, unsubscribe := bus.Subscribe(AllSessionsPattern, 64)
	t.Cleanup(unsubscribe)
	return m, store, factory, events
}

// waitForEvent consumes bus events until one with the given wire event name
// arrives.
func waitForEvent(t *testing.T, events <-chan eventbus.Event, name string) Announcement {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "bus closed while waiting for %s", name)
			ann := ev.Data.(Announcement)
			if ann.Event == name {
				return ann
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", name)
		}
	}
}

func TestCreateSessionDuplicateRejected(t *testing.T) {
	m, _, factory, _ := newTestManager(t, ReconnectPolicy{})

	require.Nil(t, m.CreateSession(context.Background(), "s1", "first"))
	err := m.CreateSession(context.Background(), "s1", "second")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrDuplicateSession)

	assert.Len(t, m.ListSessions(), 1)
	assert.Equal(t, 1, factory.count(), "duplicate create must not construct a second client")
}

func TestCreateSessionRejectsInvalidID(t *testing.T) {
	m, _, _, _ := newTestManager(t, ReconnectPolicy{})
	err := m.CreateSession(context.Background(), "../escape", "bad")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, registry.ErrInvalidSessionID)
}

func TestPairingLifecycle(t *testing.T) {
	m, store, _, events := newTestManager(t, ReconnectPolicy{})

	require.Nil(t, m.CreateSession(context.Background(), "s1", "desk one"))

	qr := waitForEvent(t, events, EventQR)
	payload := qr.Data.(QRPayload)
	assert.Equal(t, "s1", payload.ID)
	assert.Contains(t, payload.Src, "data:image/png;base64,")

	authAnn := waitForEvent(t, events, EventAuthenticated)
	assert.Equal(t, "s1", authAnn.Data.(IDPayload).ID)

	ready := waitForEvent(t, events, EventReady)
	assert.Equal(t, "s1", ready.Data.(IDPayload).ID)

	// blob is persisted on authenticated, the ready flag shortly after the
	// ready announcement
	assert.True(t, store.HasBlob("s1"))
	assert.Eventually(t, func() bool {
		records, err := store.Load()
		if err != nil {
			return false
		}
		return len(records) == 1 && records[0].ID == "s1" && records[0].Ready
	}, time.Second, 10*time.Millisecond)

	s, serr := m.GetSession("s1")
	require.Nil(t, serr)
	assert.Eventually(t, func() bool { return s.State() == StateReady }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "desk one", s.Description())
}

func TestRemoveSessionInvalidToken(t *testing.T) {
	m, store, _, events := newTestManager(t, ReconnectPolicy{})

	require.Nil(t, m.CreateSession(context.Background(), "s1", "first"))
	waitForEvent(t, events, EventReady)

	err := m.RemoveSession(context.Background(), "s1", "wrong-token")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	denied := waitForEvent(t, events, EventRemoveSession)
	payload := denied.Data.(RemovalPayload)
	assert.False(t, payload.Status)
	assert.Equal(t, "failed", payload.Message)

	// no mutation happened
	_, gerr := m.GetSession("s1")
	assert.Nil(t, gerr)
	records, lerr := store.Load()
	require.Nil(t, lerr)
	assert.Len(t, records, 1)
}

func TestRemoveSessionUnknownID(t *testing.T) {
	m, store, _, events := newTestManager(t, ReconnectPolicy{})

	require.Nil(t, store.InsertIfAbsent(registry.Record{ID: "other"}))
	require.Nil(t, m.RemoveSession(context.Background(), "ghost", testToken))

	ann := waitForEvent(t, events, EventRemoveSession)
	payload := ann.Data.(RemovalPayload)
	assert.True(t, payload.Status)

	records, err := store.Load()
	require.Nil(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "other", records[0].ID, "unrelated records untouched")
}

func TestRemoveSessionTearsDown(t *testing.T) {
	m, store, _, events := newTestManager(t, ReconnectPolicy{})

	require.Nil(t, m.CreateSession(context.Background(), "s1", "first"))
	waitForEvent(t, events, EventReady)

	require.Nil(t, m.RemoveSession(context.Background(), "s1", testToken))

	_, gerr := m.GetSession("s1")
	assert.ErrorIs(t, gerr, ErrSessionNotFound)
	assert.False(t, store.HasBlob("s1"))
	records, err := store.Load()
	require.Nil(t, err)
	assert.Empty(t, records)
}

func TestDisconnectCleansUp(t *testing.T) {
	m, store, factory, events := newTestManager(t, ReconnectPolicy{}) // reconnect disabled

	require.Nil(t, m.CreateSession(context.Background(), "s1", "first"))
	waitForEvent(t, events, EventReady)
	require.True(t, store.HasBlob("s1"))

	factory.last().Disconnect("transport gone")
	waitForEvent(t, events, EventRemoveSession)

	assert.Eventually(t, func() bool {
		_, err := m.GetSession("s1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
	assert.False(t, store.HasBlob("s1"))
	records, err := store.Load()
	require.Nil(t, err)
	assert.Empty(t, records)
}

func TestDisconnectTriggersBoundedReconnect(t *testing.T) {
	m, _, factory, events := newTestManager(t, ReconnectPolicy{Attempts: 3, Delay: 10 * time.Millisecond})

	require.Nil(t, m.CreateSession(context.Background(), "s1", "first"))
	waitForEvent(t, events, EventReady)
	require.Equal(t, 1, factory.count())

	factory.last().Disconnect("flaky network")

	assert.Eventually(t, func() bool {
		if factory.count() < 2 {
			return false
		}
		s, err := m.GetSession("s1")
		return err == nil && s.State() == StateReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExplicitRemovalSuppressesReconnect(t *testing.T) {
	m, _, factory, events := newTestManager(t, ReconnectPolicy{Attempts: 3, Delay: 10 * time.Millisecond})

	require.Nil(t, m.CreateSession(context.Background(), "s1", "first"))
	waitForEvent(t, events, EventReady)

	require.Nil(t, m.RemoveSession(context.Background(), "s1", testToken))

	// no new client appears
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, factory.count())
	_, err := m.GetSession("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAuthFailureLeavesStateUntouched(t *testing.T) {
	m, store, factory, events := newTestManager(t, ReconnectPolicy{})

	require.Nil(t, m.CreateSession(context.Background(), "s1", "first"))
	waitForEvent(t, events, EventReady)

	factory.last().FailAuth()
	msg := waitForEvent(t, events, EventMessage)
	for msg.Data.(StatusMessage).Text != "Auth failure, restarting..." {
		msg = waitForEvent(t, events, EventMessage)
	}

	_, gerr := m.GetSession("s1")
	assert.Nil(t, gerr, "entry stays in place on auth failure")
	records, err := store.Load()
	require.Nil(t, err)
	assert.Len(t, records, 1)
}

func TestRecoverAll(t *testing.T) {
	m, store, factory, _ := newTestManager(t, ReconnectPolicy{})

	require.Nil(t, store.Save([]registry.Record{
		{ID: "s1", Description: "first", Ready: true}, // stale ready is ignored
		{ID: "s2", Description: "second"},
	}))

	require.Nil(t, m.RecoverAll(context.Background()))
	assert.Equal(t, 2, factory.count(), "one client per stored record")
	assert.Len(t, m.ListSessions(), 2)

	for _, id := range []string{"s1", "s2"} {
		s, err := m.GetSession(id)
		require.Nil(t, err)
		assert.Eventually(t, func() bool { return s.State() == StateReady }, time.Second, 10*time.Millisecond)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "awaiting-auth", StateAwaitingAuth.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
}

func TestCreateSessionSlowFactoryDoesNotBlockLookups(t *testing.T) {
	store, err := registry.NewStore(t.TempDir())
	require.Nil(t, err)
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)

	gate := make(chan struct{})
	inner := &captureFactory{}
	factory := func(id string, credentials []byte) (provider.Client, error) {
		if id == "slow" {
			<-gate
		}
		return inner.New(id, credentials)
	}
	m := NewManager(store, bus, auth.NewStaticVerifier(testToken), factory, ReconnectPolicy{})
	t.Cleanup(m.Shutdown)

	require.Nil(t, m.CreateSession(context.Background(), "fast", "live"))

	created := make(chan struct{})
	go func() {
		defer close(created)
		assert.Nil(t, m.CreateSession(context.Background(), "slow", "gated"))
	}()

	// lookups proceed while the slow construction is parked
	lookup := make(chan struct{})
	go func() {
		defer close(lookup)
		_, gerr := m.GetSession("fast")
		assert.Nil(t, gerr)
	}()
	select {
	case <-lookup:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("lookup blocked behind provider construction")
	}

	// the id is held while its client is under construction
	derr := m.CreateSession(context.Background(), "slow", "again")
	require.NotNil(t, derr)
	assert.ErrorIs(t, derr, ErrDuplicateSession)

	close(gate)
	select {
	case <-created:
	case <-time.After(2 * time.Second):
		t.Fatal("gated creation never completed")
	}
	assert.Equal(t, 2, inner.count())
	_, gerr := m.GetSession("slow")
	assert.Nil(t, gerr)
}

func TestCreateSessionFactoryFailureFreesID(t *testing.T) {
	store, err := registry.NewStore(t.TempDir())
	require.Nil(t, err)
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)

	inner := &captureFactory{}
	fail := true
	factory := func(id string, credentials []byte) (provider.Client, error) {
		if fail {
			return nil, provider.ErrProviderInit.Msg("simulated construction failure")
		}
		return inner.New(id, credentials)
	}
	m := NewManager(store, bus, auth.NewStaticVerifier(testToken), factory, ReconnectPolicy{})
	t.Cleanup(m.Shutdown)

	cerr := m.CreateSession(context.Background(), "s1", "first try")
	require.NotNil(t, cerr)
	assert.ErrorIs(t, cerr, provider.ErrProviderInit)

	fail = false
	require.Nil(t, m.CreateSession(context.Background(), "s1", "second try"))
	assert.Equal(t, 1, inner.count())
}
