package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/relaygate/internal/gateway/eventbus"
	"github.com/relaygate/relaygate/internal/gateway/session"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialTestClient upgrades a connection against the hub and returns the
// subscriber-side conn.
func dialTestClient(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(uuid.NewString(), conn)
		hub.Register(client)
		go client.WriteLoop()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) session.Announcement {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ann session.Announcement
	require.NoError(t, conn.ReadJSON(&ann))
	return ann
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.CloseAll)

	conn1 := dialTestClient(t, hub)
	conn2 := dialTestClient(t, hub)

	hub.Broadcast(session.Announcement{
		Event: session.EventReady,
		Data:  session.IDPayload{ID: "s1"},
	})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		ann := readEnvelope(t, conn)
		assert.Equal(t, session.EventReady, ann.Event)
	}
}

func TestHubRunForwardsBusEvents(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.CloseAll)
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx, bus)

	conn := dialTestClient(t, hub)

	// give Run a beat to subscribe before publishing
	time.Sleep(20 * time.Millisecond)
	bus.Publish(session.SessionTopic("s1", session.EventQR), session.Announcement{
		Event: session.EventQR,
		Data:  session.QRPayload{ID: "s1", Src: "data:image/png;base64,xyz"},
	}, 100*time.Millisecond)

	ann := readEnvelope(t, conn)
	assert.Equal(t, session.EventQR, ann.Event)
}

func TestHubUnregisterClosesClient(t *testing.T) {
	hub := NewHub()

	srvConnCh := make(chan *Client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient("c1", conn)
		hub.Register(client)
		go client.WriteLoop()
		srvConnCh <- client
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	<-srvConnCh
	hub.Unregister("c1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, rerr := conn.ReadMessage()
	assert.Error(t, rerr, "connection closes after unregister")
}

func TestQueueAfterCloseIsRejected(t *testing.T) {
	hub := NewHub()

	srvConnCh := make(chan *Client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient("c1", conn)
		hub.Register(client)
		go client.WriteLoop()
		srvConnCh <- client
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := <-srvConnCh
	announcement := session.Announcement{
		Event: session.EventMessage,
		Data:  session.StatusMessage{ID: "s1", Text: "tick"},
	}

	// hammer Queue while the client closes underneath; the interleave a
	// Broadcast permits after its snapshot must never panic
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				client.Queue(announcement)
			}
		}()
	}
	hub.Unregister("c1")
	wg.Wait()

	assert.False(t, client.Queue(announcement), "queue after close is rejected")
	client.Close()
}

func TestBroadcastDuringUnregister(t *testing.T) {
	hub := NewHub()

	for i := 0; i < 4; i++ {
		dialTestClient(t, hub)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.Broadcast(session.Announcement{
				Event: session.EventReady,
				Data:  session.IDPayload{ID: "s1"},
			})
		}
	}()
	hub.CloseAll()
	<-done
}
