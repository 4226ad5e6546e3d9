package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/relaygate/relaygate/internal/gateway/eventbus"
	"github.com/relaygate/relaygate/internal/gateway/session"
)

// Hub tracks connected subscribers and broadcasts session events to all of
// them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID()] = client
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()

	if ok {
		client.Close()
	}
}

// Broadcast queues msg for every connected client. Clients whose buffers are
// full are dropped.
func (h *Hub) Broadcast(msg any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.Queue(msg) {
			continue
		}
		log.Warn().Str("client_id", client.ID()).Msg("dropping slow realtime subscriber")
		h.Unregister(client.ID())
	}
}

// Run pumps session announcements from the event bus to all subscribers
// until the context is cancelled or the bus shuts down.
func (h *Hub) Run(ctx context.Context, bus *eventbus.EventBus) {
	events, unsubscribe := bus.Subscribe(session.AllSessionsPattern, 256)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(ev.Data)
		}
	}
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
	for _, client := range clients {
		client.Close()
	}
}
