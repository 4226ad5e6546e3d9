// Package loopback implements an in-process provider client that simulates
// the pairing lifecycle without a real messaging network. It backs local
// development runs and the session manager tests.
package loopback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaygate/relaygate/internal/gateway/provider"
)

// SentMessage records one delivered message for inspection.
type SentMessage struct {
	Recipient string
	Body      string
	MimeType  string
	Caption   string
}

// Client is a simulated provider connection. With no prior credentials it
// emits qr, authenticated, ready on Initialize; with credentials it skips the
// pairing challenge and goes straight to authenticated, ready.
type Client struct {
	id          string
	credentials []byte
	events      chan provider.Event

	mu         sync.Mutex
	destroyed  bool
	registered map[string]bool
	sent       []SentMessage
}

// New constructs a loopback client. It satisfies provider.Factory.
func New(id string, credentials []byte) (provider.Client, error) {
	return &Client{
		id:          id,
		credentials: credentials,
		events:      make(chan provider.Event, 16),
		registered:  make(map[string]bool),
	}, nil
}

// Register registers the factory with the provider registry under "loopback".
func Register() {
	provider.RegisterFactory("loopback", New)
}

// Initialize starts the simulated pairing sequence.
func (c *Client) Initialize(ctx context.Context) error {
	go c.run()
	return nil
}

func (c *Client) run() {
	if c.credentials == nil {
		challenge := fmt.Sprintf("loopback-pairing-%s-%s", c.id, uuid.NewString())
		if !c.emit(provider.Event{Type: provider.EventQR, QR: challenge}) {
			return
		}
		blob, _ := json.Marshal(map[string]string{
			"session":  c.id,
			"pairedAt": time.Now().UTC().Format(time.RFC3339),
		})
		c.credentials = blob
	}
	if !c.emit(provider.Event{Type: provider.EventAuthenticated, Credentials: c.credentials}) {
		return
	}
	c.emit(provider.Event{Type: provider.EventReady})
}

// emit delivers an event unless the client was destroyed.
func (c *Client) emit(ev provider.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// Events returns the lifecycle event stream.
func (c *Client) Events() <-chan provider.Event {
	return c.events
}

// AllowRecipient marks an address as registered on the simulated network.
func (c *Client) AllowRecipient(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[address] = true
}

// IsRegisteredRecipient reports whether the address was allowed.
func (c *Client) IsRegisteredRecipient(ctx context.Context, address string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered[address], nil
}

// SendText records the message and returns a receipt.
func (c *Client) SendText(ctx context.Context, address, body string) (*provider.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, provider.ErrDelivery.Msg("client destroyed")
	}
	c.sent = append(c.sent, SentMessage{Recipient: address, Body: body})
	return &provider.Receipt{
		MessageID: uuid.NewString(),
		Recipient: address,
		Timestamp: time.Now().UTC(),
	}, nil
}

// SendMedia records the media message and returns a receipt.
func (c *Client) SendMedia(ctx context.Context, address string, media provider.Media, caption string) (*provider.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, provider.ErrDelivery.Msg("client destroyed")
	}
	c.sent = append(c.sent, SentMessage{Recipient: address, MimeType: media.MimeType, Caption: caption})
	return &provider.Receipt{
		MessageID: uuid.NewString(),
		Recipient: address,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Sent returns a copy of the delivered messages.
func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// Disconnect simulates losing the connection.
func (c *Client) Disconnect(reason string) {
	c.emit(provider.Event{Type: provider.EventDisconnected, Reason: reason})
}

// FailAuth simulates a rejected pairing.
func (c *Client) FailAuth() {
	c.emit(provider.Event{Type: provider.EventAuthFailure})
}

// Destroy tears the simulated connection down.
func (c *Client) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	close(c.events)
	return nil
}
