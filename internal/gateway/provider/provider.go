// Package provider defines the boundary to the external messaging-provider
// client. The gateway core treats each connection as a black box that exposes
// connect and send capabilities and emits lifecycle events; concrete
// implementations register themselves with the factory registry by type name.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/relaygate/relaygate/internal/common/apperrors"
)

var (
	// ErrDelivery is returned when a send capability fails at the transport
	// level.
	ErrDelivery apperrors.Error = apperrors.New("message delivery failed").SetStatusCode(http.StatusInternalServerError)

	// ErrProviderInit is returned when a provider client cannot be
	// constructed or initialized.
	ErrProviderInit apperrors.Error = apperrors.New("provider initialization failed").SetStatusCode(http.StatusInternalServerError)

	// ErrUnknownProvider is returned when no factory is registered for the
	// requested provider type.
	ErrUnknownProvider apperrors.Error = apperrors.New("unknown provider type").SetStatusCode(http.StatusInternalServerError)
)

// EventType identifies a provider lifecycle event.
type EventType string

const (
	// EventQR carries a pairing challenge to be rendered as a scannable
	// code. May fire multiple times before authentication.
	EventQR EventType = "qr"
	// EventAuthenticated carries the opaque credential blob to persist for
	// reconnection. Fires once per successful pairing.
	EventAuthenticated EventType = "authenticated"
	// EventReady signals the connection is fully operational. Fires once
	// after EventAuthenticated.
	EventReady EventType = "ready"
	// EventAuthFailure signals pairing was rejected.
	EventAuthFailure EventType = "auth-failure"
	// EventDisconnected signals the connection is permanently lost. This is
	// terminal for the client instance.
	EventDisconnected EventType = "disconnected"
)

// Event is one normalized lifecycle event emitted by a provider client.
type Event struct {
	Type        EventType
	QR          string // pairing challenge payload, set for EventQR
	Credentials []byte // opaque credential blob, set for EventAuthenticated
	Reason      string // human-readable cause, set for EventDisconnected
}

// Receipt acknowledges a delivered message.
type Receipt struct {
	MessageID string    `json:"messageId"`
	Recipient string    `json:"recipient"`
	Timestamp time.Time `json:"timestamp"`
}

// Media is a binary payload sent alongside a caption.
type Media struct {
	MimeType string
	Data     []byte
	Filename string
}

// Client represents one live connection to the messaging network. Lifecycle
// events are delivered on the Events channel in the order the provider emits
// them; send capabilities may be invoked concurrently with event delivery.
type Client interface {
	// Initialize starts the connection. Events begin flowing once it is
	// called; it does not wait for the connection to become ready.
	Initialize(ctx context.Context) error

	// Events returns the lifecycle event stream. The channel is closed when
	// the client is destroyed.
	Events() <-chan Event

	// IsRegisteredRecipient reports whether the address is registered on the
	// messaging network.
	IsRegisteredRecipient(ctx context.Context, address string) (bool, error)

	// SendText delivers a text message.
	SendText(ctx context.Context, address, body string) (*Receipt, error)

	// SendMedia delivers a media payload with a caption.
	SendMedia(ctx context.Context, address string, media Media, caption string) (*Receipt, error)

	// Destroy tears the connection down and releases resources. Safe to call
	// more than once.
	Destroy() error
}

// Factory constructs a Client for a session. A nil credentials blob means
// the session has never authenticated and must pair via QR.
type Factory func(id string, credentials []byte) (Client, error)
