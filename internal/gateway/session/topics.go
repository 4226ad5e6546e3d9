package session

import (
	"fmt"
	"time"
)

// Wire event names shared between the bus, the realtime channel, and
// subscribers.
const (
	// EventInit replays the full registry snapshot to a new subscriber.
	EventInit = "init"
	// EventQR carries a scannable pairing challenge image.
	EventQR = "qr"
	// EventMessage carries an operator-visible status line.
	EventMessage = "message"
	// EventReady signals a session's connection is operational.
	EventReady = "ready"
	// EventAuthenticated signals a session completed pairing.
	EventAuthenticated = "authenticated"
	// EventRemoveSession signals a session was removed.
	EventRemoveSession = "remove-session"
)

// publishTimeout bounds how long a publish waits on a slow bus subscriber.
const publishTimeout = 100 * time.Millisecond

// Announcement is the envelope published on the event bus and forwarded to
// realtime subscribers.
type Announcement struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// StatusMessage is the payload of EventMessage announcements.
type StatusMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QRPayload is the payload of EventQR announcements.
type QRPayload struct {
	ID  string `json:"id"`
	Src string `json:"src"`
}

// IDPayload is the payload of EventReady and EventAuthenticated
// announcements.
type IDPayload struct {
	ID string `json:"id"`
}

// RemovalPayload is the payload of EventRemoveSession announcements issued
// by an explicit removal request.
type RemovalPayload struct {
	ID      string `json:"id"`
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// SessionTopic returns the bus topic for one session event.
func SessionTopic(id, event string) string {
	return fmt.Sprintf("gateway.session.%s.%s", id, event)
}

// AllSessionsPattern matches every session event topic.
const AllSessionsPattern = "gateway.session.*.*"
