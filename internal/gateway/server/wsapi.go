package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/relaygate/relaygate/internal/gateway/realtime"
	"github.com/relaygate/relaygate/internal/gateway/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the operator page is served cross-origin in development setups
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientCommand is an inbound message on the realtime channel.
type clientCommand struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// createSessionCmd asks the gateway to start a new provider session.
type createSessionCmd struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Token       string `json:"token"`
}

// deleteSessionCmd asks the gateway to tear a session down.
type deleteSessionCmd struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

const (
	cmdCreateSession = "create-session"
	cmdDeleteSession = "delete-session"
)

// realtimeChannel handles GET /ws. It upgrades the connection, registers the
// client with the hub, replays the current registry as an init event, and
// then serves session commands until the peer goes away.
func (s *Server) realtimeChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := realtime.NewClient(uuid.New().String(), conn)

	// queue the init replay before joining the broadcast set so no
	// session event can reach this subscriber ahead of its snapshot
	records, lerr := s.store.Load()
	if lerr != nil {
		log.Ctx(r.Context()).Error().Err(lerr).Msg("unable to load session registry for init replay")
		records = nil
	}
	client.Queue(session.Announcement{Event: session.EventInit, Data: records})

	s.hub.Register(client)
	defer s.hub.Unregister(client.ID())
	go client.WriteLoop()

	for {
		_, payload, rerr := conn.ReadMessage()
		if rerr != nil {
			if websocket.IsUnexpectedCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Ctx(r.Context()).Debug().Err(rerr).Msg("realtime client read error")
			}
			return
		}
		s.dispatchCommand(r, payload)
	}
}

// dispatchCommand parses and executes one inbound realtime command. Errors
// are logged, never fatal to the connection; command outcomes reach clients
// through hub announcements.
func (s *Server) dispatchCommand(r *http.Request, payload []byte) {
	cmd := clientCommand{}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("malformed realtime command")
		return
	}
	switch cmd.Event {
	case cmdCreateSession:
		req := createSessionCmd{}
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("malformed create-session command")
			return
		}
		if !s.verifier.Verify(req.Token) {
			log.Ctx(r.Context()).Warn().Str("session", req.ID).Msg("create-session rejected: invalid token")
			return
		}
		if err := s.manager.CreateSession(r.Context(), req.ID, req.Description); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Str("session", req.ID).Msg("create-session failed")
		}
	case cmdDeleteSession:
		req := deleteSessionCmd{}
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("malformed delete-session command")
			return
		}
		if err := s.manager.RemoveSession(r.Context(), req.ID, req.Token); err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Str("session", req.ID).Msg("delete-session failed")
		}
	default:
		log.Ctx(r.Context()).Warn().Str("event", cmd.Event).Msg("unknown realtime command")
	}
}
