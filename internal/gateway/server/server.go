// Package server provides the HTTP surface of the gateway: the data-plane
// send endpoints, the realtime WebSocket channel, the static operator page,
// and health/version endpoints.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/relaygate/relaygate/internal/common/httpx"
	"github.com/relaygate/relaygate/internal/common/middleware"
	"github.com/relaygate/relaygate/internal/gateway/auth"
	"github.com/relaygate/relaygate/internal/gateway/config"
	"github.com/relaygate/relaygate/internal/gateway/realtime"
	"github.com/relaygate/relaygate/internal/gateway/registry"
	"github.com/relaygate/relaygate/internal/gateway/session"
)

// Server is the gateway HTTP server.
type Server struct {
	Router *chi.Mux // HTTP router for request handling

	// Formatter and Fetcher are collaborator boundaries; override them
	// before MountHandlers to plug in provider-specific behavior.
	Formatter Formatter
	Fetcher   MediaFetcher

	manager  *session.Manager
	store    *registry.Store
	hub      *realtime.Hub
	verifier auth.Verifier
	validate *validator.Validate
}

// CreateNewServer creates a Server bound to the session manager, registry
// store, realtime hub, and credential verifier.
func CreateNewServer(manager *session.Manager, store *registry.Store, hub *realtime.Hub, verifier auth.Verifier) (*Server, error) {
	s := &Server{
		Router:    chi.NewRouter(),
		Formatter: NewPassthroughFormatter(),
		Fetcher:   NewHTTPMediaFetcher(nil),
		manager:   manager,
		store:     store,
		hub:       hub,
		verifier:  verifier,
		validate:  validator.New(),
	}
	return s, nil
}

// MountHandlers sets up all HTTP routes and middleware.
func (s *Server) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	if config.Config() != nil && config.Config().Server.HandleCORS {
		s.Router.Use(s.HandleCORS)
	}

	s.Router.Get("/", s.getIndex)
	s.Router.Get("/ws", s.realtimeChannel)
	s.Router.Method(http.MethodPost, "/send-message", httpx.WrapHttpRsp(s.sendMessage))
	s.Router.Method(http.MethodPost, "/send-media", httpx.WrapHttpRsp(s.sendMedia))
	s.Router.Get("/version", s.getVersion)
	s.Router.Get("/ready", s.getReadiness)
}

// GetVersionRsp represents the response for version information.
type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

// getVersion returns server and API version information.
func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Relaygate Server: " + Version,
		ApiVersion:    ApiVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

// getReadiness returns readiness for load balancers and monitoring.
func (s *Server) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// HandleCORS provides CORS middleware for cross-origin requests.
func (s *Server) HandleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "x-token"},
		ExposedHeaders:   []string{"Link", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
