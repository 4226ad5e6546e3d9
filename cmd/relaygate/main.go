package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaygate/relaygate/internal/common/logtrace"
	"github.com/relaygate/relaygate/internal/gateway/auth"
	"github.com/relaygate/relaygate/internal/gateway/config"
	"github.com/relaygate/relaygate/internal/gateway/eventbus"
	"github.com/relaygate/relaygate/internal/gateway/provider"
	"github.com/relaygate/relaygate/internal/gateway/provider/loopback"
	"github.com/relaygate/relaygate/internal/gateway/realtime"
	"github.com/relaygate/relaygate/internal/gateway/registry"
	"github.com/relaygate/relaygate/internal/gateway/server"
	"github.com/relaygate/relaygate/internal/gateway/session"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("gateway failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog := log.With().Str("state", "init").Logger()

	opt := parseFlags()

	slog.Info().Str("config_file", opt.configFile).Msg("loading config")
	if err := config.LoadConfig(opt.configFile); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Config()

	store, serr := registry.NewStore(cfg.Storage.DataDir)
	if serr != nil {
		return fmt.Errorf("opening session registry: %w", serr)
	}

	loopback.Register()
	factory, ferr := provider.GetFactory(cfg.Provider.Type)
	if ferr != nil {
		return fmt.Errorf("resolving provider %q: %w", cfg.Provider.Type, ferr)
	}

	bus := eventbus.New()
	hub := realtime.NewHub()
	go hub.Run(ctx, bus)

	delay, derr := cfg.Reconnect.GetDelay()
	if derr != nil {
		return fmt.Errorf("parsing reconnect delay: %w", derr)
	}
	verifier := auth.NewStaticVerifier(cfg.Auth.Token)
	manager := session.NewManager(store, bus, verifier, factory, session.ReconnectPolicy{
		Attempts: cfg.Reconnect.Attempts,
		Delay:    delay,
	})

	slog.Info().Msg("recovering persisted sessions")
	if err := manager.RecoverAll(ctx); err != nil {
		return fmt.Errorf("recovering sessions: %w", err)
	}

	serverErrors, shutdownServer, err := createGatewayServer(ctx, manager, store, hub, verifier)
	if err != nil {
		return fmt.Errorf("creating gateway server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		manager.Shutdown()
		hub.CloseAll()
		bus.Shutdown()
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		shutdownServer()
		manager.Shutdown()
		hub.CloseAll()
		bus.Shutdown()
	}

	slog.Info().Msg("gateway stopped")
	return nil
}

func createGatewayServer(ctx context.Context, manager *session.Manager, store *registry.Store, hub *realtime.Hub, verifier auth.Verifier) (chan error, func(), error) {
	slog := log.With().Str("state", "init").Logger()

	s, err := server.CreateNewServer(manager, store, hub, verifier)
	if err != nil {
		return nil, nil, fmt.Errorf("creating server: %w", err)
	}
	s.MountHandlers()

	srv := &http.Server{
		Addr:              config.Config().Server.HostName + ":" + config.Config().Server.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info().Str("addr", srv.Addr).Msg("gateway server started")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := func() {
		// Give outstanding requests 5 seconds to complete and initiate the shutdown.
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error().Err(err).Msg("could not stop server gracefully")
			if err := srv.Close(); err != nil {
				slog.Error().Err(err).Msg("could not stop server")
			}
		}
	}

	return serverErrors, shutdown, nil
}

func parseFlags() cmdoptions {
	var opt cmdoptions
	flag.StringVar(&opt.configFile, "config", "", "Path to the config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
