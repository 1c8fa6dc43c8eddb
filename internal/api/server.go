package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/command"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
	"github.com/nerrad567/gray-logic-acbridge/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceLibrary lists device profiles. Satisfied by *ircode.Library.
type DeviceLibrary interface {
	IDs() []string
	Profile(id string) (ircode.Profile, bool)
}

// StateReader reads current and historical state. Satisfied by *state.Store.
type StateReader interface {
	Get(ctx context.Context, deviceID string) (climate.State, error)
	List(ctx context.Context) (map[string]climate.State, error)
	GetHistory(ctx context.Context, deviceID string, limit int) ([]state.HistoryEntry, error)
}

// CommandDispatcher runs commands. Satisfied by *command.Dispatcher.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, deviceID, kind, raw string) (command.Result, error)
}

// ErrorReader exposes each device's current error. Satisfied by
// *bridge.ErrorStatus.
type ErrorReader interface {
	Get(deviceID string) (string, bool)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Library    DeviceLibrary
	States     StateReader
	Dispatcher CommandDispatcher
	Errors     ErrorReader // optional
	Version    string

	// ExternalHub, if set, is used instead of a hub owned by the server.
	// main creates the hub first so it can be registered as a publisher.
	ExternalHub *Hub
}

// Server is the HTTP API server for the AC bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	library     DeviceLibrary
	states      StateReader
	dispatcher  CommandDispatcher
	errors      ErrorReader
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, library, states, dispatcher)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Library == nil:
		return nil, fmt.Errorf("device library is required")
	case deps.States == nil:
		return nil, fmt.Errorf("state reader is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		library:    deps.Library,
		states:     deps.States,
		dispatcher: deps.Dispatcher,
		errors:     deps.Errors,
		version:    deps.Version,
	}
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub if the server owns it,
// and launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
