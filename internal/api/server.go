package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/conduit-core/internal/device"
	"github.com/nerrad567/conduit-core/internal/infrastructure/config"
	"github.com/nerrad567/conduit-core/internal/infrastructure/logging"
	"github.com/nerrad567/conduit-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/conduit-core/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Group   *device.Group
	Journal *journal.Journal // optional; history endpoint 404s without it
	MQTT    *mqtt.Session    // optional; reported in health when present
	Version string

	// ConnectTimeout bounds reconnects triggered through the API.
	ConnectTimeout time.Duration

	// Mock selects mock-mode for API-triggered reconnects, matching the
	// mode the tree was assembled in.
	Mock bool

	// Registry receives mock bindings for API-triggered reconnects.
	Registry *device.MockRegistry
}

// Server is the HTTP API server for Conduit.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	group   *device.Group
	journal *journal.Journal
	mqtt    *mqtt.Session
	version string

	connectTimeout time.Duration
	mock           bool
	registry       *device.MockRegistry

	server *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Group == nil {
		return nil, fmt.Errorf("device group is required")
	}
	timeout := deps.ConnectTimeout
	if timeout <= 0 {
		timeout = device.DefaultConnectTimeout
	}

	return &Server{
		cfg:            deps.Config,
		logger:         deps.Logger,
		group:          deps.Group,
		journal:        deps.Journal,
		mqtt:           deps.MQTT,
		version:        deps.Version,
		connectTimeout: timeout,
		mock:           deps.Mock,
		registry:       deps.Registry,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests before forcefully closing remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
