package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/tuya-relay/internal/audit"
	"github.com/nerrad567/tuya-relay/internal/catalog"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/config"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/database"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tuya-relay/internal/metrics"
	"github.com/nerrad567/tuya-relay/internal/session"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// HTTP requests.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the server's collaborators. Logger, Catalog, Pipeline and
// Metrics are required; the rest are optional and reported as disabled
// when nil.
type Deps struct {
	Server    config.ServerConfig
	WebSocket config.WebSocketConfig
	Logger    *logging.Logger
	Catalog   *catalog.Catalog
	Pipeline  *session.Pipeline
	Metrics   *metrics.Metrics
	Audit     audit.Repository
	DB        *database.DB
	MQTT      *mqtt.Client
	Version   string
}

// Server is the HTTP listener for the WebSocket endpoint and side API.
//
// Thread Safety: all methods are safe for concurrent use.
type Server struct {
	cfg       config.ServerConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	catalog   *catalog.Catalog
	pipeline  *session.Pipeline
	metrics   *metrics.Metrics
	audit     audit.Repository
	db        *database.DB
	mqtt      *mqtt.Client
	version   string
	startTime time.Time

	hub      *Hub
	server   *http.Server
	listener net.Listener

	// ctx is the parent of every session; cancel ends them all.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Metrics == nil {
		return nil, fmt.Errorf("metrics is required")
	}

	wsCfg := deps.WebSocket
	if wsCfg.Path == "" {
		wsCfg.Path = "/"
	}

	logger := deps.Logger.With("component", "api")
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:       deps.Server,
		wsCfg:     wsCfg,
		logger:    logger,
		catalog:   deps.Catalog,
		pipeline:  deps.Pipeline,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(logger),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start binds the listener and serves in the background. Bind errors
// (port in use, bad address) are returned directly.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("server starting", "address", ln.Addr().String(), "websocket_path", s.wsCfg.Path)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops accepting requests, closes every WebSocket session and waits
// for in-flight HTTP requests.
func (s *Server) Close() error {
	s.cancel()
	s.hub.CloseAll()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
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
