package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jibbrjabbr/jj/pkg/clientstore"
	"github.com/jibbrjabbr/jj/pkg/continuation"
	"github.com/jibbrjabbr/jj/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server accepts WebSocket connections and routes them to hosts by name.
type Server struct {
	config    *ServerConfig
	scheduler *continuation.Scheduler
	metrics   *Metrics
	gatherer  prometheus.Gatherer
	tracker   *ConnectionTracker
	store     clientstore.Store

	mu    sync.RWMutex
	hosts map[string]*Host

	upgrader   websocket.Upgrader
	router     chi.Router
	fallback   http.Handler
	httpServer *http.Server

	base   context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// New creates a new Server with the given configuration. Unset fields take
// their defaults.
func New(config *ServerConfig) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		config = config.Clone()
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	reg, gatherer := config.Registerer, config.Gatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg = private
		if gatherer == nil {
			gatherer = private
		}
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metrics := NewMetrics(reg, config.Namespace)

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  config,
		metrics: metrics,
		scheduler: continuation.New(
			continuation.WithTimeout(config.ConnectionConfig.SuspendTimeout),
			continuation.WithLogger(logger),
			continuation.WithObserver(metrics),
		),
		gatherer: gatherer,
		store:    config.ClientStore,
		hosts:    make(map[string]*Host),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		base:   base,
		cancel: cancel,
		logger: logger,
	}

	tracker, err := NewConnectionTracker(config.SweepSchedule, config.ConnectionConfig.IdleTimeout,
		s.allConnections, metrics, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	s.tracker = tracker
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Get(s.config.SocketPath+"/{host}", s.HandleWebSocket)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if s.fallback != nil {
			s.fallback.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
	return r
}

// Host returns the host with the given name, creating it on first use.
func (s *Server) Host(name string) *Host {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.hosts[name]; ok {
		return h
	}
	h := NewHost(name, s.scheduler,
		WithHostLogger(s.logger),
		WithHostMetrics(s.metrics),
		WithBaseContext(s.base))
	if s.store != nil {
		h.afterDisconnect(s.persist)
	}
	s.hosts[name] = h
	return h
}

// Hosts returns the registered host names in sorted order.
func (s *Server) Hosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.hosts))
	for name := range s.hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) lookupHost(name string) *Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hosts[name]
}

// allConnections returns the live connections of every host.
func (s *Server) allConnections() []*Connection {
	s.mu.RLock()
	hosts := make([]*Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		hosts = append(hosts, h)
	}
	s.mu.RUnlock()

	var conns []*Connection
	for _, h := range hosts {
		conns = append(conns, h.registry.Snapshot()...)
	}
	return conns
}

// ConnectionCount returns the number of live connections across all hosts.
func (s *Server) ConnectionCount() int {
	return len(s.allConnections())
}

// SetHandler sets the handler for requests no server route matches, such as
// the pages that load the client script.
func (s *Server) SetHandler(h http.Handler) {
	s.fallback = h
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleWebSocket upgrades a request for {SocketPath}/{host} and serves the
// connection until it closes. A ?client= query parameter identifies the
// browser for storage persistence.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "host")
	host := s.lookupHost(name)
	if host == nil {
		s.logger.Warn("connection to unknown host", "host", name, "remote_addr", r.RemoteAddr)
		http.Error(w, ErrHostNotFound.Error(), http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := newConnection(host, ws, s.config.ConnectionConfig, r.RemoteAddr)
	conn.clientKey = r.URL.Query().Get("client")
	s.restore(r.Context(), conn)

	host.attach(conn)
	conn.serve()
}

// restore loads the browser's persisted storage into conn.
func (s *Server) restore(ctx context.Context, conn *Connection) {
	if s.store == nil || conn.clientKey == "" {
		return
	}
	key := clientstore.Key(conn.host.name, conn.clientKey)
	data, err := s.store.Load(ctx, key)
	if err != nil {
		conn.logger.Warn("client storage load failed", "error", err)
		return
	}
	if data == nil {
		return
	}
	values, err := clientstore.DecodeSnapshot(data)
	if err != nil {
		conn.logger.Warn("client storage snapshot unreadable", "error", err)
		return
	}
	conn.storage.Restore(values)
	conn.logger.Debug("client storage restored", "keys", len(values))
}

// persist saves a closed connection's storage.
func (s *Server) persist(conn *Connection) {
	if conn.clientKey == "" {
		return
	}
	key := clientstore.Key(conn.host.name, conn.clientKey)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if conn.storage.Len() == 0 {
		if err := s.store.Delete(ctx, key); err != nil {
			conn.logger.Warn("client storage delete failed", "error", err)
		}
		return
	}
	data, err := clientstore.EncodeSnapshot(conn.storage.Snapshot())
	if err != nil {
		conn.logger.Warn("client storage encode failed", "error", err)
		return
	}
	if err := s.store.Save(ctx, key, data, time.Now().Add(s.config.StorageTTL)); err != nil {
		conn.logger.Warn("client storage save failed", "error", err)
	}
}

// Run starts the server and blocks until it stops or receives SIGINT or
// SIGTERM.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.tracker.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address, "socket_path", s.config.SocketPath)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown says jj-bye to every client, closes the connections, waits for
// running handlers and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	for _, conn := range s.allConnections() {
		if err := conn.SendControl(protocol.ControlBye); err != nil {
			conn.logger.Debug("could not say jj-bye", "error", err)
		}
		conn.Close()
	}

	select {
	case <-s.tracker.Stop().Done():
	case <-ctx.Done():
	}

	idle := make(chan struct{})
	go func() {
		s.mu.RLock()
		hosts := make([]*Host, 0, len(s.hosts))
		for _, h := range s.hosts {
			hosts = append(hosts, h)
		}
		s.mu.RUnlock()
		for _, h := range hosts {
			h.Wait()
		}
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		s.logger.Warn("handlers still running at shutdown")
	}
	s.cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client store: %w", err))
		}
	}

	s.logger.Info("server shutdown complete")
	return errors.Join(errs...)
}

// Scheduler returns the continuation scheduler shared by all hosts.
func (s *Server) Scheduler() *continuation.Scheduler {
	return s.scheduler
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Tracker returns the idle connection tracker.
func (s *Server) Tracker() *ConnectionTracker {
	return s.tracker
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger sets the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}
