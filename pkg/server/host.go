package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jibbrjabbr/jj/pkg/continuation"
	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// Handler is host code run as a logical thread.
type Handler func(ctx *Context) error

// Middleware wraps handler execution.
type Middleware interface {
	Handle(ctx *Context, next func() error) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx *Context, next func() error) error

// Handle calls f.
func (f MiddlewareFunc) Handle(ctx *Context, next func() error) error {
	return f(ctx, next)
}

// Host is one page program and the browsers connected to it.
type Host struct {
	name      string
	registry  *Registry
	scheduler *continuation.Scheduler
	metrics   *Metrics
	logger    *slog.Logger
	base      context.Context

	mu           sync.RWMutex
	onConnect    []Handler
	onDisconnect []Handler
	handlers     map[string]Handler
	middleware   []Middleware
	afterClose   []func(*Connection)

	inflight sync.WaitGroup
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostLogger sets the host logger.
func WithHostLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger.With("host", h.name)
		}
	}
}

// WithHostMetrics records host activity in m.
func WithHostMetrics(m *Metrics) HostOption {
	return func(h *Host) {
		h.metrics = m
	}
}

// WithBaseContext sets the context every execution derives from.
func WithBaseContext(ctx context.Context) HostOption {
	return func(h *Host) {
		if ctx != nil {
			h.base = ctx
		}
	}
}

// NewHost creates a host. Connections of every host sharing a scheduler
// draw correlation IDs from the same sequence.
func NewHost(name string, scheduler *continuation.Scheduler, opts ...HostOption) *Host {
	if scheduler == nil {
		scheduler = continuation.New()
	}
	h := &Host{
		name:      name,
		registry:  NewRegistry(),
		scheduler: scheduler,
		logger:    slog.Default().With("component", "host", "host", name),
		base:      context.Background(),
		handlers:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the host name.
func (h *Host) Name() string {
	return h.name
}

// Connections returns the registry of live connections.
func (h *Host) Connections() *Registry {
	return h.registry
}

// Scheduler returns the continuation scheduler.
func (h *Host) Scheduler() *continuation.Scheduler {
	return h.scheduler
}

// Logger returns the host logger.
func (h *Host) Logger() *slog.Logger {
	return h.logger
}

// OnConnect registers a handler run for every new connection, with that
// connection current.
func (h *Host) OnConnect(fn Handler) {
	h.mu.Lock()
	h.onConnect = append(h.onConnect, fn)
	h.mu.Unlock()
}

// OnDisconnect registers a handler run after a connection closes, with the
// closed connection current. Its storage is readable; sends are dropped.
func (h *Host) OnDisconnect(fn Handler) {
	h.mu.Lock()
	h.onDisconnect = append(h.onDisconnect, fn)
	h.mu.Unlock()
}

// Handle registers a host-wide handler for an event key (see
// protocol.EventKey). Handlers bound on a connection take precedence.
func (h *Host) Handle(key string, fn Handler) {
	h.mu.Lock()
	h.handlers[key] = fn
	h.mu.Unlock()
}

// Use appends middleware run around every handler.
func (h *Host) Use(mw ...Middleware) {
	h.mu.Lock()
	h.middleware = append(h.middleware, mw...)
	h.mu.Unlock()
}

// afterDisconnect registers fn to run once a closed connection's disconnect
// handlers have finished.
func (h *Host) afterDisconnect(fn func(*Connection)) {
	h.mu.Lock()
	h.afterClose = append(h.afterClose, fn)
	h.mu.Unlock()
}

// Wait blocks until every running handler has returned.
func (h *Host) Wait() {
	h.inflight.Wait()
}

// Reload asks every connected page of the host to reload itself and
// returns how many were asked.
func (h *Host) Reload() int {
	n := 0
	for _, conn := range h.registry.Snapshot() {
		if err := conn.SendControl(protocol.ControlReload); err != nil {
			conn.logger.Debug("could not send jj-reload", "error", err)
			continue
		}
		n++
	}
	return n
}

// Execute runs fn synchronously with no current connection, for host code
// not triggered by a client (timers, admin tasks). Broadcast works from
// here.
func (h *Host) Execute(ctx context.Context, fn Handler) error {
	if ctx == nil {
		ctx = h.base
	}
	c := newContext(ctx, h, nil, nil)
	return h.run(c, "execute", fn)
}

// attach registers conn and runs the connect handlers on it.
func (h *Host) attach(conn *Connection) {
	h.registry.Register(conn)
	h.metrics.connectionOpened(h.name)
	h.logger.Info("connection opened", "connection_id", conn.ID(), "remote_addr", conn.RemoteAddr())

	h.mu.RLock()
	handlers := append([]Handler(nil), h.onConnect...)
	h.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}
	h.spawn(conn, nil, "connect", func(ctx *Context) error {
		var errs []error
		for _, fn := range handlers {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	})
}

// detach unregisters a closed connection, discards its pending calls and
// runs the disconnect handlers.
func (h *Host) detach(conn *Connection) {
	discarded := h.scheduler.DiscardTarget(conn.ID())
	h.registry.Unregister(conn.ID())
	h.metrics.connectionClosed(h.name)
	if discarded > 0 {
		conn.logger.Debug("pending calls discarded", "count", discarded)
	}

	h.mu.RLock()
	handlers := append([]Handler(nil), h.onDisconnect...)
	after := append([]func(*Connection){}, h.afterClose...)
	h.mu.RUnlock()

	h.spawn(conn, nil, "disconnect", func(ctx *Context) error {
		var errs []error
		for _, fn := range handlers {
			errs = append(errs, fn(ctx))
		}
		for _, fn := range after {
			fn(conn)
		}
		return errors.Join(errs...)
	})
}

// dispatch runs the handler for an event from conn. The caller holds the
// connection's turn, which passes to the handler goroutine.
func (h *Host) dispatch(conn *Connection, ev *protocol.Event) {
	key := ev.Key()
	fn := conn.handler(key)
	if fn == nil {
		h.mu.RLock()
		fn = h.handlers[key]
		h.mu.RUnlock()
	}
	if fn == nil {
		conn.releaseTurn()
		conn.logger.Warn("no handler for event", "event", key)
		return
	}
	h.metrics.eventReceived(ev.Type)
	h.spawnHolding(conn, ev, "event "+key, fn)
}

// spawn acquires conn's turn and runs fn on a new goroutine.
func (h *Host) spawn(conn *Connection, ev *protocol.Event, op string, fn Handler) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		if err := conn.acquireTurn(h.base); err != nil {
			return
		}
		h.execute(conn, ev, op, fn)
	}()
}

// spawnHolding runs fn on a new goroutine that inherits the caller's turn.
func (h *Host) spawnHolding(conn *Connection, ev *protocol.Event, op string, fn Handler) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.execute(conn, ev, op, fn)
	}()
}

func (h *Host) execute(conn *Connection, ev *protocol.Event, op string, fn Handler) {
	ctx := newContext(h.base, h, conn, ev)
	ctx.holdsTurn = true
	defer func() {
		if ctx.holdsTurn {
			conn.releaseTurn()
		}
	}()

	start := time.Now()
	if err := h.run(ctx, op, fn); err != nil {
		conn.logger.Error("handler failed", "op", op, "error", err)
	}
	conn.logger.Debug("handler finished", "op", op, "duration", time.Since(start))
}

// run executes fn through the middleware chain with panic recovery, then
// flushes what the execution queued.
func (h *Host) run(ctx *Context, op string, fn Handler) (err error) {
	defer ctx.flush()
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			h.metrics.handlerPanic()
			ctx.logger.Error("handler panic", "op", op, "panic", r, "stack", string(stack))
			err = &HandlerError{ConnectionID: ctx.connectionID(), Op: op, Panic: r, Stack: stack}
		}
	}()

	h.mu.RLock()
	chain := append([]Middleware(nil), h.middleware...)
	h.mu.RUnlock()

	next := func() error { return fn(ctx) }
	for i := len(chain) - 1; i >= 0; i-- {
		mw, inner := chain[i], next
		next = func() error { return mw.Handle(ctx, inner) }
	}
	if err := next(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
