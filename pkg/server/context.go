package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jibbrjabbr/jj/pkg/continuation"
	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// Context is the execution context of one logical thread. It is passed
// explicitly to every handler and names the current connection that DOM and
// storage operations target. A Context is used by a single goroutine.
type Context struct {
	std     context.Context
	host    *Host
	origin  *Connection
	current *Connection
	event   *protocol.Event
	logger  *slog.Logger
	values  map[any]any

	frames []*broadcastFrame

	// holdsTurn is true while the thread owns its origin's dispatch turn.
	holdsTurn bool
}

func newContext(std context.Context, host *Host, conn *Connection, ev *protocol.Event) *Context {
	if std == nil {
		std = context.Background()
	}
	logger := host.logger
	if conn != nil {
		logger = conn.logger
	}
	return &Context{
		std:     std,
		host:    host,
		origin:  conn,
		current: conn,
		event:   ev,
		logger:  logger,
	}
}

// StdContext returns the standard context of the execution.
func (c *Context) StdContext() context.Context {
	return c.std
}

// SetStdContext replaces the standard context, e.g. to carry a trace span.
func (c *Context) SetStdContext(ctx context.Context) {
	if ctx != nil {
		c.std = ctx
	}
}

// Host returns the host running the execution.
func (c *Context) Host() *Host {
	return c.host
}

// Connection returns the current connection, or nil.
func (c *Context) Connection() *Connection {
	if c == nil {
		return nil
	}
	return c.current
}

// Origin returns the connection whose event or lifecycle change started the
// execution, or nil for host executions.
func (c *Context) Origin() *Connection {
	return c.origin
}

// Event returns the event being handled, or nil.
func (c *Context) Event() *protocol.Event {
	return c.event
}

// Logger returns a logger scoped to the execution.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Value returns a value stored with SetValue.
func (c *Context) Value(key any) any {
	return c.values[key]
}

// SetValue stores a value for the rest of the execution.
func (c *Context) SetValue(key, value any) {
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

func (c *Context) connectionID() string {
	if c.current != nil {
		return c.current.ID()
	}
	if c.origin != nil {
		return c.origin.ID()
	}
	return ""
}

// requireConnection returns the current connection or a UsageError.
func (c *Context) requireConnection(op string) (*Connection, error) {
	if c == nil || c.host == nil {
		return nil, usageError(op, ErrNoEnvironment)
	}
	if c.current == nil {
		return nil, usageError(op, ErrNoConnection)
	}
	return c.current, nil
}

// send queues a fire-and-forget message on the current connection. A closed
// connection drops it silently.
func (c *Context) send(op string, msg protocol.Message) error {
	conn, err := c.requireConnection(op)
	if err != nil {
		return err
	}
	if err := conn.Send(msg); err != nil && !errors.Is(err, ErrConnectionClosed) {
		return err
	}
	return nil
}

// suspend sends req to the current connection and parks until it answers.
func (c *Context) suspend(op string, req protocol.Request) (protocol.Value, error) {
	conn, err := c.requireConnection(op)
	if err != nil {
		return nil, err
	}
	var y continuation.Yielder
	if c.holdsTurn && c.origin != nil {
		y = turnYielder{c}
	}
	return c.host.scheduler.Suspend(c.std, conn, req, y)
}

// flush writes what the execution queued on its connections.
func (c *Context) flush() {
	for _, conn := range []*Connection{c.current, c.origin} {
		if conn == nil {
			continue
		}
		if err := conn.Flush(); err != nil && !errors.Is(err, ErrConnectionClosed) {
			c.logger.Warn("flush failed", "connection_id", conn.ID(), "error", err)
		}
	}
}

// turnYielder lets the origin connection dispatch its next event while the
// thread is parked.
type turnYielder struct {
	c *Context
}

func (y turnYielder) Yield() {
	y.c.holdsTurn = false
	y.c.origin.releaseTurn()
}

func (y turnYielder) Reacquire(ctx context.Context) error {
	if err := y.c.origin.acquireTurn(ctx); err != nil {
		return err
	}
	y.c.holdsTurn = true
	return nil
}

// Block runs wait, which may block for a long time, with the origin's
// dispatch turn released so the connection's next event can start. It
// returns an error only if the turn could not be taken back.
func (c *Context) Block(wait func()) error {
	if c == nil || !c.holdsTurn || c.origin == nil {
		wait()
		return nil
	}
	y := turnYielder{c}
	y.Yield()
	wait()
	return y.Reacquire(c.std)
}
