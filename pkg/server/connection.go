package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// wsConn is the subset of *websocket.Conn a Connection uses.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Connection is one live WebSocket between a host and a browser.
type Connection struct {
	id         string
	host       *Host
	conn       wsConn
	config     *ConnectionConfig
	logger     *slog.Logger
	createdAt  time.Time
	remoteAddr string

	// clientKey identifies the browser across connections for storage
	// persistence; empty when the client did not send one.
	clientKey string

	writeMu sync.Mutex
	outMu   sync.Mutex
	outbox  []protocol.Message

	storage *ClientStorage

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	events chan *protocol.Event

	// turn is held by the logical thread currently running on behalf of
	// this connection.
	turn chan struct{}

	lastActivity atomic.Int64
	closed       atomic.Bool
	closeOnce    sync.Once
	done         chan struct{}

	framesIn  atomic.Int64
	framesOut atomic.Int64
}

func newConnection(host *Host, conn wsConn, config *ConnectionConfig, remoteAddr string) *Connection {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	id := uuid.NewString()
	c := &Connection{
		id:         id,
		host:       host,
		conn:       conn,
		config:     config,
		createdAt:  time.Now(),
		remoteAddr: remoteAddr,
		storage:    NewClientStorage(),
		handlers:   make(map[string]Handler),
		events:     make(chan *protocol.Event, config.MaxEventQueue),
		turn:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	c.logger = host.logger.With("connection_id", id)
	c.touch()
	return c
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Host returns the host the connection belongs to.
func (c *Connection) Host() *Host {
	return c.host
}

// CreatedAt returns when the connection was accepted.
func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// RemoteAddr returns the client address.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// ClientKey returns the browser identity used for storage persistence.
func (c *Connection) ClientKey() string {
	return c.clientKey
}

// Storage returns the connection's client storage.
func (c *Connection) Storage() *ClientStorage {
	return c.storage
}

// Logger returns the connection logger.
func (c *Connection) Logger() *slog.Logger {
	return c.logger
}

// String describes the connection.
func (c *Connection) String() string {
	return fmt.Sprintf("WebSocket connection to %s started at %s",
		c.remoteAddr, c.createdAt.Format(time.RFC3339))
}

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether the connection has closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// LastActivity returns when the client was last heard from.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Send queues msg for the next Flush.
func (c *Connection) Send(msg protocol.Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	c.outMu.Lock()
	c.outbox = append(c.outbox, msg)
	c.outMu.Unlock()
	return nil
}

// Flush writes every queued message as one JSON array frame.
func (c *Connection) Flush() error {
	c.outMu.Lock()
	batch := c.outbox
	c.outbox = nil
	c.outMu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	data, err := protocol.EncodeBatch(batch)
	if err != nil {
		return fmt.Errorf("server: encode batch: %w", err)
	}
	if err := c.write(data); err != nil {
		return err
	}
	c.host.metrics.messagesSent(batch)
	return nil
}

// SendControl writes a raw control token immediately.
func (c *Connection) SendControl(ctl protocol.Control) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.write([]byte(ctl.Token()))
}

func (c *Connection) write(data []byte) error {
	if c.conn == nil {
		return ErrConnectionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("write failed", "error", err)
		go c.Close()
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	c.framesOut.Add(1)
	return nil
}

// QueueEvent queues an event for EventLoop.
func (c *Connection) QueueEvent(ev *protocol.Event) error {
	select {
	case c.events <- ev:
		return nil
	default:
		c.logger.Warn("event queue full, dropping event", "event", ev.Key())
		return ErrEventQueueFull
	}
}

// bind installs a per-connection handler for an event key.
func (c *Connection) bind(key string, h Handler) {
	c.handlersMu.Lock()
	c.handlers[key] = h
	c.handlersMu.Unlock()
}

func (c *Connection) unbind(key string) {
	c.handlersMu.Lock()
	delete(c.handlers, key)
	c.handlersMu.Unlock()
}

func (c *Connection) handler(key string) Handler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.handlers[key]
}

// BoundKeys returns the number of per-connection handlers.
func (c *Connection) BoundKeys() int {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return len(c.handlers)
}

func (c *Connection) acquireTurn(ctx context.Context) error {
	select {
	case c.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) releaseTurn() {
	<-c.turn
}

// Close closes the connection. It is safe to call more than once and from
// any goroutine. Calls pending on the connection end with
// continuation.ErrConnectionLost and the host's disconnect handlers run.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.host.detach(c)

		if c.conn != nil {
			c.writeMu.Lock()
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			c.conn.Close()
			c.writeMu.Unlock()
		}

		c.logger.Info("connection closed",
			"frames_in", c.framesIn.Load(),
			"frames_out", c.framesOut.Load(),
			"duration", time.Since(c.createdAt))
	})
}
