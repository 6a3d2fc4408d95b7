package server

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// broadcastFrame is one level of a possibly nested broadcast.
type broadcastFrame struct {
	iter  *Iterator
	prior *Connection
}

// Broadcast calls ctx.Broadcast. It accepts a nil ctx so callers outside any
// execution get a UsageError instead of a panic.
func Broadcast(ctx *Context, fn func(*Context) error) error {
	return ctx.Broadcast(fn)
}

// Broadcast runs fn once for every live connection of the host, in
// registration order, with that connection current. Getters inside fn park
// against the connection being visited.
//
// A failure or panic on one connection is logged and recorded, and the
// remaining connections are still visited; the failures are returned as a
// *BroadcastError. The current connection in effect before the call is
// restored on every exit path.
func (c *Context) Broadcast(fn func(*Context) error) error {
	if c == nil || c.host == nil {
		return usageError("broadcast", ErrNoEnvironment)
	}
	if fn == nil {
		return usageError("broadcast", ErrNotAFunction)
	}

	c.StartBroadcasting()
	defer c.EndBroadcasting()
	c.host.metrics.broadcast()

	var failures []BroadcastFailure
	for c.NextConnection() {
		conn := c.current
		if err := c.visit(fn); err != nil {
			c.logger.Warn("broadcast had an issue", "connection_id", conn.ID(), "error", err)
			failures = append(failures, BroadcastFailure{ConnectionID: conn.ID(), Err: err})
		}
	}
	if len(failures) > 0 {
		return &BroadcastError{Failures: failures}
	}
	return nil
}

func (c *Context) visit(fn func(*Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.host.metrics.handlerPanic()
			err = &HandlerError{
				ConnectionID: c.current.ID(),
				Op:           "broadcast",
				Panic:        r,
				Stack:        debug.Stack(),
			}
		}
	}()
	return fn(c)
}

// StartBroadcasting begins iterating the host's connections. Each call must
// be paired with EndBroadcasting; broadcasts nest.
func (c *Context) StartBroadcasting() {
	c.frames = append(c.frames, &broadcastFrame{
		iter:  c.host.registry.Iterator(),
		prior: c.current,
	})
}

// NextConnection flushes the current connection and makes the next live
// connection current. It returns false when every connection was visited.
func (c *Context) NextConnection() bool {
	if len(c.frames) == 0 {
		return false
	}
	f := c.frames[len(c.frames)-1]
	c.flushCurrent()
	next := f.iter.Next()
	if next == nil {
		return false
	}
	c.current = next
	return true
}

// EndBroadcasting flushes the last visited connection and restores the
// connection that was current before StartBroadcasting.
func (c *Context) EndBroadcasting() {
	if len(c.frames) == 0 {
		return
	}
	f := c.frames[len(c.frames)-1]
	c.frames[len(c.frames)-1] = nil
	c.frames = c.frames[:len(c.frames)-1]
	c.flushCurrent()
	c.current = f.prior
}

// Broadcasting reports whether a broadcast is in progress.
func (c *Context) Broadcasting() bool {
	return len(c.frames) > 0
}

func (c *Context) flushCurrent() {
	if c.current == nil {
		return
	}
	if err := c.current.Flush(); err != nil && !errors.Is(err, ErrConnectionClosed) {
		c.logger.Warn("flush failed", "connection_id", c.current.ID(), "error", fmt.Errorf("broadcast: %w", err))
	}
}
