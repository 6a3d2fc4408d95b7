package server

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// ReadLoop continuously reads frames from the WebSocket connection.
// It answers control tokens, resumes suspended calls and queues events.
// This method blocks until the connection is closed or an error occurs.
func (c *Connection) ReadLoop() {
	defer c.Close()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	for {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Error("read error", "error", err)
			}
			return
		}

		c.touch()
		c.framesIn.Add(1)

		if msgType != websocket.TextMessage {
			c.logger.Warn("ignoring non-text frame", "type", msgType)
			continue
		}
		if !c.handleFrame(data) {
			return
		}
	}
}

// handleFrame processes one inbound frame. It returns false when the client
// asked to close.
func (c *Connection) handleFrame(data []byte) bool {
	in, err := protocol.Decode(data)
	if err != nil {
		c.host.metrics.protocolError()
		c.logger.Warn("protocol error", "error", &ProtocolError{ConnectionID: c.id, Err: err})
		if in == nil {
			return true
		}
	}

	switch in.Control {
	case protocol.ControlHi:
		if err := c.SendControl(protocol.ControlYo); err != nil {
			c.logger.Debug("could not answer jj-hi", "error", err)
		}
		return true
	case protocol.ControlYo:
		return true
	case protocol.ControlBye:
		c.logger.Info("client closing")
		return false
	case protocol.ControlReload:
		c.logger.Debug("ignoring jj-reload from client")
		return true
	}

	for _, msg := range in.Messages {
		switch m := msg.(type) {
		case protocol.Reply:
			// Replies bypass the event queue: the handler waiting for this
			// value may be what the queue is waiting on.
			if err := c.host.scheduler.Resume(m.ReplyID(), m.ReplyValue()); err != nil {
				c.logger.Debug("reply discarded", "id", m.ReplyID(), "error", err)
			}
		case *protocol.Event:
			c.QueueEvent(m)
		default:
			c.logger.Warn("unexpected message from client", "kind", msg.Kind())
		}
	}
	return true
}

// WriteLoop sends jj-hi heartbeats until the connection closes. The client
// answers with jj-yo, which counts as activity.
func (c *Connection) WriteLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.SendControl(protocol.ControlHi); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// EventLoop dispatches queued events in arrival order. The next event is
// dispatched once the previous handler has returned or parked.
func (c *Connection) EventLoop() {
	for {
		select {
		case ev := <-c.events:
			select {
			case c.turn <- struct{}{}:
			case <-c.done:
				return
			}
			c.host.dispatch(c, ev)

		case <-c.done:
			return
		}
	}
}

// serve runs the connection goroutines. ReadLoop runs on the caller's
// goroutine.
func (c *Connection) serve() {
	go c.WriteLoop()
	go c.EventLoop()
	c.ReadLoop()
}
