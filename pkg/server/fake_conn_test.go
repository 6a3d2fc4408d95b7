package server

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jibbrjabbr/jj/pkg/continuation"
	"github.com/jibbrjabbr/jj/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeConn is an in-memory wsConn. Frames written by the server arrive on
// out; frames pushed with deliver are returned by ReadMessage.
type fakeConn struct {
	in        chan []byte
	out       chan string
	closed    chan struct{}
	closeOnce sync.Once
	writeErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan string, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, errFakeClosed
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}
	f.out <- string(data)
	return nil
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error           { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (f *fakeConn) SetReadLimit(int64)                        {}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) deliver(frame string) {
	f.in <- []byte(frame)
}

// next waits for the next frame written by the server.
func (f *fakeConn) next(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-f.out:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return ""
	}
}

// nextMessages waits for the next frame and decodes it.
func (f *fakeConn) nextMessages(t *testing.T) []protocol.Message {
	t.Helper()
	frame := f.next(t)
	in, err := protocol.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode(%s): %v", frame, err)
	}
	return in.Messages
}

// nextRequest waits for a frame whose last message is a request.
func (f *fakeConn) nextRequest(t *testing.T) protocol.Request {
	t.Helper()
	for {
		msgs := f.nextMessages(t)
		if len(msgs) == 0 {
			continue
		}
		if req, ok := msgs[len(msgs)-1].(protocol.Request); ok {
			return req
		}
	}
}

func newTestHost(t *testing.T) *Host {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry(), "test")
	scheduler := continuation.New(continuation.WithObserver(metrics))
	return NewHost("test", scheduler, WithHostMetrics(metrics))
}

// newTestConnection attaches a connection on a fakeConn without starting
// its loops.
func newTestConnection(t *testing.T, h *Host) (*Connection, *fakeConn) {
	t.Helper()
	fc := newFakeConn()
	conn := newConnection(h, fc, DefaultConnectionConfig(), "192.0.2.1:1234")
	h.attach(conn)
	t.Cleanup(conn.Close)
	return conn, fc
}

// serveTestConnection attaches a connection and runs its loops.
func serveTestConnection(t *testing.T, h *Host) (*Connection, *fakeConn) {
	t.Helper()
	conn, fc := newTestConnection(t, h)
	go conn.serve()
	return conn, fc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func resultFrame(id protocol.ID, value string) string {
	var b strings.Builder
	b.WriteString(`{"result":{"id":"`)
	b.WriteString(string(id))
	b.WriteString(`"`)
	if value != "" {
		b.WriteString(`,"value":`)
		b.WriteString(value)
	}
	b.WriteString(`}}`)
	return b.String()
}

// autoReply answers every request written to fc with value until fc closes.
// value is JSON text; an empty value answers with no value at all.
func autoReply(t *testing.T, conn *Connection, fc *fakeConn, value string) {
	t.Helper()
	go func() {
		for {
			select {
			case frame := <-fc.out:
				in, err := protocol.Decode([]byte(frame))
				if err != nil {
					t.Errorf("Decode(%s): %v", frame, err)
					return
				}
				for _, msg := range in.Messages {
					if req, ok := msg.(protocol.Request); ok {
						conn.handleFrame([]byte(resultFrame(req.RequestID(), value)))
					}
				}
			case <-fc.closed:
				return
			}
		}
	}()
}
