package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jibbrjabbr/jj/pkg/protocol"
)

func TestBroadcastVisitsEveryConnection(t *testing.T) {
	h := newTestHost(t)
	var conns []*Connection
	var fakes []*fakeConn
	for i := 0; i < 3; i++ {
		conn, fc := newTestConnection(t, h)
		conns = append(conns, conn)
		fakes = append(fakes, fc)
	}

	var visited []*Connection
	err := h.Execute(context.Background(), func(ctx *Context) error {
		return ctx.Broadcast(func(ctx *Context) error {
			visited = append(visited, ctx.Connection())
			return ctx.Call("refresh")
		})
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(visited) != 3 {
		t.Fatalf("visited %d connections, want 3", len(visited))
	}
	for i := range conns {
		if visited[i] != conns[i] {
			t.Fatalf("visit %d=%s, want %s", i, visited[i].ID(), conns[i].ID())
		}
		msgs := fakes[i].nextMessages(t)
		call, ok := msgs[0].(*protocol.Call)
		if !ok || call.Name != "refresh" {
			t.Fatalf("connection %d got %#v, want call refresh", i, msgs[0])
		}
	}
}

func TestBroadcastRestoresCurrent(t *testing.T) {
	h := newTestHost(t)
	origin, _ := newTestConnection(t, h)
	newTestConnection(t, h)

	tests := []struct {
		name string
		fn   func(*Context) error
	}{
		{"returns", func(*Context) error { return nil }},
		{"fails", func(*Context) error { return errors.New("boom") }},
		{"panics", func(*Context) error { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(context.Background(), h, origin, nil)
			ctx.Broadcast(tt.fn)
			if ctx.Connection() != origin {
				t.Fatalf("current=%v, want origin", ctx.Connection())
			}
			if ctx.Broadcasting() {
				t.Fatal("Broadcasting()=true after return")
			}
		})
	}
}

func TestBroadcastNested(t *testing.T) {
	h := newTestHost(t)
	newTestConnection(t, h)
	newTestConnection(t, h)

	var pairs []string
	err := h.Execute(context.Background(), func(ctx *Context) error {
		return ctx.Broadcast(func(ctx *Context) error {
			outer := ctx.Connection()
			err := ctx.Broadcast(func(ctx *Context) error {
				pairs = append(pairs, outer.ID()+">"+ctx.Connection().ID())
				return nil
			})
			if ctx.Connection() != outer {
				return fmt.Errorf("inner broadcast left %v current", ctx.Connection())
			}
			return err
		})
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(pairs) != 4 {
		t.Fatalf("pairs=%v, want 4", pairs)
	}
}

func TestBroadcastUsageErrors(t *testing.T) {
	var ue *UsageError

	err := Broadcast(nil, func(*Context) error { return nil })
	if !errors.As(err, &ue) || !errors.Is(err, ErrNoEnvironment) {
		t.Fatalf("Broadcast(nil ctx) err=%v, want UsageError(ErrNoEnvironment)", err)
	}
	if !strings.Contains(err.Error(), "no current script environment") {
		t.Fatalf("error text %q", err.Error())
	}

	h := newTestHost(t)
	err = h.Execute(context.Background(), func(ctx *Context) error {
		return ctx.Broadcast(nil)
	})
	if !errors.As(err, &ue) || !errors.Is(err, ErrNotAFunction) {
		t.Fatalf("Broadcast(nil fn) err=%v, want UsageError(ErrNotAFunction)", err)
	}
}

func TestBroadcastContinuesAfterFailure(t *testing.T) {
	h := newTestHost(t)
	newTestConnection(t, h)
	second, _ := newTestConnection(t, h)
	third, _ := newTestConnection(t, h)
	boom := errors.New("boom")

	calls := 0
	err := h.Execute(context.Background(), func(ctx *Context) error {
		return ctx.Broadcast(func(ctx *Context) error {
			calls++
			switch ctx.Connection() {
			case second:
				return boom
			case third:
				panic("kaput")
			}
			return nil
		})
	})
	if calls != 3 {
		t.Fatalf("calls=%d, want 3", calls)
	}

	var be *BroadcastError
	if !errors.As(err, &be) {
		t.Fatalf("err=%v, want *BroadcastError", err)
	}
	if len(be.Failures) != 2 {
		t.Fatalf("failures=%d, want 2", len(be.Failures))
	}
	if be.Failures[0].ConnectionID != second.ID() || !errors.Is(err, boom) {
		t.Fatalf("first failure=%+v", be.Failures[0])
	}
	var he *HandlerError
	if !errors.As(err, &he) || he.ConnectionID != third.ID() {
		t.Fatalf("panic not reported as HandlerError: %v", err)
	}
}

func TestBroadcastGetterTargetsVisitedConnection(t *testing.T) {
	h := newTestHost(t)
	var want []string
	for i := 0; i < 3; i++ {
		conn, fc := newTestConnection(t, h)
		value := fmt.Sprintf("%q", "client-"+conn.ID())
		autoReply(t, conn, fc, value)
		want = append(want, "client-"+conn.ID())
	}

	var mu sync.Mutex
	var got []string
	err := h.Execute(context.Background(), func(ctx *Context) error {
		return ctx.Broadcast(func(ctx *Context) error {
			v, err := ctx.Get("#name", "val")
			if err != nil {
				return err
			}
			mu.Lock()
			got = append(got, v.String())
			mu.Unlock()
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%q, want %q", i, got[i], want[i])
		}
	}
}

func TestBroadcastSkipsClosedConnection(t *testing.T) {
	h := newTestHost(t)
	first, _ := newTestConnection(t, h)
	second, _ := newTestConnection(t, h)
	newTestConnection(t, h)

	calls := 0
	h.Execute(context.Background(), func(ctx *Context) error {
		return ctx.Broadcast(func(ctx *Context) error {
			calls++
			if ctx.Connection() == first {
				second.Close()
			}
			return nil
		})
	})
	if calls != 2 {
		t.Fatalf("calls=%d, want 2", calls)
	}
}
