package server

import "testing"

func TestRegistryOrder(t *testing.T) {
	h := newTestHost(t)
	a, _ := newTestConnection(t, h)
	b, _ := newTestConnection(t, h)
	c, _ := newTestConnection(t, h)

	r := h.Connections()
	if r.Len() != 3 {
		t.Fatalf("Len=%d, want 3", r.Len())
	}
	r.Register(a)
	if r.Len() != 3 {
		t.Fatalf("Len after duplicate Register=%d, want 3", r.Len())
	}

	got := r.Snapshot()
	want := []*Connection{a, b, c}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot[%d]=%s, want %s", i, got[i].ID(), want[i].ID())
		}
	}

	r.Unregister(b.ID())
	r.Unregister("unknown")
	if r.Contains(b.ID()) || r.Len() != 2 {
		t.Fatalf("after Unregister: Contains=%v Len=%d", r.Contains(b.ID()), r.Len())
	}
	if r.Get(c.ID()) != c {
		t.Fatal("Get returned the wrong connection")
	}
}

func TestIteratorSkipsClosed(t *testing.T) {
	h := newTestHost(t)
	a, _ := newTestConnection(t, h)
	b, _ := newTestConnection(t, h)
	c, _ := newTestConnection(t, h)

	it := h.Connections().Iterator()
	if got := it.Next(); got != a {
		t.Fatalf("first=%v, want a", got)
	}
	b.Close()
	late, _ := newTestConnection(t, h)

	if got := it.Next(); got != c {
		t.Fatalf("second=%v, want c", got)
	}
	if got := it.Next(); got != nil {
		t.Fatalf("Next=%s, want nil (late=%s not visited)", got.ID(), late.ID())
	}
}

func TestHostReload(t *testing.T) {
	h := newTestHost(t)
	_, fc1 := newTestConnection(t, h)
	closed, _ := newTestConnection(t, h)
	closed.Close()
	waitFor(t, "closed connection detached", func() bool { return h.Connections().Len() == 1 })

	if n := h.Reload(); n != 1 {
		t.Fatalf("Reload()=%d, want 1", n)
	}
	if frame := fc1.next(t); frame != "jj-reload" {
		t.Fatalf("frame=%q, want jj-reload", frame)
	}
}
