package server

import "sync"

// Registry is the insertion-ordered set of a host's live connections.
// It is safe for concurrent use, including mutation while an Iterator is
// being advanced.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	order []*Connection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register adds conn. Registering a connection twice is a no-op.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; ok {
		return
	}
	r.conns[conn.ID()] = conn
	r.order = append(r.order, conn)
}

// Unregister removes the connection with id. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return
	}
	delete(r.conns, id)
	for i, c := range r.order {
		if c.ID() == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the connection with id, or nil.
func (r *Registry) Get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// Contains reports whether a connection with id is registered.
func (r *Registry) Contains(id string) bool {
	return r.Get(id) != nil
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns the registered connections in registration order.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, len(r.order))
	copy(out, r.order)
	return out
}

// Iterator returns a cursor over the connections registered now. Connections
// that close or unregister before the cursor reaches them are skipped;
// connections registered afterwards are not visited.
func (r *Registry) Iterator() *Iterator {
	return &Iterator{registry: r, snapshot: r.Snapshot()}
}

// Iterator walks a registry snapshot.
type Iterator struct {
	registry *Registry
	snapshot []*Connection
	pos      int
}

// Next returns the next live, still registered connection, or nil when the
// snapshot is exhausted.
func (it *Iterator) Next() *Connection {
	for it.pos < len(it.snapshot) {
		c := it.snapshot[it.pos]
		it.pos++
		if c.IsClosed() || !it.registry.Contains(c.ID()) {
			continue
		}
		return c
	}
	return nil
}
