package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotConnected is returned when a connection id has no live entry.
var ErrNotConnected = errors.New("connection not registered")

// Registry tracks every live connection by id.
// All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
	}
}

// Register adds a live connection.
//
// Precondition: id must be non-empty; conn must be non-nil.
// Postcondition: The connection is reachable via Send, or an error if id is already registered.
func (r *Registry) Register(id string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return fmt.Errorf("connection %q already registered", id)
	}
	r.conns[id] = conn
	return nil
}

// Unregister removes a connection. Ids are never reused, so a removed id stays unknown.
//
// Postcondition: Returns the removed Conn and true, or (nil, false) if id was not registered.
func (r *Registry) Unregister(id string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	return conn, ok
}

// Send delivers data to the connection with the given id.
//
// Postcondition: Returns ErrNotConnected for unknown ids, or the Conn's Send error.
func (r *Registry) Send(id string, data []byte) error {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("sending to %q: %w", id, ErrNotConnected)
	}
	return conn.Send(data)
}

// Close asks the transport to close the connection. The entry stays registered
// until the transport reports the disconnect.
//
// Postcondition: Returns ErrNotConnected for unknown ids.
func (r *Registry) Close(id string) error {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("closing %q: %w", id, ErrNotConnected)
	}
	return conn.Close()
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
