package ws

import (
	"errors"
	"sync"
)

// ErrAlreadyRegistered is returned when a connection id is registered twice;
// a connection is authenticated exactly once.
var ErrAlreadyRegistered = errors.New("connection already registered")

// Registry is the bidirectional index of live connections to authenticated
// users. It owns the connection handles; rooms hold only back-references.
// The reverse index byUser is maintained incrementally so per-user lookups
// never scan the connection table.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*Client
	byUser map[int]map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*Client),
		byUser: make(map[int]map[string]*Client),
	}
}

// Register records an authenticated connection. The boolean reports whether
// this is the user's first live connection, computed atomically with the
// insert so presence transitions cannot race.
func (r *Registry) Register(c *Client) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[c.ID]; ok {
		return false, ErrAlreadyRegistered
	}

	r.byConn[c.ID] = c
	conns, ok := r.byUser[c.UserID]
	if !ok {
		conns = make(map[string]*Client)
		r.byUser[c.UserID] = conns
	}
	first := len(conns) == 0
	conns[c.ID] = c
	return first, nil
}

// Unregister removes a connection. The boolean last reports whether the
// owning user now has zero live connections. Unknown ids report known=false
// and mutate nothing.
func (r *Registry) Unregister(connID string) (c *Client, last bool, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, known = r.byConn[connID]
	if !known {
		return nil, false, false
	}
	delete(r.byConn, connID)

	conns := r.byUser[c.UserID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, c.UserID)
		last = true
	}
	return c, last, true
}

// UserOf resolves a connection id to its authenticated user.
func (r *Registry) UserOf(connID string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	if !ok {
		return 0, false
	}
	return c.UserID, true
}

// ConnectionsOf returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsOf(userID int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Client, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// SendToUser delivers one event to every live connection of the user and
// returns how many connections it reached.
func (r *Registry) SendToUser(userID int, event string, data any) int {
	conns := r.ConnectionsOf(userID)
	for _, c := range conns {
		c.Send(event, data)
	}
	return len(conns)
}
