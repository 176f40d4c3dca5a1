package coordinator

import (
	"sync"
	"time"
)

// Identity is the (userId, username) pair a connection claims to be. It is
// verified by the account service before it ever reaches the coordinator,
// so the registry only checks that both fields are non-empty.
type Identity struct {
	UserID   string
	Username string
}

// ConnectedClient records the identity announced over a live connection and
// the time the announcement was first accepted.
type ConnectedClient struct {
	ConnID   string
	Identity Identity
	JoinedAt time.Time
}

// Registry maps each live transport connection to the identity that
// announced over it. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*ConnectedClient // conn_id -> client
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*ConnectedClient),
	}
}

// Announce records the identity for a connection. A repeated announce for
// the same connection overwrites the identity in place and keeps the
// original JoinedAt; it never creates a duplicate entry. Returns
// ErrIdentityInvalid if the userId or username is empty.
func (r *Registry) Announce(connID string, id Identity) error {
	if id.UserID == "" || id.Username == "" {
		return ErrIdentityInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clients[connID]; ok {
		existing.Identity = id
		return nil
	}
	r.clients[connID] = &ConnectedClient{
		ConnID:   connID,
		Identity: id,
		JoinedAt: time.Now().UTC(),
	}
	return nil
}

// Lookup returns the identity announced for a connection. The second return
// value is false if the connection never announced.
func (r *Registry) Lookup(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[connID]
	if !ok {
		return Identity{}, false
	}
	return c.Identity, true
}

// Forget removes a connection's registry entry. It is idempotent: forgetting
// an unknown connection is a no-op.
func (r *Registry) Forget(connID string) {
	r.mu.Lock()
	delete(r.clients, connID)
	r.mu.Unlock()
}

// Count returns the number of announced connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.clients)
	r.mu.RUnlock()
	return n
}
