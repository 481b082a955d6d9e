package service

import (
	"sync"

	"github.com/teamhive/collab-api/internal/observability"
)

// PresenceRegistry maps authenticated user IDs to their active realtime
// connection handle. State is process-local and rebuilt from scratch on
// restart; cross-process routing goes through the event bus instead.
//
// A single active connection per user is modeled: a new registration
// overwrites the previous handle (last connect wins).
type PresenceRegistry struct {
	mu      sync.RWMutex
	handles map[string]string
}

// NewPresenceRegistry constructs an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{handles: make(map[string]string)}
}

// Register binds the connection handle to the user, replacing any prior one.
func (p *PresenceRegistry) Register(userID, handleID string) {
	p.mu.Lock()
	_, existed := p.handles[userID]
	p.handles[userID] = handleID
	p.mu.Unlock()

	if !existed {
		observability.PresenceUsers().Inc()
	}
}

// Unregister removes the mapping only when the handle still matches the
// disconnecting connection. This guards against a stale disconnect racing a
// newer connect for the same user.
func (p *PresenceRegistry) Unregister(userID, handleID string) {
	p.mu.Lock()
	current, ok := p.handles[userID]
	removed := ok && current == handleID
	if removed {
		delete(p.handles, userID)
	}
	p.mu.Unlock()

	if removed {
		observability.PresenceUsers().Dec()
	}
}

// Lookup returns the user's active connection handle, if any.
func (p *PresenceRegistry) Lookup(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	handle, ok := p.handles[userID]
	return handle, ok
}

// Online reports whether the user currently has an open connection.
func (p *PresenceRegistry) Online(userID string) bool {
	_, ok := p.Lookup(userID)
	return ok
}
