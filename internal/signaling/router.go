package signaling

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mossy-p/call-signaling/internal/models"
)

// HandlerFunc handles one inbound event on behalf of user.
type HandlerFunc func(ctx context.Context, user models.User, payload json.RawMessage) error

// Handlers is a fixed event vocabulary. Tables are never mutated after
// construction, so they can be shared by every binding.
type Handlers map[models.Event]HandlerFunc

type binding struct {
	owner    Peer
	handlers Handlers
}

// Router holds, per user id, the event table installed for that user's
// connection.
type Router struct {
	mu       sync.RWMutex
	bindings map[string]binding
}

func NewRouter() *Router {
	return &Router{bindings: make(map[string]binding)}
}

// Bind installs handlers for userID on behalf of owner. Binding again for the
// same user replaces the table and the owner.
func (r *Router) Bind(userID string, owner Peer, handlers Handlers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[userID] = binding{owner: owner, handlers: handlers}
}

// Unbind removes userID's table if owner still holds it.
func (r *Router) Unbind(userID string, owner Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bindings[userID]; !ok || b.owner != owner {
		return false
	}
	delete(r.bindings, userID)
	return true
}

// Bound reports whether userID has an event table.
func (r *Router) Bound(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bindings[userID]
	return ok
}

// Lookup finds the handler bound for (userID, event).
func (r *Router) Lookup(userID string, event models.Event) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[userID]
	if !ok {
		return nil, false
	}
	h, ok := b.handlers[event]
	return h, ok
}

// Dispatch runs the handler bound for (user, event). Unknown events and
// unbound users are ignored and report handled=false.
func (r *Router) Dispatch(ctx context.Context, user models.User, event models.Event, payload json.RawMessage) (handled bool, err error) {
	h, ok := r.Lookup(user.ID, event)
	if !ok {
		return false, nil
	}
	return true, h(ctx, user, payload)
}
