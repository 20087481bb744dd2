package signaling

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/mossy-p/call-signaling/internal/models"
)

var (
	// ErrPeerGone is returned when writing to a connection that has closed.
	ErrPeerGone = errors.New("peer connection closed")
	// ErrQueueFull is returned when a connection's outbound queue is full.
	ErrQueueFull = errors.New("peer send queue full")
)

// Peer is a live connection that accepts encoded frames. Send must not block.
type Peer interface {
	Send(frame []byte) error
}

// Registry maps each user id to its single live connection.
//
// The lock is only ever held while reading or writing the map; frames are
// written after it is released, so a slow peer never stalls registration.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		peers: make(map[string]Peer),
		log:   log.With("component", "registry"),
	}
}

// Register makes peer the connection for userID, replacing any earlier one.
func (r *Registry) Register(userID string, peer Peer) {
	r.mu.Lock()
	_, replaced := r.peers[userID]
	r.peers[userID] = peer
	r.mu.Unlock()

	if replaced {
		r.log.Info("connection replaced", "user_id", userID)
	}
}

// Remove drops userID. Absent ids are a no-op.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, userID)
}

// Unregister drops userID only while peer is still its registered
// connection, and reports whether it did.
func (r *Registry) Unregister(userID string, peer Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.peers[userID]; !ok || current != peer {
		return false
	}
	delete(r.peers, userID)
	return true
}

func (r *Registry) Lookup(userID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[userID]
	return p, ok
}

// IDs returns the connected user ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Send encodes [event, payload] once and hands it to every listed user that
// is connected. Unknown ids are skipped, repeated ids receive one copy, and a
// failing peer does not stop delivery to the rest. It returns the number of
// peers that accepted the frame.
func (r *Registry) Send(ids []string, event models.Event, payload any) int {
	frame, err := Encode(event, payload)
	if err != nil {
		r.log.Error("failed to encode frame", "event", event, "error", err)
		return 0
	}

	type target struct {
		id   string
		peer Peer
	}

	seen := make(map[string]struct{}, len(ids))
	targets := make([]target, 0, len(ids))

	r.mu.RLock()
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.peers[id]; ok {
			targets = append(targets, target{id: id, peer: p})
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, t := range targets {
		if err := t.peer.Send(frame); err != nil {
			r.log.Warn("failed to deliver frame", "user_id", t.id, "event", event, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
