package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/call-signaling/internal/auth"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/store"
	"golang.org/x/time/rate"
)

// Presence mirrors who is online somewhere outside the process.
type Presence interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
}

// Options tunes a Hub. Zero values fall back to the defaults below.
type Options struct {
	SendBufferSize int
	MaxMessageSize int64
	FrameRateLimit rate.Limit
	FrameRateBurst int
	StoreTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
	if o.FrameRateLimit <= 0 {
		o.FrameRateLimit = 50
	}
	if o.FrameRateBurst <= 0 {
		o.FrameRateBurst = 100
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	return o
}

// Hub owns the registry and router and runs one Session per socket.
type Hub struct {
	cfg         Options
	auth        auth.Authenticator
	registry    *Registry
	router      *Router
	coordinator *Coordinator
	presence    Presence
	log         *slog.Logger

	// base is the parent of every session's context; it outlives the HTTP
	// request that upgraded the socket.
	base     context.Context
	sessions sync.WaitGroup

	mu   sync.Mutex
	live map[*Session]struct{}
}

func NewHub(base context.Context, authn auth.Authenticator, calls store.CallStore, presence Presence, opts Options, log *slog.Logger) *Hub {
	registry := NewRegistry(log)
	return &Hub{
		cfg:         opts.withDefaults(),
		auth:        authn,
		registry:    registry,
		router:      NewRouter(),
		coordinator: NewCoordinator(calls, registry, log),
		presence:    presence,
		log:         log.With("component", "hub"),
		base:        base,
		live:        make(map[*Session]struct{}),
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) Router() *Router { return h.router }

// Online lists the user ids with a live connection on this process.
func (h *Hub) Online(context.Context) ([]string, error) {
	return h.registry.IDs(), nil
}

// Serve authenticates credential and, on success, runs a session on conn
// until it closes. On failure it writes the bare "unauthorized" frame and
// closes conn without touching the registry or router.
func (h *Hub) Serve(conn *websocket.Conn, credential string) error {
	ctx, cancel := context.WithTimeout(h.base, h.cfg.StoreTimeout)
	user, err := h.auth.Authenticate(ctx, credential)
	cancel()

	if err != nil {
		if !errors.Is(err, auth.ErrUnauthorized) {
			h.log.Error("authentication lookup failed", "error", err)
		}
		h.reject(conn)
		return fmt.Errorf("authenticate: %w", err)
	}

	s := newSession(h, conn, *user)

	h.mu.Lock()
	h.live[s] = struct{}{}
	h.mu.Unlock()

	h.registry.Register(user.ID, s)
	h.router.Bind(user.ID, s, h.coordinator.Handlers())
	h.markOnline(user.ID)

	s.log.Info("user connected")

	h.sessions.Add(2)
	go func() {
		defer h.sessions.Done()
		s.writePump()
	}()
	go func() {
		defer h.sessions.Done()
		s.readPump(h.base)
	}()

	return nil
}

func (h *Hub) reject(conn *websocket.Conn) {
	deadline := time.Now().Add(writeWait)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(models.Unauthorized)); err != nil {
		h.log.Debug("failed to write unauthorized frame", "error", err)
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, models.Unauthorized), deadline)
	conn.Close()
}

// dispatch runs one inbound frame to completion. Handler failures, including
// panics, end that frame only.
func (h *Hub) dispatch(ctx context.Context, s *Session, event models.Event, payload json.RawMessage) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("handler panic", "event", event, "panic", p, "stack", string(debug.Stack()))
		}
	}()

	handled, err := h.router.Dispatch(ctx, s.User, event, payload)
	switch {
	case !handled:
		s.log.Debug("ignoring unknown event", "event", event)
	case err != nil:
		s.log.Warn("handler failed", "event", event, "error", err)
	}
}

// disconnect tears a session down. Membership cleanup only runs when the
// session was still the user's registered connection; a superseded session
// leaves the newer one alone.
func (h *Hub) disconnect(ctx context.Context, s *Session) {
	h.mu.Lock()
	delete(h.live, s)
	h.mu.Unlock()

	current := h.registry.Unregister(s.User.ID, s)
	h.router.Unbind(s.User.ID, s)

	if !current {
		s.log.Info("superseded connection closed")
		return
	}

	h.markOffline(s.User.ID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.StoreTimeout)
	defer cancel()

	if err := h.coordinator.Disconnect(ctx, s.User); err != nil {
		s.log.Error("disconnect cleanup failed", "error", err)
	}

	s.log.Info("user disconnected")
}

func (h *Hub) markOnline(userID string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.base, h.cfg.StoreTimeout)
	defer cancel()
	if err := h.presence.MarkOnline(ctx, userID); err != nil {
		h.log.Warn("failed to record presence", "user_id", userID, "error", err)
	}
}

func (h *Hub) markOffline(userID string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.base), h.cfg.StoreTimeout)
	defer cancel()
	if err := h.presence.MarkOffline(ctx, userID); err != nil {
		h.log.Warn("failed to clear presence", "user_id", userID, "error", err)
	}
}

// Shutdown closes every live session and waits for their cleanup, or for ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for s := range h.live {
		s.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
