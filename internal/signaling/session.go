package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/call-signaling/internal/models"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Session is one authenticated socket. Frames are read and dispatched one at
// a time on the read goroutine; writes happen on the write goroutine from a
// bounded queue.
type Session struct {
	ID   string
	User models.User

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	log     *slog.Logger

	closeOnce      sync.Once
	disconnectOnce sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, user models.User) *Session {
	id := uuid.NewString()
	return &Session{
		ID:      id,
		User:    user,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.cfg.SendBufferSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(hub.cfg.FrameRateLimit, hub.cfg.FrameRateBurst),
		log:     hub.log.With("user_id", user.ID, "session_id", id),
	}
}

// Send queues a frame without blocking.
func (s *Session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrPeerGone
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrPeerGone
	default:
		return ErrQueueFull
	}
}

// Close stops accepting frames. The read loop notices the closed socket and
// runs the disconnect cleanup.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Done is closed once the session stops accepting frames.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.Close()
		s.conn.Close()
		s.disconnectOnce.Do(func() {
			s.hub.disconnect(ctx, s)
		})
	}()

	if s.hub.cfg.MaxMessageSize > 0 {
		s.conn.SetReadLimit(s.hub.cfg.MaxMessageSize)
	}
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket error", "error", err)
			}
			return
		}

		if !s.limiter.Allow() {
			s.log.Warn("frame rate exceeded, dropping frame")
			continue
		}

		event, payload, err := Decode(frame)
		if err != nil {
			s.log.Warn("dropping malformed frame", "error", err)
			continue
		}

		s.hub.dispatch(ctx, s, event, payload)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Warn("failed to write frame", "error", err)
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
