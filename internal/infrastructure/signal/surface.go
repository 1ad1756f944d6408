package signal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	"confline/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrForeignHandle = errors.New("session handle was not issued by this surface")

type SurfaceConfig struct {
	URL          string
	PingInterval time.Duration
	PongTimeout  time.Duration
	Retry        retry.Config
}

// Surface implements ports.SessionSurface over a WebSocket room connection.
type Surface struct {
	cfg    SurfaceConfig
	dialer *websocket.Dialer
	logger *zap.SugaredLogger
}

func NewSurface(cfg SurfaceConfig, logger *zap.SugaredLogger) (*Surface, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("surface url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("surface url must use ws or wss, got %q", cfg.URL)
	}

	return &Surface{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: logger,
	}, nil
}

func (s *Surface) roomURL(room domain.ConferenceID, displayName string) string {
	u, _ := url.Parse(s.cfg.URL)
	q := u.Query()
	q.Set("room", string(room))
	q.Set("name", displayName)
	u.RawQuery = q.Encode()
	return u.String()
}

// Join dials the room, retrying transient failures. A 4xx handshake reply is final.
func (s *Surface) Join(ctx context.Context, roomID domain.ConferenceID, displayName string) (ports.SessionHandle, error) {
	target := s.roomURL(roomID, displayName)

	conn, err := retry.DoWithResult(ctx, s.cfg.Retry, func(ctx context.Context) (*websocket.Conn, error) {
		conn, resp, err := s.dialer.DialContext(ctx, target, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, retry.Permanent(fmt.Errorf("room rejected join: status %d", resp.StatusCode))
			}
			s.logger.Debugw("room dial failed", "room_id", roomID, "error", err)
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", roomID, err)
	}

	h := newHandle(roomID, conn, s.cfg.PingInterval, s.cfg.PongTimeout, s.logger)
	go h.readLoop()
	go h.pingLoop()

	s.logger.Infow("joined room", "room_id", roomID)
	return h, nil
}

func (s *Surface) Leave(ctx context.Context, sh ports.SessionHandle) error {
	h, ok := sh.(*handle)
	if !ok {
		return ErrForeignHandle
	}
	return h.leave(ctx)
}

// handle is one live room connection.
type handle struct {
	room   domain.ConferenceID
	conn   *websocket.Conn
	logger *zap.SugaredLogger

	pingInterval time.Duration
	pongTimeout  time.Duration

	wmu    sync.Mutex
	counts chan int
	done   chan struct{}
	once   sync.Once
}

func newHandle(room domain.ConferenceID, conn *websocket.Conn, pingInterval, pongTimeout time.Duration, logger *zap.SugaredLogger) *handle {
	return &handle{
		room:         room,
		conn:         conn,
		logger:       logger,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		counts:       make(chan int, 8),
		done:         make(chan struct{}),
	}
}

func (h *handle) RoomID() domain.ConferenceID { return h.room }
func (h *handle) ParticipantCounts() <-chan int { return h.counts }
func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) finish() {
	h.once.Do(func() {
		close(h.done)
		_ = h.conn.Close()
	})
}

func (h *handle) readLoop() {
	defer h.finish()

	_ = h.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	h.conn.SetPongHandler(func(string) error {
		return h.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	for {
		var msg Message
		if err := h.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warnw("room connection lost", "room_id", h.room, "error", err)
			}
			return
		}
		_ = h.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))

		switch msg.Type {
		case MessageParticipants:
			h.deliver(msg.Count)
		case MessageError:
			h.logger.Warnw("room reported error", "room_id", h.room, "message", msg.Message)
		}
	}
}

// deliver keeps only the newest counts when the consumer falls behind.
func (h *handle) deliver(n int) {
	for {
		select {
		case h.counts <- n:
			return
		default:
		}
		select {
		case <-h.counts:
		default:
		}
	}
}

func (h *handle) pingLoop() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.wmu.Lock()
			err := h.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.pingInterval))
			h.wmu.Unlock()
			if err != nil {
				h.finish()
				return
			}
		}
	}
}

func (h *handle) leave(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	h.wmu.Lock()
	_ = h.conn.SetWriteDeadline(deadline)
	err := h.conn.WriteJSON(Message{Type: MessageLeave, RoomID: h.room})
	if err == nil {
		err = h.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"), deadline)
	}
	h.wmu.Unlock()

	h.finish()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("leave room %s: %w", h.room, err)
	}
	return nil
}
