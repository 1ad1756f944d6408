package signal

import (
	"net/http"
	"sync"
	"time"

	"confline/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	// the hub only listens on the local control address
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub is a minimal room server for running without an external
// conferencing backend. It carries no media; it tracks who is connected to
// each room and broadcasts the room size on every change.
type Hub struct {
	mu    sync.Mutex
	rooms map[domain.ConferenceID]map[*member]struct{}

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

type member struct {
	name string
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (m *member) send(msg Message, timeout time.Duration) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	_ = m.conn.SetWriteDeadline(time.Now().Add(timeout))
	return m.conn.WriteJSON(msg)
}

func (m *member) ping(timeout time.Duration) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return m.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func NewHub(pingInterval, pongTimeout time.Duration, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:        make(map[domain.ConferenceID]map[*member]struct{}),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// RoomSize returns how many members are connected to room.
func (h *Hub) RoomSize(room domain.ConferenceID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	room := domain.ConferenceID(r.URL.Query().Get("room"))
	if room == "" {
		http.Error(w, "missing room parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	m := &member{name: r.URL.Query().Get("name"), conn: conn}
	h.join(room, m)
	defer h.leave(room, m)

	_ = conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
			if msg.Type == MessageLeave {
				readErr <- nil
				return
			}
			_ = m.send(Message{Type: MessageError, Message: "unknown message type: " + msg.Type}, h.writeTimeout)
		}
	}()

	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-pingTicker.C:
			if err := m.ping(h.writeTimeout); err != nil {
				h.logger.Infow("error sending ping", "room_id", room, "error", err)
				return
			}
		case err := <-readErr:
			if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Infow("room connection lost", "room_id", room, "name", m.name, "error", err)
			}
			return
		}
	}
}

func (h *Hub) join(room domain.ConferenceID, m *member) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*member]struct{})
		h.rooms[room] = members
	}
	members[m] = struct{}{}
	h.mu.Unlock()

	h.logger.Infow("member joined room", "room_id", room, "name", m.name)
	h.broadcast(room)
}

func (h *Hub) leave(room domain.ConferenceID, m *member) {
	h.mu.Lock()
	members := h.rooms[room]
	delete(members, m)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	h.mu.Unlock()

	h.logger.Infow("member left room", "room_id", room, "name", m.name)
	h.broadcast(room)
}

func (h *Hub) broadcast(room domain.ConferenceID) {
	h.mu.Lock()
	members := make([]*member, 0, len(h.rooms[room]))
	for m := range h.rooms[room] {
		members = append(members, m)
	}
	h.mu.Unlock()

	msg := Message{Type: MessageParticipants, RoomID: room, Count: len(members)}
	for _, m := range members {
		if err := m.send(msg, h.writeTimeout); err != nil {
			h.logger.Debugw("participant update not delivered", "room_id", room, "name", m.name, "error", err)
		}
	}
}
