// README: WebSocket session registry with addressed per-driver delivery.
package notify

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"gocab/internal/types"
)

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// session wraps one driver connection. gorilla/websocket permits a single
// concurrent writer, so every write holds the session mutex.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(envelope{Event: event, Payload: payload})
}

// Hub tracks live driver sessions keyed by driver id. Events are always
// addressed to one driver; there is no broadcast path.
type Hub struct {
	mu       sync.RWMutex
	sessions map[types.ID]*session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[types.ID]*session)}
}

// Register installs conn as the driver's session, replacing any previous one.
func (h *Hub) Register(driverID types.ID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[driverID]; ok {
		_ = old.conn.Close()
	}
	h.sessions[driverID] = &session{conn: conn}
}

// Unregister drops the driver's session if conn is still the current one.
func (h *Hub) Unregister(driverID types.ID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[driverID]; ok && cur.conn == conn {
		delete(h.sessions, driverID)
	}
}

// Connected reports whether the driver has a live session.
func (h *Hub) Connected(driverID types.ID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[driverID]
	return ok
}

func (h *Hub) Push(_ context.Context, driverID types.ID, event string, payload any) error {
	h.mu.RLock()
	s, ok := h.sessions[driverID]
	h.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(event, payload)
}

var _ Gateway = (*Hub)(nil)
