// README: WebSocket endpoint wiring driver connections into the hub.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gocab/internal/http/middleware"
	"gocab/internal/notify"
)

type WSHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(hub *notify.Hub, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browser clients carry the JWT, not an Origin we control
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Connect upgrades the authenticated driver's request and parks the
// connection in the hub until the client goes away. The read loop only
// drains control frames; drivers answer offers over the REST endpoints.
func (h *WSHandler) Connect(c *gin.Context) {
	driverID := middleware.CallerID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "driver_id", driverID, "error", err)
		return
	}
	h.hub.Register(driverID, conn)
	h.log.Info("driver connected", "driver_id", driverID)

	defer func() {
		h.hub.Unregister(driverID, conn)
		_ = conn.Close()
		h.log.Info("driver disconnected", "driver_id", driverID)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
