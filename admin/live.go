package admin

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sentinela-gateway/middleware/guard"
	"sentinela-gateway/middleware/guard/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	liveBuffer     = 256
)

// liveClient é um painel conectado ao feed (eventos newLog / newAlert).
type liveClient struct {
	id     string
	conn   *websocket.Conn
	events <-chan domain.Event
	cancel func()
}

func (h *Handler) live(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		guard.WriteJSON(w, http.StatusServiceUnavailable, failure{Message: "live feed disabled"})
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("live_upgrade_failed", "error", err)
		return
	}

	events, cancel := h.deps.Hub.Subscribe(liveBuffer)
	c := &liveClient{id: uuid.NewString(), conn: conn, events: events, cancel: cancel}
	h.log.Info("live_client_connected", "client", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	c.readPump()
	h.log.Info("live_client_disconnected", "client", c.id)
}

// readPump só existe para detectar o fechamento e responder pongs;
// mensagens do painel são ignoradas.
func (c *liveClient) readPump() {
	defer func() {
		c.cancel()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump encerra quando o hub fecha o canal (inscrição cancelada ou shutdown).
func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.events:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}
