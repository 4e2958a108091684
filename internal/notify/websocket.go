package notify

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// =============================================================================
// WEBSOCKET CONNECTION HANDLING
// =============================================================================

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and subscribes the connection to topics.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, topics ...string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn().Err(err).Msg("[ServeWS] upgrade failed")
		return
	}

	id, err := h.Subscribe(conn, topics...)
	if err != nil {
		log.Warn().Err(err).Msg("[ServeWS] subscribe failed")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()))
		conn.Close()
		return
	}
	log.Info().Str("client", id).Strs("topics", topics).Str("remote", r.RemoteAddr).Msg("[ServeWS] client connected")
}
