package notify

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades every request on / and /ws and attaches it to h.
func Handler(h *Hub) http.Handler {
	upgrade := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("upgrade failed")
			return
		}

		c := newClient(uuid.NewString(), conn, h.logger)
		if !h.register(c) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}
		c.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("client connected")

		go c.writePump()
		go c.readPump(h)
	})

	mux := http.NewServeMux()
	mux.Handle("/", upgrade)
	mux.Handle("/ws", upgrade)
	return mux
}

// NewServer returns the listener for the notification channel.
func NewServer(addr string, h *Hub) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Handler(h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
