package activity

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// StreamHandler streams the bus over a WebSocket: the retained snapshot first,
// then live entries until the client disconnects.
type StreamHandler struct {
	bus          *Bus
	allowOrigins []string
	upgrader     websocket.Upgrader
}

// NewStreamHandler creates a handler. An empty allowOrigins list only accepts
// requests without an Origin header; "*" accepts any origin.
func NewStreamHandler(bus *Bus, allowOrigins []string) *StreamHandler {
	h := &StreamHandler{
		bus:          bus,
		allowOrigins: allowOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := h.bus.Subscribe(256)
	defer cancel()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	for _, e := range h.bus.Snapshot() {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
