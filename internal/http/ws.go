package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The REST endpoints already allow any origin; the feed matches them.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OrderEvents streams order insert/update events over a websocket. A wallet
// query parameter narrows the feed to one purchaser; without it the feed is
// unfiltered (admin view).
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event feed disabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.Events.Subscribe(r.URL.Query().Get("wallet"))
	defer h.Events.Unsubscribe(sub)

	// Drain reads so client close frames are noticed.
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
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			payload := map[string]any{"kind": evt.Kind, "order": toOrderResponse(evt.Order)}
			if err := conn.WriteJSON(payload); err != nil {
				log.Printf("ws write failed: %v", err)
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
