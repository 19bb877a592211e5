package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/thakurlabs/thakur/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is consumed cross-origin by the dashboard.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is the wire shape of one live log entry.
type streamMessage struct {
	BuildID string          `json:"buildId"`
	Data    string          `json:"data"`
	Level   models.LogLevel `json:"level"`
}

// Stream handles GET /builds/{buildID}/logs/stream: upgrades to WebSocket
// and relays the build's log entries until the client disconnects.
func (h *LogHandler) Stream(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")

	if _, err := h.store.Builds().Get(r.Context(), buildID); err != nil {
		WriteStoreError(w, err, "Build not found", "Failed to get build")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "build_id", buildID, "error", err)
		return
	}
	defer conn.Close()

	sub := h.broker.Subscribe(buildID)
	defer h.broker.Unsubscribe(sub)

	// Reads are discarded; their only purpose is detecting disconnect.
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
		case entry, ok := <-sub.Ch:
			if !ok {
				return
			}
			msg := streamMessage{
				BuildID: entry.BuildID,
				Data:    entry.Message,
				Level:   entry.Level,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
