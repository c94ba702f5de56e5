package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // auth is handled at the HTTP layer
	},
}

// handleStream handles GET /sessions/{session}/stream. It upgrades to a
// WebSocket, replays the session's events and then pushes each new one as
// it is recorded. Client messages are read and discarded; the stream ends
// when the client goes away or the server shuts down.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", session, "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read error", "session", session, "err", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.deps.PollInterval)
	defer ticker.Stop()

	sent := 0
	for {
		events, err := s.deps.Tracker.Events(ctx, session)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("event stream read failed", "session", session, "err", err)
			_ = writeMessage(conn, StreamMessage{Type: "error", Message: err.Error()})
			return
		}
		// the ledger is append-only, so everything past sent is new
		for i := sent; i < len(events); i++ {
			if err := writeMessage(conn, StreamMessage{Type: "event", Event: &events[i]}); err != nil {
				return
			}
		}
		sent = max(sent, len(events))

		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
		}
	}
}

func writeMessage(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
