package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 * 1024
)

// WSReply is sent for every text frame received on the session socket.
type WSReply struct {
	TurnID    string `json:"turn_id,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Exhausted bool   `json:"exhausted,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleWebSocket runs one turn per text frame until the client closes
// the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		s.logger.Warn("websocket upgrade failed", "session", id, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	logger := s.logger.With("session", id, "remote_addr", r.RemoteAddr)
	logger.Info("websocket connected")

	ctx := r.Context()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("websocket closed")
			} else {
				logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var reply WSReply
		turn, err := s.runTurn(ctx, id, string(data), nil)
		if err != nil {
			logger.Warn("turn failed", "error", err)
			reply.Error = err.Error()
		} else {
			reply.TurnID = turn.ID
			reply.Answer = turn.Answer
			reply.Exhausted = turn.Exhausted
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}
