package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sinagilassi/mozichem-ai/internal/chat"
)

const wsMaxMessageBytes = 1 << 20

// WSFrame is one server-to-client websocket message. Type is an update
// kind ("token", "tool_call_start", "tool_call_done", "done"), or
// "response" for the final answer, or "error".
type WSFrame struct {
	Type     string         `json:"type"`
	Update   *chat.Update   `json:"update,omitempty"`
	Response *chat.Response `json:"response,omitempty"`
	Error    *WSError       `json:"error,omitempty"`
}

// WSError mirrors the HTTP error envelope.
type WSError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
}

// handleWebSocket serves a chat session over one websocket. Every
// inbound chat.Request produces update frames and a final response or
// error frame. A request without thread_id continues the thread of the
// previous turn on the same connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageBytes)

	log := s.logger.With("remote", r.RemoteAddr)
	log.Info("websocket connected")

	// The request context outlives a dropped client once the connection
	// is hijacked, so a failed write cancels the connection's work.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var threadID string
	for {
		var req chat.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("websocket closed")
			} else {
				log.Debug("websocket read ended", "error", err)
			}
			return
		}
		if req.ThreadID == "" {
			req.ThreadID = threadID
		}

		write := func(f WSFrame) error {
			err := conn.SetWriteDeadline(time.Now().Add(StreamWriteTimeout))
			if err == nil {
				err = conn.WriteJSON(f)
			}
			if err != nil {
				cancel()
			}
			return err
		}

		resp, err := s.chat.Stream(ctx, req, func(u chat.Update) {
			if ctx.Err() != nil {
				return
			}
			if err := write(WSFrame{Type: u.Type, Update: &u}); err != nil {
				log.Info("websocket client gone, cancelling turn", "error", err)
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, chat.ErrEmptyMessage) {
				code = http.StatusBadRequest
			}
			if werr := write(WSFrame{Type: "error", Error: &WSError{Message: err.Error(), Code: code}}); werr != nil {
				return
			}
			continue
		}

		threadID = resp.ThreadID
		if err := write(WSFrame{Type: "response", Response: resp}); err != nil {
			log.Debug("websocket write failed", "error", err)
			return
		}
	}
}
