package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sinagilassi/mozichem-ai/internal/chat"
)

// StreamWriteTimeout is how long an SSE or websocket write may block;
// it is re-armed after every event so long tool loops do not time out.
const StreamWriteTimeout = 120 * time.Second

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.chat.Chat(r.Context(), req)
	if err != nil {
		s.chatError(w, err)
		return
	}
	s.ok(w, resp)
}

func (s *Server) chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		s.errorResponse(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, chat.ErrAgentNotCreated):
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("chat turn failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to process user message: "+err.Error())
	}
}

// handleChatStream runs a turn and streams updates as SSE. Each update
// is a JSON event; the final response follows as a "response" event,
// and the stream ends with "data: [DONE]".
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	rc := http.NewResponseController(w)

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
		w.WriteHeader(http.StatusOK)
	}

	send := func(v any) {
		start()
		s.writeSSE(w, v)
		flusher.Flush()
		if err := rc.SetWriteDeadline(time.Now().Add(StreamWriteTimeout)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}

	resp, err := s.chat.Stream(r.Context(), req, func(u chat.Update) { send(u) })
	if err != nil {
		if !started {
			// Nothing streamed yet, so a normal error status still works.
			s.chatError(w, err)
			return
		}
		send(map[string]any{"type": "error", "error": err.Error()})
	} else {
		send(map[string]any{"type": "response", "response": resp})
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeSSE(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Debug("failed to marshal SSE chunk", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		s.logger.Debug("failed to write SSE chunk", "error", err)
	}
}
