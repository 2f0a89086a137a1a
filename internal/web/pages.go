package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sinagilassi/mozichem-ai/internal/buildinfo"
	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/memory"
	"github.com/sinagilassi/mozichem-ai/internal/usage"
)

// DashboardData is the template context for the runtime overview page.
type DashboardData struct {
	PageData
	Stats  StatsSnapshot
	Models []string
	Agent  AgentInfo
	Uptime time.Duration
}

func (s *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{
		PageData: s.page("overview"),
		Uptime:   buildinfo.Uptime(),
	}
	if s.statsFunc != nil {
		data.Stats = s.statsFunc()
		data.Models = usage.SortedModels(data.Stats.ByModel)
	}
	if s.agentFunc != nil {
		data.Agent = s.agentFunc()
	}
	s.render(w, r, "dashboard.html", data)
}

// ChatData is the template context for the chat page.
type ChatData struct {
	PageData
	Agent AgentInfo
}

func (s *WebServer) handleChat(w http.ResponseWriter, r *http.Request) {
	data := ChatData{PageData: s.page("chat")}
	if s.agentFunc != nil {
		data.Agent = s.agentFunc()
	}
	s.render(w, r, "chat.html", data)
}

// ThreadsData is the template context for the thread list.
type ThreadsData struct {
	PageData
	MemoryOff bool
	Threads   []memory.Thread
}

func (s *WebServer) handleThreads(w http.ResponseWriter, r *http.Request) {
	data := ThreadsData{PageData: s.page("threads")}
	store := s.threads()
	if store == nil {
		data.MemoryOff = true
		s.render(w, r, "threads.html", data)
		return
	}

	threads, err := store.List(r.Context())
	if err != nil {
		s.logger.Error("thread list failed", "error", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	data.Threads = threads
	s.render(w, r, "threads.html", data)
}

// ThreadDetailData is the template context for one thread's transcript.
type ThreadDetailData struct {
	PageData
	ThreadID string
	Messages []*messageRow
}

// messageRow is a display-friendly wrapper around a transcript message.
type messageRow struct {
	Role       string
	Content    string
	Name       string
	ToolCalls  []string
	ToolCallID string
	IsError    bool
	Long       bool
}

func (s *WebServer) handleThreadDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	store := s.threads()
	if store == nil {
		http.Error(w, "memory mode is off", http.StatusNotFound)
		return
	}

	msgs, err := store.Load(r.Context(), id)
	if errors.Is(err, memory.ErrThreadNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("thread load failed", "thread_id", id, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "thread.html", ThreadDetailData{
		PageData: s.page("threads"),
		ThreadID: id,
		Messages: messagesToRows(msgs),
	})
}

func (s *WebServer) threads() ThreadStore {
	if s.threadsFunc == nil {
		return nil
	}
	return s.threadsFunc()
}

func messagesToRows(msgs []llm.Message) []*messageRow {
	rows := make([]*messageRow, 0, len(msgs))
	for _, m := range msgs {
		row := &messageRow{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			IsError:    m.IsError,
			Long:       len(m.Content) > 600,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Function.Arguments)
			row.ToolCalls = append(row.ToolCalls, tc.Function.Name+" "+string(args))
		}
		rows = append(rows, row)
	}
	return rows
}
