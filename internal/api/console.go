package api

import (
	"context"
	"time"

	"github.com/sinagilassi/mozichem-ai/internal/buildinfo"
	"github.com/sinagilassi/mozichem-ai/internal/web"
)

// Providers for the built-in console at /ui/.

func (s *Server) webStats() web.StatsSnapshot {
	snap := web.StatsSnapshot{Build: buildinfo.Info()}
	if s.chat.Stats != nil {
		snap.Session = s.chat.Stats.Snapshot()
	}
	if s.usage == nil {
		return snap
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	end := time.Now().Add(time.Second)
	if sum, err := s.usage.Summary(ctx, time.Time{}, end); err == nil {
		snap.Usage = sum
	} else {
		s.logger.Warn("usage summary failed", "error", err)
	}
	if byModel, err := s.usage.SummaryByModel(ctx, time.Time{}, end); err == nil {
		snap.ByModel = byModel
	}
	return snap
}

func (s *Server) webAgent() web.AgentInfo {
	state := s.manager.State()
	info := web.AgentInfo{
		Name:       state.AgentName,
		Provider:   state.ModelProvider,
		Model:      state.ModelName,
		MemoryMode: state.MemoryMode,
	}
	ag := s.manager.Agent()
	if ag == nil {
		return info
	}
	info.Exists = true
	info.Name = ag.Name()
	info.Tools = ag.ToolsBySource()
	info.Servers = ag.Servers()
	return info
}

func (s *Server) webThreads() web.ThreadStore {
	ag := s.manager.Agent()
	if ag == nil {
		return nil
	}
	cp := ag.Checkpointer()
	if cp == nil {
		return nil
	}
	return cp
}
