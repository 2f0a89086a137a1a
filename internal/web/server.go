// Package web provides the browser console for MoziChem: a runtime
// dashboard, a thread browser and a chat page that talks to the JSON API.
package web

import (
	"context"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
	"github.com/sinagilassi/mozichem-ai/internal/memory"
	"github.com/sinagilassi/mozichem-ai/internal/usage"
)

//go:embed static/*
var staticFiles embed.FS

// StatsSnapshot is what the dashboard shows about usage.
type StatsSnapshot struct {
	Session usage.StatsSnapshot
	Usage   *usage.Summary
	ByModel map[string]*usage.Summary
	Build   map[string]string
}

// AgentInfo describes the running agent.
type AgentInfo struct {
	Exists     bool
	Name       string
	Provider   string
	Model      string
	MemoryMode bool
	Tools      map[string][]string
	Servers    []mcp.ServerStatus
}

// ThreadStore is the read side of the checkpointer the thread pages use.
type ThreadStore interface {
	Load(ctx context.Context, threadID string) ([]llm.Message, error)
	List(ctx context.Context) ([]memory.Thread, error)
}

// Config wires the console to its data providers. Any provider may be
// nil; the pages render without that section.
type Config struct {
	BrandName string
	// BasePath is where the console is mounted, e.g. "/ui".
	BasePath string
	// APIBase is the path prefix the chat page posts to.
	APIBase   string
	StatsFunc func() StatsSnapshot
	AgentFunc func() AgentInfo
	// ThreadsFunc returns the active thread store, or nil when memory
	// mode is off.
	ThreadsFunc func() ThreadStore
	Logger      *slog.Logger
}

// WebServer renders the console pages.
type WebServer struct {
	brandName   string
	basePath    string
	apiBase     string
	statsFunc   func() StatsSnapshot
	agentFunc   func() AgentInfo
	threadsFunc func() ThreadStore
	templates   map[string]*template.Template
	logger      *slog.Logger
}

// PageData is embedded in every page's template context.
type PageData struct {
	BrandName string
	BasePath  string
	ActiveNav string
	APIBase   string
}

// NewWebServer parses the templates and returns a console. It panics if
// the embedded templates do not parse.
func NewWebServer(cfg Config) *WebServer {
	if cfg.BrandName == "" {
		cfg.BrandName = "MoziChem"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebServer{
		brandName:   cfg.BrandName,
		basePath:    strings.TrimRight(cfg.BasePath, "/"),
		apiBase:     cfg.APIBase,
		statsFunc:   cfg.StatsFunc,
		agentFunc:   cfg.AgentFunc,
		threadsFunc: cfg.ThreadsFunc,
		templates:   loadTemplates(),
		logger:      cfg.Logger.With("component", "web"),
	}
}

// RegisterRoutes adds the console pages and assets to mux, rooted at "/".
func (s *WebServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /chat", s.handleChat)
	mux.HandleFunc("GET /threads", s.handleThreads)
	mux.HandleFunc("GET /threads/{id}", s.handleThreadDetail)

	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(sub)))
}

// Handler returns the console as a standalone handler.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *WebServer) page(nav string) PageData {
	return PageData{BrandName: s.brandName, BasePath: s.basePath, ActiveNav: nav, APIBase: s.apiBase}
}
