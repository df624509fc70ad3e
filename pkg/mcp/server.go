package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/crawler"
	"github.com/Sriram-PR/field-scraper/pkg/session"
)

const (
	serverName    = "field-scraper"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger

	Engine   *crawler.Engine
	Sessions session.Reader
}

// Server exposes the crawl engine as MCP tools
type Server struct {
	mcpServer *server.MCPServer
	cfg       *ServerConfig
	log       *logrus.Entry
	jobs      *JobTracker
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Engine == nil || cfg.Sessions == nil {
		return nil, fmt.Errorf("Engine and Sessions are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		cfg:       cfg,
		log:       cfg.Logger.WithField("component", "mcp"),
		jobs:      NewJobTracker(),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{mcp.NewTool("list_jobs",
			mcp.WithDescription("List configured scrape jobs and whether each is running"),
		), s.handleListJobs},

		{mcp.NewTool("run_job",
			mcp.WithDescription("Start a configured job in a new session. Returns the session id immediately unless wait is set."),
			mcp.WithString("job_key",
				mcp.Required(),
				mcp.Description("Job key from the config file"),
			),
			mcp.WithBoolean("wait",
				mcp.Description("Block until the session finishes and return its summary"),
			),
		), s.handleRunJob},

		{mcp.NewTool("get_session",
			mcp.WithDescription("Get a session's status, progress, errors and optionally its records"),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id returned by run_job"),
			),
			mcp.WithBoolean("include_results",
				mcp.Description("Include extracted records (default: false)"),
			),
		), s.handleGetSession},

		{mcp.NewTool("list_sessions",
			mcp.WithDescription("List known sessions, oldest first"),
		), s.handleListSessions},

		{mcp.NewTool("stop_session",
			mcp.WithDescription("Request a cooperative stop of a running session"),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id to stop"),
			),
		), s.handleStopSession},

		{mcp.NewTool("test_selector",
			mcp.WithDescription("Load a URL and preview what one selector would extract"),
			mcp.WithString("url",
				mcp.Required(),
				mcp.Description("Page to load"),
			),
			mcp.WithString("css_query", mcp.Description("CSS selector")),
			mcp.WithString("path_query", mcp.Description("XPath expression")),
			mcp.WithString("regex", mcp.Description("Regex applied to the value, or to page text when no query is set")),
			mcp.WithString("attribute", mcp.Description("text (default), html, or an attribute name such as href")),
			mcp.WithString("user_agent_profile", mcp.Description("User agent profile from the config")),
		), s.handleTestSelector},

		{mcp.NewTool("search_results",
			mcp.WithDescription("Search extracted record values across sessions"),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search query (case-insensitive substring match)"),
			),
			mcp.WithString("session_id",
				mcp.Description("Limit search to one session (optional)"),
			),
			mcp.WithNumber("max_results",
				mcp.Description("Maximum number of results to return (default: 10, max: 100)"),
			),
		), s.handleSearchResults},
	}

	for _, t := range tools {
		s.mcpServer.AddTool(t.tool, t.handler)
	}
	s.log.Infof("Registered %d MCP tools", len(tools))
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown stops every session started through the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	for _, key := range s.jobs.Running() {
		run, ok := s.jobs.Latest(key)
		if !ok {
			continue
		}
		if err := s.cfg.Engine.Stop(run.ID); err != nil {
			s.log.Warnf("Stopping session %s (%s): %v", run.ID, key, err)
			continue
		}
		if _, err := run.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
