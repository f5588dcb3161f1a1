// Package mcp exposes the retrieval engine as Model Context Protocol tools
// over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/ranking"
)

// Options configures the tool defaults.
type Options struct {
	PageSize      int // values <= 0 mean the pipeline default
	MinScoreStage ranking.Stage
}

// Server wraps an MCP server that exposes memory retrieval tools.
type Server struct {
	eng  *engine.Engine
	opts Options
	mcp  *server.MCPServer
}

// NewServer creates a new MCP server over eng.
func NewServer(eng *engine.Engine, version string, opts Options) *Server {
	s := &Server{
		eng:  eng,
		opts: opts,
	}

	s.mcp = server.NewMCPServer(
		"recall",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchMemoriesTool, s.handleSearchMemories)
	s.mcp.AddTool(readMemoryTool, s.handleReadMemory)
	s.mcp.AddTool(buildContextTool, s.handleBuildContext)
	s.mcp.AddTool(findSimilarConceptsTool, s.handleFindSimilarConcepts)
	s.mcp.AddTool(listMemoriesTool, s.handleListMemories)
	s.mcp.AddTool(assumptionLedgerTool, s.handleAssumptionLedger)
	s.mcp.AddTool(syncTool, s.handleSync)
}

// Serve starts the MCP server on stdio. Stdout carries protocol messages;
// all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
