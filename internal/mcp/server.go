package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docrag-mcp/internal/app"
)

const (
	// ServerName is the MCP server name
	ServerName = "docrag-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp *server.MCPServer
	app *app.App
}

// NewServer creates a new MCP server over an opened App.
// The caller keeps ownership of a.
func NewServer(a *app.App) *Server {
	s := &Server{
		mcp: server.NewMCPServer(ServerName, ServerVersion),
		app: a,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexDocumentsTool(), s.handleIndexDocuments)
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(getIndexStatusTool(), s.handleGetIndexStatus)
	s.mcp.AddTool(listSourcesTool(), s.handleListSources)
	s.mcp.AddTool(deleteDocumentsTool(), s.handleDeleteDocuments)
}
