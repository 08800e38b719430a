// Package mcpserver exposes the page builder's draft/publish workflow as MCP
// tools so assistants can edit the storefront layout.
package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/store"
)

// Server is the MCP server for the storefront page builder. Every tool goes
// through the config store, so edits land in the draft exactly as an admin
// API save would.
type Server struct {
	mcp   *server.MCPServer
	store *store.ConfigStore
}

// New creates the server and registers every tool.
func New(cs *store.ConfigStore) *Server {
	s := &Server{store: cs}
	s.mcp = server.NewMCPServer(
		"storefront-mcp",
		storefront.Version,
		server.WithToolCapabilities(true),
	)
	s.registerLayoutTools()
	s.registerWorkflowTools()
	return s
}

// MCP returns the underlying server, for transports other than stdio.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
