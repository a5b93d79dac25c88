// Package mcp exposes knowledge base search to AI agents over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// ErrMissingSearchService is returned when the server is built without a search service.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// Server is the MCP server for the knowledge base.
type Server struct {
	search driving.SearchService
	server *mcp.Server
}

// NewServer creates a new MCP server backed by search.
func NewServer(search driving.SearchService, version string) (*Server, error) {
	if search == nil {
		return nil, ErrMissingSearchService
	}

	s := &Server{
		search: search,
		server: mcp.NewServer(&mcp.Implementation{Name: "sercha-rag", Version: version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
