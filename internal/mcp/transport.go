package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewHTTPHandler serves the MCP server over Streamable HTTP. Stateless mode
// skips session management, which is enough for these request/response
// tools.
func NewHTTPHandler(server *Server, stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server.MCPServer()
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}

// NewMux mounts /mcp, /health and the landing page.
func NewMux(server *Server, checker HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/mcp", NewHTTPHandler(server, false))
	mux.HandleFunc("/health", NewHealthHandler(checker))
	mux.HandleFunc("/", NewLandingHandler())
	return mux
}
