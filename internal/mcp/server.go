package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Answers  Answerer
	Detector Detector
	Catalog  Catalog
	Remover  SessionRemover
	Version  string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "coursemap", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question about a course from its lecture material. Citations point at the lecture chunks used. Set current_session to exclude material from later sessions.",
	}, makeAskHandler(cfg.Answers))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "detect_topics",
		Description: "Cluster a course's lecture chunks into topics and rebuild the topic map with prerequisite edges. Needs at least three sessions.",
	}, makeDetectHandler(cfg.Detector))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_topic_map",
		Description: "Get the current topic map of a course: topics, the sessions each appears in, and prerequisite edges.",
	}, makeTopicMapHandler(cfg.Catalog))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "summarize_topic",
		Description: "Summarize how a topic develops across the sessions it appears in.",
	}, makeSummarizeHandler(cfg.Answers))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List the lecture sessions of a course in teaching order.",
	}, makeListSessionsHandler(cfg.Catalog))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_session",
		Description: "Delete a lecture session with its chunks and topic appearances.",
	}, makeDeleteSessionHandler(cfg.Remover))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_courses",
		Description: "List every course that has ingested lectures.",
	}, makeListCoursesHandler(cfg.Catalog))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "course_status",
		Description: "Get session, chunk and topic counts for a course, with a warning when the topic map is older than the sessions.",
	}, makeStatusHandler(cfg.Catalog))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
