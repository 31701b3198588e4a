package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/easeaico/sql-memory-agent/internal/tools"
)

const instructions = `This server runs SQL queries against a database behind a safety gate and
learns from every outcome. Use execute_query for read-only analysis,
search_past_issues when a query fails, learn_from_memory to review patterns
and save_knowledge to remember schema details or preferences.`

// New creates the MCP server with every agent tool registered.
func New(h *tools.Handler, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sql-memory-agent",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	execTool := NewExecuteQueryTool(h)
	s.AddTool(execTool.Definition(), execTool.Handle)

	learnTool := NewLearnTool(h)
	s.AddTool(learnTool.Definition(), learnTool.Handle)

	issuesTool := NewIssuesTool(h)
	s.AddTool(issuesTool.Definition(), issuesTool.Handle)

	saveTool := NewSaveTool(h)
	s.AddTool(saveTool.Definition(), saveTool.Handle)

	return s
}

// ServeStdio serves s over stdin/stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
