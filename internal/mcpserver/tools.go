// Package mcpserver exposes the agent's tools over the Model Context
// Protocol.
//
// Each tool follows one pattern: a struct holding the shared tools.Handler,
// Definition() returning the mcp.Tool schema and Handle() mapping the
// request onto the handler.
package mcpserver

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/easeaico/sql-memory-agent/internal/memory"
	"github.com/easeaico/sql-memory-agent/internal/tools"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// optionalInt returns nil when the argument is absent.
func optionalInt(req mcp.CallToolRequest, key string) *int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

func optionalBool(req mcp.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

func toResult(r tools.ToolResult) *mcp.CallToolResult {
	if !r.Success {
		return mcp.NewToolResultError(r.Error)
	}
	return mcp.NewToolResultText(r.Data)
}

func categoryNames() string {
	names := make([]string, len(memory.Categories))
	for i, c := range memory.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// ExecuteQueryTool handles the execute_query MCP tool.
type ExecuteQueryTool struct {
	handler *tools.Handler
}

// NewExecuteQueryTool creates an ExecuteQueryTool.
func NewExecuteQueryTool(h *tools.Handler) *ExecuteQueryTool {
	return &ExecuteQueryTool{handler: h}
}

// Definition returns the MCP tool definition for execute_query.
func (t *ExecuteQueryTool) Definition() mcp.Tool {
	return mcp.NewTool("execute_query",
		mcp.WithDescription(
			"Execute a read-oriented SQL query against the target database. "+
				"Destructive statements and injection patterns are blocked before reaching the database. "+
				"Outcomes are recorded in memory for later learning.",
		),
		mcp.WithString("sql_query",
			mcp.Required(),
			mcp.Description("The SQL query to execute"),
		),
		mcp.WithBoolean("learn_from_execution",
			mcp.Description("Record the outcome in memory (default: true)"),
		),
		mcp.WithNumber("max_rows",
			mcp.Description("Row limit appended when the query has none (default: 100)"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Execution timeout in seconds (default: 30)"),
		),
	)
}

// Handle processes the execute_query tool call.
func (t *ExecuteQueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toResult(t.handler.ExecuteQuery(ctx, tools.ExecuteQueryArgs{
		SQLQuery:           req.GetString("sql_query", ""),
		LearnFromExecution: optionalBool(req, "learn_from_execution"),
		MaxRows:            intArg(req, "max_rows", 0),
		TimeoutSeconds:     intArg(req, "timeout_seconds", 0),
	})), nil
}

// LearnTool handles the learn_from_memory MCP tool.
type LearnTool struct {
	handler *tools.Handler
}

// NewLearnTool creates a LearnTool.
func NewLearnTool(h *tools.Handler) *LearnTool {
	return &LearnTool{handler: h}
}

// Definition returns the MCP tool definition for learn_from_memory.
func (t *LearnTool) Definition() mcp.Tool {
	return mcp.NewTool("learn_from_memory",
		mcp.WithDescription(
			"Analyze past query outcomes stored in memory for a topic. Returns error patterns, "+
				"performance insights, common themes and prioritized suggestions.",
		),
		mcp.WithString("learning_query",
			mcp.Required(),
			mcp.Description("Topic to learn about, e.g. 'connection errors' or 'slow queries'"),
		),
		mcp.WithString("category_filter",
			mcp.Description("Restrict to one category: "+categoryNames()),
		),
		mcp.WithNumber("time_window_days",
			mcp.Description("Only consider memories from the last N days (default: 30, 0 for all)"),
		),
		mcp.WithNumber("max_suggestions",
			mcp.Description("Maximum number of suggestions (default: 5)"),
		),
	)
}

// Handle processes the learn_from_memory tool call.
func (t *LearnTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toResult(t.handler.LearnFromMemory(ctx, tools.LearnFromMemoryArgs{
		LearningQuery:  req.GetString("learning_query", ""),
		CategoryFilter: req.GetString("category_filter", ""),
		TimeWindowDays: optionalInt(req, "time_window_days"),
		MaxSuggestions: optionalInt(req, "max_suggestions"),
	})), nil
}

// IssuesTool handles the search_past_issues MCP tool.
type IssuesTool struct {
	handler *tools.Handler
}

// NewIssuesTool creates an IssuesTool.
func NewIssuesTool(h *tools.Handler) *IssuesTool {
	return &IssuesTool{handler: h}
}

// Definition returns the MCP tool definition for search_past_issues.
func (t *IssuesTool) Definition() mcp.Tool {
	return mcp.NewTool("search_past_issues",
		mcp.WithDescription("Search memory for past query failures and blocked queries similar to a problem description."),
		mcp.WithString("error_description",
			mcp.Required(),
			mcp.Description("Short description of the error or symptom"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 3, max: 20)"),
		),
	)
}

// Handle processes the search_past_issues tool call.
func (t *IssuesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toResult(t.handler.SearchPastIssues(ctx, tools.SearchPastIssuesArgs{
		ErrorDescription: req.GetString("error_description", ""),
		Limit:            intArg(req, "limit", 0),
	})), nil
}

// SaveTool handles the save_knowledge MCP tool.
type SaveTool struct {
	handler *tools.Handler
}

// NewSaveTool creates a SaveTool.
func NewSaveTool(h *tools.Handler) *SaveTool {
	return &SaveTool{handler: h}
}

// Definition returns the MCP tool definition for save_knowledge.
func (t *SaveTool) Definition() mcp.Tool {
	return mcp.NewTool("save_knowledge",
		mcp.WithDescription("Save a note about the database, such as schema details or user preferences, for later learning."),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Memory category: "+categoryNames()),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The note to remember"),
		),
	)
}

// Handle processes the save_knowledge tool call.
func (t *SaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toResult(t.handler.SaveKnowledge(ctx, tools.SaveKnowledgeArgs{
		Category: req.GetString("category", ""),
		Content:  req.GetString("content", ""),
	})), nil
}
