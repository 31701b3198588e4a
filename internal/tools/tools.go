// Package tools defines ADK tool declarations for the SQL memory agent.
// The tools are the agent's procedural memory: running queries against
// the target database and learning from what happened before.
package tools

import (
	"fmt"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

// ToolsConfig holds dependencies for creating tools.
type ToolsConfig struct {
	Operations Operations
}

// --- Tool Input Structs ---

// ExecuteQueryArgs is the input for execute_query tool.
type ExecuteQueryArgs struct {
	SQLQuery           string `json:"sql_query" jsonschema:"The SQL query to execute"`
	LearnFromExecution *bool  `json:"learn_from_execution,omitempty" jsonschema:"Record the outcome in memory (default true)"`
	MaxRows            int    `json:"max_rows,omitempty" jsonschema:"Row limit appended when the query has none (default 100)"`
	TimeoutSeconds     int    `json:"timeout_seconds,omitempty" jsonschema:"Execution timeout in seconds (default 30)"`
}

// LearnFromMemoryArgs is the input for learn_from_memory tool.
type LearnFromMemoryArgs struct {
	LearningQuery  string `json:"learning_query" jsonschema:"Topic to learn about, e.g. connection errors or slow queries"`
	CategoryFilter string `json:"category_filter,omitempty" jsonschema:"Restrict to one memory category such as error_solutions or query_patterns"`
	TimeWindowDays *int   `json:"time_window_days,omitempty" jsonschema:"Only consider memories from the last N days (default 30, 0 for all)"`
	MaxSuggestions *int   `json:"max_suggestions,omitempty" jsonschema:"Maximum number of suggestions (default 5)"`
}

// SearchPastIssuesArgs is the input for search_past_issues tool.
type SearchPastIssuesArgs struct {
	ErrorDescription string `json:"error_description" jsonschema:"Short description of the error or symptom"`
	Limit            int    `json:"limit,omitempty" jsonschema:"Maximum number of past issues to return (default 3)"`
}

// SaveKnowledgeArgs is the input for save_knowledge tool.
type SaveKnowledgeArgs struct {
	Category string `json:"category" jsonschema:"Memory category, e.g. schema_info or user_preferences"`
	Content  string `json:"content" jsonschema:"The note to remember"`
}

// --- Tool Declarations ---

func createExecuteQueryTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args ExecuteQueryArgs) (ToolResult, error) {
		return h.ExecuteQuery(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "execute_query",
		Description: "Execute a read-oriented SQL query against the target database. Destructive statements are blocked. Outcomes are learned into memory.",
	}, handler)
}

func createLearnFromMemoryTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args LearnFromMemoryArgs) (ToolResult, error) {
		return h.LearnFromMemory(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "learn_from_memory",
		Description: "Analyze past query outcomes stored in memory for a topic and return error patterns, performance insights and prioritized suggestions.",
	}, handler)
}

func createSearchPastIssuesTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args SearchPastIssuesArgs) (ToolResult, error) {
		return h.SearchPastIssues(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "search_past_issues",
		Description: "Search memory for past query failures and blocked queries similar to a problem description.",
	}, handler)
}

func createSaveKnowledgeTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args SaveKnowledgeArgs) (ToolResult, error) {
		return h.SaveKnowledge(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "save_knowledge",
		Description: "Save a note about the database, such as schema details or user preferences, for later learning.",
	}, handler)
}

// BuildTools creates all agent tools with the given configuration.
func BuildTools(cfg ToolsConfig) ([]tool.Tool, error) {
	h := NewHandler(cfg.Operations)

	builders := []struct {
		name  string
		build func(*Handler) (tool.Tool, error)
	}{
		{"execute_query", createExecuteQueryTool},
		{"learn_from_memory", createLearnFromMemoryTool},
		{"search_past_issues", createSearchPastIssuesTool},
		{"save_knowledge", createSaveKnowledgeTool},
	}

	tools := make([]tool.Tool, 0, len(builders))
	for _, b := range builders {
		t, err := b.build(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tool: %w", b.name, err)
		}
		tools = append(tools, t)
	}

	return tools, nil
}
