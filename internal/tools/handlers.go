package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/easeaico/sql-memory-agent/internal/report"
	"github.com/easeaico/sql-memory-agent/internal/service"
)

// Operations is the set of agent operations the tools expose.
type Operations interface {
	ExecuteQuery(ctx context.Context, req service.ExecuteRequest) (string, error)
	LearnFromMemory(ctx context.Context, req service.LearnRequest) (string, error)
	SearchPastIssues(ctx context.Context, description string, limit int) (string, error)
	SaveKnowledge(ctx context.Context, category, content string) (string, error)
}

// Handler provides implementations for all agent tools.
type Handler struct {
	ops Operations
}

// NewHandler creates a new tool handler over ops.
func NewHandler(ops Operations) *Handler {
	return &Handler{ops: ops}
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failed(err error) ToolResult {
	return ToolResult{Success: false, Error: report.FormatError(err, "")}
}

// HandleToolCall dispatches and executes a tool call based on its name.
// Arguments arrive as a loosely typed map and are decoded into the tool's
// argument struct.
func (h *Handler) HandleToolCall(ctx context.Context, name string, args map[string]any) (string, error) {
	var result ToolResult

	switch name {
	case "execute_query":
		var a ExecuteQueryArgs
		result = decodeAndRun(args, &a, func() ToolResult { return h.ExecuteQuery(ctx, a) })
	case "learn_from_memory":
		var a LearnFromMemoryArgs
		result = decodeAndRun(args, &a, func() ToolResult { return h.LearnFromMemory(ctx, a) })
	case "search_past_issues":
		var a SearchPastIssuesArgs
		result = decodeAndRun(args, &a, func() ToolResult { return h.SearchPastIssues(ctx, a) })
	case "save_knowledge":
		var a SaveKnowledgeArgs
		result = decodeAndRun(args, &a, func() ToolResult { return h.SaveKnowledge(ctx, a) })
	default:
		result = ToolResult{
			Success: false,
			Error:   fmt.Sprintf("unknown tool: %s", name),
		}
	}

	jsonResult, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	return string(jsonResult), nil
}

func decodeAndRun(args map[string]any, into any, run func() ToolResult) ToolResult {
	raw, err := json.Marshal(args)
	if err != nil {
		return ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}
	return run()
}

// ExecuteQuery runs a SQL query behind the safety gate.
func (h *Handler) ExecuteQuery(ctx context.Context, args ExecuteQueryArgs) ToolResult {
	if args.SQLQuery == "" {
		return ToolResult{Success: false, Error: "sql_query is required"}
	}

	learn := true
	if args.LearnFromExecution != nil {
		learn = *args.LearnFromExecution
	}

	out, err := h.ops.ExecuteQuery(ctx, service.ExecuteRequest{
		Query:    args.SQLQuery,
		RowLimit: args.MaxRows,
		Timeout:  time.Duration(args.TimeoutSeconds) * time.Second,
		Learn:    learn,
	})
	if err != nil {
		return failed(err)
	}
	return ToolResult{Success: true, Data: out}
}

// LearnFromMemory analyzes stored memories for a topic.
func (h *Handler) LearnFromMemory(ctx context.Context, args LearnFromMemoryArgs) ToolResult {
	if args.LearningQuery == "" {
		return ToolResult{Success: false, Error: "learning_query is required"}
	}

	window := service.DefaultWindowDays
	if args.TimeWindowDays != nil {
		window = *args.TimeWindowDays
	}
	maxSuggestions := service.DefaultMaxSuggestions
	if args.MaxSuggestions != nil {
		maxSuggestions = *args.MaxSuggestions
	}

	out, err := h.ops.LearnFromMemory(ctx, service.LearnRequest{
		Topic:          args.LearningQuery,
		Category:       args.CategoryFilter,
		WindowDays:     window,
		MaxSuggestions: maxSuggestions,
	})
	if err != nil {
		return failed(err)
	}
	return ToolResult{Success: true, Data: out}
}

// SearchPastIssues searches past failures and blocked queries.
func (h *Handler) SearchPastIssues(ctx context.Context, args SearchPastIssuesArgs) ToolResult {
	if args.ErrorDescription == "" {
		return ToolResult{Success: false, Error: "error_description is required"}
	}

	out, err := h.ops.SearchPastIssues(ctx, args.ErrorDescription, args.Limit)
	if err != nil {
		return failed(err)
	}
	return ToolResult{Success: true, Data: out}
}

// SaveKnowledge stores a note in memory.
func (h *Handler) SaveKnowledge(ctx context.Context, args SaveKnowledgeArgs) ToolResult {
	if args.Category == "" || args.Content == "" {
		return ToolResult{Success: false, Error: "category and content are both required"}
	}

	out, err := h.ops.SaveKnowledge(ctx, args.Category, args.Content)
	if err != nil {
		return failed(err)
	}
	return ToolResult{Success: true, Data: out}
}
