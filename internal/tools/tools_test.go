package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/easeaico/sql-memory-agent/internal/query"
	"github.com/easeaico/sql-memory-agent/internal/safety"
	"github.com/easeaico/sql-memory-agent/internal/service"
)

// mockOperations implements Operations for testing
type mockOperations struct {
	execReq    service.ExecuteRequest
	learnReq   service.LearnRequest
	issueDesc  string
	issueLimit int
	saved      [2]string
	err        error
}

func (m *mockOperations) ExecuteQuery(ctx context.Context, req service.ExecuteRequest) (string, error) {
	m.execReq = req
	return "executed", m.err
}

func (m *mockOperations) LearnFromMemory(ctx context.Context, req service.LearnRequest) (string, error) {
	m.learnReq = req
	return "learned", m.err
}

func (m *mockOperations) SearchPastIssues(ctx context.Context, description string, limit int) (string, error) {
	m.issueDesc, m.issueLimit = description, limit
	return "issues", m.err
}

func (m *mockOperations) SaveKnowledge(ctx context.Context, category, content string) (string, error) {
	m.saved = [2]string{category, content}
	return "saved", m.err
}

func TestBuildTools(t *testing.T) {
	tools, err := BuildTools(ToolsConfig{Operations: &mockOperations{}})
	if err != nil {
		t.Fatalf("Failed to build tools: %v", err)
	}

	want := []string{"execute_query", "learn_from_memory", "search_past_issues", "save_knowledge"}
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for i, name := range want {
		if tools[i].Name() != name {
			t.Errorf("tool %d = %q, want %q", i, tools[i].Name(), name)
		}
	}
}

func TestArgSchemasCarryDescriptions(t *testing.T) {
	schemas := map[string]func() (*jsonschema.Schema, error){
		"ExecuteQueryArgs":     func() (*jsonschema.Schema, error) { return jsonschema.For[ExecuteQueryArgs](nil) },
		"LearnFromMemoryArgs":  func() (*jsonschema.Schema, error) { return jsonschema.For[LearnFromMemoryArgs](nil) },
		"SearchPastIssuesArgs": func() (*jsonschema.Schema, error) { return jsonschema.For[SearchPastIssuesArgs](nil) },
		"SaveKnowledgeArgs":    func() (*jsonschema.Schema, error) { return jsonschema.For[SaveKnowledgeArgs](nil) },
	}

	for name, build := range schemas {
		schema, err := build()
		if err != nil {
			t.Errorf("%s: failed to infer schema: %v", name, err)
			continue
		}
		for prop, s := range schema.Properties {
			if s.Description == "" {
				t.Errorf("%s.%s has no description", name, prop)
			}
			if strings.HasPrefix(s.Description, "description=") {
				t.Errorf("%s.%s carries a raw tag prefix: %q", name, prop, s.Description)
			}
		}
	}

	schema, _ := jsonschema.For[ExecuteQueryArgs](nil)
	if got := schema.Properties["sql_query"].Description; got != "The SQL query to execute" {
		t.Errorf("sql_query description = %q", got)
	}
}

func TestExecuteQuery_Defaults(t *testing.T) {
	ops := &mockOperations{}
	h := NewHandler(ops)

	res := h.ExecuteQuery(context.Background(), ExecuteQueryArgs{SQLQuery: "SELECT 1"})
	if !res.Success || res.Data != "executed" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !ops.execReq.Learn {
		t.Error("learning should default to true")
	}
	if ops.execReq.Timeout != 0 || ops.execReq.RowLimit != 0 {
		t.Errorf("zero values should pass through for service defaults, got %+v", ops.execReq)
	}

	off := false
	h.ExecuteQuery(context.Background(), ExecuteQueryArgs{SQLQuery: "SELECT 1", LearnFromExecution: &off, TimeoutSeconds: 5, MaxRows: 7})
	if ops.execReq.Learn || ops.execReq.Timeout != 5*time.Second || ops.execReq.RowLimit != 7 {
		t.Errorf("explicit arguments not forwarded, got %+v", ops.execReq)
	}
}

func TestExecuteQuery_Errors(t *testing.T) {
	h := NewHandler(&mockOperations{})
	if res := h.ExecuteQuery(context.Background(), ExecuteQueryArgs{}); res.Success || res.Error != "sql_query is required" {
		t.Errorf("unexpected result %+v", res)
	}

	ops := &mockOperations{err: &query.SafetyRejection{Verdict: safety.Validate("DELETE FROM users")}}
	res := NewHandler(ops).ExecuteQuery(context.Background(), ExecuteQueryArgs{SQLQuery: "DELETE FROM users"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "Query Safety Error") || !strings.Contains(res.Error, "'delete'") {
		t.Errorf("unexpected error text %q", res.Error)
	}
}

func TestLearnFromMemory_Defaults(t *testing.T) {
	ops := &mockOperations{}
	h := NewHandler(ops)

	h.LearnFromMemory(context.Background(), LearnFromMemoryArgs{LearningQuery: "timeouts"})
	if ops.learnReq.WindowDays != service.DefaultWindowDays || ops.learnReq.MaxSuggestions != service.DefaultMaxSuggestions {
		t.Errorf("defaults not applied, got %+v", ops.learnReq)
	}

	zero := 0
	h.LearnFromMemory(context.Background(), LearnFromMemoryArgs{LearningQuery: "timeouts", TimeWindowDays: &zero, MaxSuggestions: &zero})
	if ops.learnReq.WindowDays != 0 || ops.learnReq.MaxSuggestions != 0 {
		t.Errorf("explicit zero must be kept, got %+v", ops.learnReq)
	}
}

func TestHandleToolCall(t *testing.T) {
	ops := &mockOperations{}
	h := NewHandler(ops)
	ctx := context.Background()

	out, err := h.HandleToolCall(ctx, "search_past_issues", map[string]any{"error_description": "deadlock", "limit": 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res ToolResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if !res.Success || res.Data != "issues" || ops.issueDesc != "deadlock" || ops.issueLimit != 2 {
		t.Errorf("unexpected dispatch: %+v, ops=%+v", res, ops)
	}

	if _, err := h.HandleToolCall(ctx, "learn_from_memory", map[string]any{"learning_query": "x", "time_window_days": 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ops.learnReq.WindowDays != 7 {
		t.Errorf("expected window 7, got %d", ops.learnReq.WindowDays)
	}

	if _, err := h.HandleToolCall(ctx, "save_knowledge", map[string]any{"category": "schema_info", "content": "orders(id)"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ops.saved != [2]string{"schema_info", "orders(id)"} {
		t.Errorf("unexpected saved note %v", ops.saved)
	}

	out, _ = h.HandleToolCall(ctx, "read_file_content", nil)
	if !strings.Contains(out, "unknown tool: read_file_content") {
		t.Errorf("unexpected output %q", out)
	}

	out, _ = h.HandleToolCall(ctx, "execute_query", map[string]any{"sql_query": 42})
	if !strings.Contains(out, "invalid arguments") {
		t.Errorf("expected decoding error, got %q", out)
	}
}

func TestServiceErrorsAreRendered(t *testing.T) {
	ops := &mockOperations{err: errors.New("store offline")}
	res := NewHandler(ops).SearchPastIssues(context.Background(), SearchPastIssuesArgs{ErrorDescription: "x"})
	if res.Success || !strings.Contains(res.Error, "store offline") {
		t.Errorf("unexpected result %+v", res)
	}

	res = NewHandler(ops).SaveKnowledge(context.Background(), SaveKnowledgeArgs{Category: "schema_info"})
	if res.Success || res.Error != "category and content are both required" {
		t.Errorf("unexpected result %+v", res)
	}
}
