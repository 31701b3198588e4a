// Package service exposes the caller-facing operations of the agent:
// running safety-gated queries and learning from accumulated memory.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/easeaico/sql-memory-agent/internal/database"
	"github.com/easeaico/sql-memory-agent/internal/learning"
	"github.com/easeaico/sql-memory-agent/internal/logging"
	"github.com/easeaico/sql-memory-agent/internal/memory"
	"github.com/easeaico/sql-memory-agent/internal/query"
	"github.com/easeaico/sql-memory-agent/internal/report"
)

const (
	// DefaultWindowDays is the learning look-back when none is given.
	DefaultWindowDays = 30

	// DefaultMaxSuggestions caps suggestions when no cap is given.
	DefaultMaxSuggestions = 5

	defaultIssueLimit = 3
	maxIssueLimit     = 20
)

// InputError reports a request that is invalid before any work is done.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Config configures the service.
type Config struct {
	OwnerID       string
	MaxConcurrent int
}

// Service wires the execution and learning paths over one target database
// and one memory store.
type Service struct {
	executor  *query.Executor
	retriever *memory.Retriever
	recorder  *memory.Recorder
	engine    *learning.Engine
	store     memory.Store
	ownerID   string
}

// New creates a Service querying db and learning into store.
func New(db database.Querier, store memory.Store, cfg Config) *Service {
	owner := cfg.OwnerID
	if owner == "" {
		owner = query.DefaultConfig().OwnerID
	}
	recorder := memory.NewRecorder(store, owner)

	return &Service{
		executor:  query.NewExecutor(db, store, query.Config{MaxConcurrent: cfg.MaxConcurrent, OwnerID: owner}),
		retriever: memory.NewRetriever(store, owner),
		recorder:  recorder,
		engine:    learning.NewEngine(recorder),
		store:     store,
		ownerID:   owner,
	}
}

// ExecuteRequest is one query execution request. Zero RowLimit and Timeout
// fall back to the defaults.
type ExecuteRequest struct {
	Query    string
	RowLimit int
	Timeout  time.Duration
	Learn    bool
}

// ExecuteQuery runs the query and returns the formatted report. Errors are
// *InputError, *query.SafetyRejection or *query.ExecutionFailure.
func (s *Service) ExecuteQuery(ctx context.Context, req ExecuteRequest) (string, error) {
	text := strings.TrimSpace(req.Query)
	if text == "" {
		return "", &InputError{Field: "sql_query", Reason: "must not be empty"}
	}

	q := query.NewQuery(text)
	if req.RowLimit > 0 {
		q.RowLimit = req.RowLimit
	}
	if req.Timeout > 0 {
		q.Timeout = req.Timeout
	}
	q.Learn = req.Learn

	res, err := s.executor.Execute(ctx, q)
	if err != nil {
		logAdvisories("execute_query", advisoriesOf(err))
		return "", err
	}
	logAdvisories("execute_query", res.Advisories)

	return report.FormatExecution(res), nil
}

// LearnRequest is one learning request. WindowDays of zero disables the
// time filter; MaxSuggestions of zero yields no suggestions.
type LearnRequest struct {
	Topic          string
	Category       string
	WindowDays     int
	MaxSuggestions int
}

// LearnFromMemory analyzes the memories relevant to a topic and returns
// the formatted analysis with suggestions.
func (s *Service) LearnFromMemory(ctx context.Context, req LearnRequest) (string, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return "", &InputError{Field: "learning_query", Reason: "must not be empty"}
	}
	if req.WindowDays < 0 {
		return "", &InputError{Field: "time_window_days", Reason: "must not be negative"}
	}

	var category *memory.Category
	if req.Category != "" {
		c, err := memory.ParseCategory(req.Category)
		if err != nil {
			return "", &InputError{Field: "category_filter", Reason: err.Error()}
		}
		category = &c
	}

	records, err := s.retriever.Retrieve(ctx, topic, category, req.WindowDays)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return report.FormatNoMemories(topic), nil
	}

	analysis := learning.Analyze(records)
	suggestions, advisories := s.engine.Suggest(ctx, analysis, req.MaxSuggestions)
	logAdvisories("learn_from_memory", advisories)

	logging.Info().
		Add(logging.Component("service")).
		Add(logging.Count("memories", analysis.Total)).
		Add(logging.Count("suggestions", len(suggestions))).
		Msg("learning session complete")

	return report.FormatLearning(report.LearnResult{
		Topic:       topic,
		WindowDays:  req.WindowDays,
		Analysis:    analysis,
		Suggestions: suggestions,
		Samples:     records,
	}), nil
}

// SearchPastIssues returns past error_solutions records relevant to a
// problem description.
func (s *Service) SearchPastIssues(ctx context.Context, description string, limit int) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", &InputError{Field: "error_description", Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = defaultIssueLimit
	}
	limit = min(limit, maxIssueLimit)

	category := memory.CategoryErrorSolutions
	records, err := s.store.Search(ctx, memory.SearchRequest{
		Query:    description,
		OwnerID:  s.ownerID,
		Category: &category,
		Limit:    limit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to search issues: %w", err)
	}

	return report.FormatIssues(description, records), nil
}

// SaveKnowledge stores a note under a category so later learning sessions
// can use it.
func (s *Service) SaveKnowledge(ctx context.Context, category, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", &InputError{Field: "content", Reason: "must not be empty"}
	}
	c, err := memory.ParseCategory(category)
	if err != nil {
		return "", &InputError{Field: "category", Reason: err.Error()}
	}

	if err := s.recorder.Record(ctx, content, c, memory.Metadata{"source": "manual"}); err != nil {
		return "", fmt.Errorf("failed to save knowledge: %w", err)
	}
	return fmt.Sprintf("Knowledge saved to memory under %s.", c), nil
}

func advisoriesOf(err error) []error {
	var rejection *query.SafetyRejection
	if errors.As(err, &rejection) {
		return rejection.Advisories
	}
	var failure *query.ExecutionFailure
	if errors.As(err, &failure) {
		return failure.Advisories
	}
	return nil
}

func logAdvisories(op string, advisories []error) {
	for _, a := range advisories {
		logging.Warn().
			Add(logging.Component("service")).
			Add(logging.Str("operation", op)).
			Add(logging.ErrorField(a)).
			Msg("memory advisory")
	}
}
