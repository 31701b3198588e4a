package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/ferrors"

	"github.com/easeaico/sql-memory-agent/internal/database"
	"github.com/easeaico/sql-memory-agent/internal/logging"
	"github.com/easeaico/sql-memory-agent/internal/memory"
	"github.com/easeaico/sql-memory-agent/internal/safety"
)

// Config configures the executor.
type Config struct {
	// MaxConcurrent limits concurrent database calls.
	MaxConcurrent int

	// MaxQueue bounds calls waiting for a free slot. Zero means four
	// waiting calls per slot.
	MaxQueue int

	// OwnerID scopes every memory read and write.
	OwnerID string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 10, OwnerID: "system"}
}

// Executor runs validated queries against the target database and records
// every outcome in memory.
type Executor struct {
	db       database.Querier
	store    memory.Store
	recorder *memory.Recorder
	ownerID  string
	bulkhead bulkhead.Bulkhead[*database.RowSet]
	since    func(time.Time) time.Duration
}

// NewExecutor creates an executor over db that learns into store.
func NewExecutor(db database.Querier, store memory.Store, cfg Config) *Executor {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultConfig().MaxConcurrent
	}
	maxQueue := cfg.MaxQueue
	if maxQueue <= 0 {
		maxQueue = maxConcurrent * 4
	}
	owner := cfg.OwnerID
	if owner == "" {
		owner = DefaultConfig().OwnerID
	}

	return &Executor{
		db:       db,
		store:    store,
		recorder: memory.NewRecorder(store, owner),
		ownerID:  owner,
		bulkhead: bulkhead.New[*database.RowSet](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxQueue,
			QueueTimeout:  DefaultTimeout,
		}),
		since: time.Since,
	}
}

// Execute validates, limits and runs q. Unsafe queries return a
// *SafetyRejection without touching the database; database errors,
// deadlines and cancellation return an *ExecutionFailure. Memory-store
// problems never fail the call and are reported as advisories.
func (e *Executor) Execute(ctx context.Context, q Query) (*Result, error) {
	verdict := safety.Validate(q.Text)
	if !verdict.Safe {
		return nil, e.reject(ctx, q, verdict)
	}

	var advisories []error

	similar, err := e.similarQueries(ctx, q.Text)
	if err != nil {
		advisories = append(advisories, err)
	}

	normalized := safety.ApplyLimit(q.Text, q.RowLimit)
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// The timeout also covers time spent queued for a slot.
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.bulkhead.Execute(execCtx, func(ctx context.Context) (*database.RowSet, error) {
		return e.db.Query(ctx, normalized)
	})
	elapsed := e.since(start)

	if errors.Is(err, ferrors.ErrBulkheadFull) {
		return nil, e.shed(err, elapsed, advisories)
	}
	if err != nil {
		return nil, e.fail(ctx, q, err, elapsed, advisories)
	}
	if rows == nil {
		rows = &database.RowSet{}
	}

	outcome := Outcome{
		Success:  true,
		RowCount: rows.Len(),
		Columns:  rows.ColumnNames(),
		Elapsed:  elapsed,
	}

	logging.Info().
		Add(logging.Component("executor")).
		Add(logging.Duration(elapsed)).
		Add(logging.Rows(outcome.RowCount)).
		Msg("query executed")

	if q.Learn {
		advisories = append(advisories, e.recordSuccess(ctx, q, outcome)...)
	}

	return &Result{
		Normalized: normalized,
		Outcome:    outcome,
		Rows:       rows,
		Similar:    similar,
		Advisories: advisories,
	}, nil
}

func (e *Executor) reject(ctx context.Context, q Query, verdict safety.Verdict) *SafetyRejection {
	logging.Warn().
		Add(logging.Component("executor")).
		Add(logging.Reason(verdict.Reason)).
		Msg("unsafe query blocked")

	rejection := &SafetyRejection{Verdict: verdict}
	text := fmt.Sprintf("Unsafe query blocked: %s... Reason: %s", memory.Truncate(q.Text, queryBudget), verdict.Reason)
	err := e.recorder.Record(ctx, text, memory.CategoryErrorSolutions, memory.Metadata{
		memory.MetaErrorType: "unsafe_query",
		memory.MetaTool:      "execute_query",
	})
	if err != nil {
		rejection.Advisories = append(rejection.Advisories, fmt.Errorf("failed to record blocked query: %w", err))
	}
	return rejection
}

// shed reports a call turned away because every slot and queue position
// was taken. The query never ran, so nothing is learned from it.
func (e *Executor) shed(cause error, elapsed time.Duration, advisories []error) *ExecutionFailure {
	logging.Warn().
		Add(logging.Component("executor")).
		Add(logging.ErrorField(cause)).
		Msg("executor at capacity, query not run")

	return &ExecutionFailure{
		Err: cause,
		Outcome: Outcome{
			Elapsed:      elapsed,
			ErrorMessage: cause.Error(),
		},
		Advisories: advisories,
	}
}

func (e *Executor) fail(ctx context.Context, q Query, cause error, elapsed time.Duration, advisories []error) *ExecutionFailure {
	message := cause.Error()
	// A cancelled caller still gets its failure recorded.
	ctx = context.WithoutCancel(ctx)

	logging.Error().
		Add(logging.Component("executor")).
		Add(logging.Duration(elapsed)).
		Add(logging.ErrorField(cause)).
		Msg("query execution failed")

	failure := &ExecutionFailure{
		Err: cause,
		Outcome: Outcome{
			Elapsed:      elapsed,
			ErrorMessage: message,
		},
		Advisories: advisories,
	}

	// The hint lookup runs before this failure is recorded so it can only
	// return prior knowledge.
	hint, err := e.errorHint(ctx, message)
	if err != nil {
		failure.Advisories = append(failure.Advisories, err)
	}
	failure.Hint = hint

	if q.Learn {
		text := fmt.Sprintf("Query failed with error: %s. Query: %s...",
			memory.Truncate(message, errorBudget), memory.Truncate(q.Text, queryBudget))
		err := e.recorder.Record(ctx, text, memory.CategoryErrorSolutions, memory.Metadata{
			memory.MetaErrorType:     "query_execution",
			memory.MetaErrorMessage:  memory.Truncate(message, errorBudget),
			memory.MetaQueryFragment: memory.Truncate(q.Text, queryBudget),
		})
		if err != nil {
			failure.Advisories = append(failure.Advisories, fmt.Errorf("failed to record query failure: %w", err))
		}
	}

	return failure
}

func (e *Executor) recordSuccess(ctx context.Context, q Query, o Outcome) []error {
	var advisories []error
	seconds := o.Elapsed.Seconds()

	cols := o.Columns
	if len(cols) > 5 {
		cols = cols[:5]
	}
	text := fmt.Sprintf("Query executed successfully in %.3fs: %s... Returned %d rows with columns: %s",
		seconds, memory.Truncate(q.Text, queryBudget), o.RowCount, strings.Join(cols, ", "))

	err := e.recorder.Record(ctx, text, memory.CategoryQueryPatterns, memory.Metadata{
		memory.MetaExecutionTime: seconds,
		memory.MetaRowCount:      o.RowCount,
		memory.MetaColumnCount:   len(o.Columns),
		memory.MetaQueryType:     "successful",
	})
	if err != nil {
		advisories = append(advisories, fmt.Errorf("failed to record query pattern: %w", err))
	}

	if o.Elapsed > SlowThreshold {
		note := fmt.Sprintf("Slow query detected (%.3fs): %s...", seconds, memory.Truncate(q.Text, queryBudget))
		err := e.recorder.Record(ctx, note, memory.CategoryPerformanceInsights, memory.Metadata{
			memory.MetaSlowQuery:     true,
			memory.MetaExecutionTime: seconds,
		})
		if err != nil {
			advisories = append(advisories, fmt.Errorf("failed to record slow query: %w", err))
		}
	}

	return advisories
}

var wordToken = regexp.MustCompile(`\w+`)

// similarQueries looks up past successful queries sharing the first five
// word tokens of text.
func (e *Executor) similarQueries(ctx context.Context, text string) ([]memory.Record, error) {
	words := wordToken.FindAllString(strings.ToLower(text), 5)
	if len(words) == 0 {
		return nil, nil
	}

	category := memory.CategoryQueryPatterns
	records, err := e.store.Search(ctx, memory.SearchRequest{
		Query:    strings.Join(words, " "),
		OwnerID:  e.ownerID,
		Category: &category,
		Limit:    3,
	})
	if err != nil {
		logging.Warn().
			Add(logging.Component("executor")).
			Add(logging.ErrorField(err)).
			Msg("similar query lookup failed")
		return nil, fmt.Errorf("failed to look up similar queries: %w", err)
	}
	if len(records) > 3 {
		records = records[:3]
	}
	return records, nil
}

// errorHint returns the closest past error_solutions text, truncated.
func (e *Executor) errorHint(ctx context.Context, message string) (string, error) {
	category := memory.CategoryErrorSolutions
	records, err := e.store.Search(ctx, memory.SearchRequest{
		Query:    "query error " + memory.Truncate(message, 50),
		OwnerID:  e.ownerID,
		Category: &category,
		Limit:    1,
	})
	if err != nil {
		logging.Warn().
			Add(logging.Component("executor")).
			Add(logging.ErrorField(err)).
			Msg("error hint lookup failed")
		return "", fmt.Errorf("failed to look up error hint: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}
	return memory.Truncate(records[0].Text, errorBudget), nil
}
