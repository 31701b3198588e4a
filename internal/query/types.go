// Package query runs safety-gated read-only queries and captures their
// outcomes in the memory store.
package query

import (
	"time"

	"github.com/easeaico/sql-memory-agent/internal/database"
	"github.com/easeaico/sql-memory-agent/internal/memory"
	"github.com/easeaico/sql-memory-agent/internal/safety"
)

const (
	// DefaultTimeout bounds a single query when none is given.
	DefaultTimeout = 30 * time.Second

	// SlowThreshold is the elapsed time above which a query is slow.
	SlowThreshold = 5 * time.Second

	queryBudget = 100
	errorBudget = 200
)

// Query is one execution request.
type Query struct {
	Text     string
	RowLimit int
	Timeout  time.Duration
	Learn    bool
}

// NewQuery returns a Query with the default row limit, timeout and
// learning enabled.
func NewQuery(text string) Query {
	return Query{Text: text, RowLimit: safety.DefaultRowLimit, Timeout: DefaultTimeout, Learn: true}
}

// Outcome summarizes one execution. Counts always match the returned rows.
type Outcome struct {
	Success      bool
	Blocked      bool
	RowCount     int
	Columns      []string
	Elapsed      time.Duration
	ErrorMessage string
}

// Result is a successful execution.
type Result struct {
	// Normalized is the statement actually sent to the database.
	Normalized string
	Outcome    Outcome
	Rows       *database.RowSet

	// Similar holds up to three past successful queries resembling this one.
	Similar []memory.Record

	// Advisories collects memory-store failures; they never fail the call.
	Advisories []error
}

// SafetyRejection is returned when the safety gate blocks a query.
// The database is never contacted.
type SafetyRejection struct {
	Verdict    safety.Verdict
	Advisories []error
}

func (e *SafetyRejection) Error() string {
	return "query rejected for safety: " + e.Verdict.Reason
}

// ExecutionFailure wraps the driver error verbatim, with the closest past
// error_solutions record as a hint when one exists.
type ExecutionFailure struct {
	Err        error
	Hint       string
	Outcome    Outcome
	Advisories []error
}

func (e *ExecutionFailure) Error() string {
	return e.Err.Error()
}

func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}
