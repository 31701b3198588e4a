package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/fortify/ferrors"

	"github.com/easeaico/sql-memory-agent/internal/database"
	"github.com/easeaico/sql-memory-agent/internal/memory"
)

// mockQuerier is a mock implementation of database.Querier for testing
type mockQuerier struct {
	mu      sync.Mutex
	calls   []string
	rows    *database.RowSet
	err     error
	blockOn bool // wait for ctx cancellation
	delay   time.Duration
	gate    chan struct{} // when set, wait for close or ctx
}

func (m *mockQuerier) Query(ctx context.Context, sql string) (*database.RowSet, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sql)
	m.mu.Unlock()

	if m.blockOn {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

func (m *mockQuerier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockQuerier) Close() {}

// mockStore is a mock implementation of memory.Store for testing
type mockStore struct {
	mu          sync.Mutex
	added       []memory.Record
	byCategory  map[memory.Category][]memory.Record
	searches    []memory.SearchRequest
	addError    error
	searchError error
}

func (m *mockStore) Add(ctx context.Context, rec memory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addError != nil {
		return m.addError
	}
	m.added = append(m.added, rec)
	return nil
}

func (m *mockStore) Search(ctx context.Context, req memory.SearchRequest) ([]memory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, req)
	if m.searchError != nil {
		return nil, m.searchError
	}
	if req.Category == nil {
		return nil, nil
	}
	return m.byCategory[*req.Category], nil
}

func (m *mockStore) Close() {}

func (m *mockStore) addedIn(c memory.Category) []memory.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []memory.Record
	for _, r := range m.added {
		if r.Category == c {
			out = append(out, r)
		}
	}
	return out
}

func ordersRowSet() *database.RowSet {
	return &database.RowSet{
		Columns: []database.Column{
			{Name: "id", Kind: database.KindNumber},
			{Name: "customer", Kind: database.KindText},
		},
		Rows: [][]database.Value{
			{database.Number(1), database.Text("alice")},
			{database.Number(2), database.Text("bob")},
		},
	}
}

func TestExecute_UnsafeQueryNeverReachesDatabase(t *testing.T) {
	unsafe := []string{
		"DROP TABLE users",
		"delete from orders",
		"SELECT 1; drop table users",
		"select * from t union select name from information_schema.tables",
	}

	for _, sql := range unsafe {
		t.Run(sql, func(t *testing.T) {
			db := &mockQuerier{rows: ordersRowSet()}
			store := &mockStore{}
			e := NewExecutor(db, store, DefaultConfig())

			res, err := e.Execute(context.Background(), NewQuery(sql))
			if res != nil {
				t.Error("expected nil result for unsafe query")
			}

			var rejection *SafetyRejection
			if !errors.As(err, &rejection) {
				t.Fatalf("expected *SafetyRejection, got %v", err)
			}
			if len(db.calls) != 0 {
				t.Errorf("expected zero database calls, got %d", len(db.calls))
			}
			if len(store.added) != 1 {
				t.Fatalf("expected exactly one record, got %d", len(store.added))
			}

			rec := store.added[0]
			if rec.Category != memory.CategoryErrorSolutions {
				t.Errorf("expected error_solutions, got %s", rec.Category)
			}
			if !strings.HasPrefix(rec.Text, "Unsafe query blocked: ") || !strings.Contains(rec.Text, "Reason: "+rejection.Verdict.Reason) {
				t.Errorf("unexpected record text %q", rec.Text)
			}
			if v, _ := rec.Metadata.String(memory.MetaErrorType); v != "unsafe_query" {
				t.Errorf("expected error_type unsafe_query, got %q", v)
			}
			if v, _ := rec.Metadata.String(memory.MetaTool); v != "execute_query" {
				t.Errorf("expected tool execute_query, got %q", v)
			}
		})
	}
}

func TestExecute_UnsafeQueryRecordedEvenWithoutLearning(t *testing.T) {
	store := &mockStore{}
	e := NewExecutor(&mockQuerier{}, store, DefaultConfig())

	q := NewQuery("UPDATE users SET name = 'x'")
	q.Learn = false
	if _, err := e.Execute(context.Background(), q); err == nil {
		t.Fatal("expected rejection")
	}
	if len(store.added) != 1 {
		t.Errorf("expected the rejection to be recorded, got %d records", len(store.added))
	}
}

func TestExecute_Success(t *testing.T) {
	db := &mockQuerier{rows: ordersRowSet()}
	store := &mockStore{}
	e := NewExecutor(db, store, DefaultConfig())

	res, err := e.Execute(context.Background(), NewQuery("SELECT id, customer FROM orders;"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(db.calls) != 1 || db.calls[0] != "SELECT id, customer FROM orders LIMIT 100" {
		t.Errorf("unexpected database calls %q", db.calls)
	}
	if res.Normalized != "SELECT id, customer FROM orders LIMIT 100" {
		t.Errorf("unexpected normalized query %q", res.Normalized)
	}
	if !res.Outcome.Success || res.Outcome.RowCount != 2 || len(res.Outcome.Columns) != 2 {
		t.Errorf("unexpected outcome %+v", res.Outcome)
	}
	if res.Outcome.RowCount != res.Rows.Len() {
		t.Error("outcome row count must match the payload")
	}
	if len(res.Advisories) != 0 {
		t.Errorf("unexpected advisories %v", res.Advisories)
	}

	patterns := store.addedIn(memory.CategoryQueryPatterns)
	if len(patterns) != 1 {
		t.Fatalf("expected one query_patterns record, got %d", len(patterns))
	}
	rec := patterns[0]
	if !strings.HasPrefix(rec.Text, "Query executed successfully in ") ||
		!strings.HasSuffix(rec.Text, "... Returned 2 rows with columns: id, customer") {
		t.Errorf("unexpected record text %q", rec.Text)
	}
	if n, _ := rec.Metadata.Float(memory.MetaRowCount); n != 2 {
		t.Errorf("expected row_count 2, got %v", n)
	}
	if n, _ := rec.Metadata.Float(memory.MetaColumnCount); n != 2 {
		t.Errorf("expected column_count 2, got %v", n)
	}
	if v, _ := rec.Metadata.String(memory.MetaQueryType); v != "successful" {
		t.Errorf("expected query_type successful, got %q", v)
	}
	if _, ok := rec.Metadata.String(memory.MetaTimestamp); !ok {
		t.Error("expected timestamp metadata")
	}
	if len(store.addedIn(memory.CategoryPerformanceInsights)) != 0 {
		t.Error("fast query must not produce a performance insight")
	}
}

func TestExecute_RecordTruncatesQueryAndColumns(t *testing.T) {
	rs := &database.RowSet{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		rs.Columns = append(rs.Columns, database.Column{Name: name})
	}
	store := &mockStore{}
	e := NewExecutor(&mockQuerier{rows: rs}, store, DefaultConfig())

	long := "SELECT a, b, c, d, e, f, g FROM wide_table WHERE " + strings.Repeat("a = 1 OR ", 40) + "a = 2"
	if _, err := e.Execute(context.Background(), NewQuery(long)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := store.addedIn(memory.CategoryQueryPatterns)[0]
	if strings.Contains(rec.Text, long) {
		t.Error("record must not contain the full query")
	}
	if !strings.Contains(rec.Text, long[:100]+"...") {
		t.Errorf("expected 100-char query prefix, got %q", rec.Text)
	}
	if !strings.HasSuffix(rec.Text, "columns: a, b, c, d, e") {
		t.Errorf("expected first five columns, got %q", rec.Text)
	}
}

func TestExecute_SlowQueryAddsPerformanceInsight(t *testing.T) {
	store := &mockStore{}
	e := NewExecutor(&mockQuerier{rows: ordersRowSet()}, store, DefaultConfig())
	e.since = func(time.Time) time.Duration { return 6500 * time.Millisecond }

	res, err := e.Execute(context.Background(), NewQuery("SELECT * FROM orders"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome.Elapsed != 6500*time.Millisecond {
		t.Errorf("unexpected elapsed %v", res.Outcome.Elapsed)
	}

	insights := store.addedIn(memory.CategoryPerformanceInsights)
	if len(insights) != 1 {
		t.Fatalf("expected one performance insight, got %d", len(insights))
	}
	if !strings.HasPrefix(insights[0].Text, "Slow query detected (6.500s): ") {
		t.Errorf("unexpected insight text %q", insights[0].Text)
	}
	if !insights[0].Metadata.Bool(memory.MetaSlowQuery) {
		t.Error("expected slow_query=true")
	}
	if secs, _ := insights[0].Metadata.Float(memory.MetaExecutionTime); secs != 6.5 {
		t.Errorf("expected execution_time 6.5, got %v", secs)
	}
}

func TestExecute_LearnDisabled(t *testing.T) {
	store := &mockStore{}
	e := NewExecutor(&mockQuerier{rows: ordersRowSet()}, store, DefaultConfig())

	q := NewQuery("SELECT * FROM orders")
	q.Learn = false
	if _, err := e.Execute(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.added) != 0 {
		t.Errorf("expected no records, got %d", len(store.added))
	}
}

func TestExecute_FailureRecordsAndHints(t *testing.T) {
	driverErr := errors.New(`ERROR: syntax error at or near "FORM" (SQLSTATE 42601)`)
	prior := memory.Record{
		Text:     "Query failed with error: syntax error at or near \"SELEC\". Query: SELEC * FROM t...",
		Category: memory.CategoryErrorSolutions,
	}
	store := &mockStore{byCategory: map[memory.Category][]memory.Record{
		memory.CategoryErrorSolutions: {prior},
	}}
	db := &mockQuerier{err: driverErr}
	e := NewExecutor(db, store, DefaultConfig())

	res, err := e.Execute(context.Background(), NewQuery("SELECT * FORM orders"))
	if res != nil {
		t.Error("expected nil result on failure")
	}

	var failure *ExecutionFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *ExecutionFailure, got %v", err)
	}
	if err.Error() != driverErr.Error() {
		t.Errorf("expected verbatim driver message, got %q", err.Error())
	}
	if !errors.Is(err, driverErr) {
		t.Error("expected failure to unwrap to the driver error")
	}
	if failure.Hint != prior.Text {
		t.Errorf("expected hint from prior record, got %q", failure.Hint)
	}
	if len(db.calls) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(db.calls))
	}

	var hintSearch *memory.SearchRequest
	for i := range store.searches {
		if strings.HasPrefix(store.searches[i].Query, "query error ") {
			hintSearch = &store.searches[i]
		}
	}
	if hintSearch == nil {
		t.Fatal("expected an error hint lookup")
	}
	if want := "query error " + driverErr.Error()[:50]; hintSearch.Query != want {
		t.Errorf("hint query = %q, want %q", hintSearch.Query, want)
	}

	failures := store.addedIn(memory.CategoryErrorSolutions)
	if len(failures) != 1 {
		t.Fatalf("expected one error_solutions record, got %d", len(failures))
	}
	rec := failures[0]
	if !strings.HasPrefix(rec.Text, "Query failed with error: "+driverErr.Error()) {
		t.Errorf("unexpected record text %q", rec.Text)
	}
	if v, _ := rec.Metadata.String(memory.MetaErrorType); v != "query_execution" {
		t.Errorf("expected error_type query_execution, got %q", v)
	}
	if v, _ := rec.Metadata.String(memory.MetaQueryFragment); v != "SELECT * FORM orders" {
		t.Errorf("unexpected query_fragment %q", v)
	}
	if v, _ := rec.Metadata.String(memory.MetaErrorMessage); v != driverErr.Error() {
		t.Errorf("unexpected error_message %q", v)
	}
}

func TestExecute_FailureTruncatesErrorMessage(t *testing.T) {
	longErr := errors.New(strings.Repeat("x", 500))
	store := &mockStore{}
	e := NewExecutor(&mockQuerier{err: longErr}, store, DefaultConfig())

	_, err := e.Execute(context.Background(), NewQuery("SELECT 1"))
	if err == nil || err.Error() != longErr.Error() {
		t.Fatalf("expected the full message to be surfaced, got %v", err)
	}

	rec := store.added[0]
	if v, _ := rec.Metadata.String(memory.MetaErrorMessage); len(v) != 200 {
		t.Errorf("expected error_message truncated to 200, got %d", len(v))
	}
	if strings.Contains(rec.Text, longErr.Error()) {
		t.Error("record text must not carry the full error")
	}
}

func TestExecute_TimeoutCancelsQuery(t *testing.T) {
	store := &mockStore{}
	e := NewExecutor(&mockQuerier{blockOn: true}, store, DefaultConfig())

	q := NewQuery("SELECT pg_sleep(60)")
	q.Timeout = 20 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), q)
		done <- err
	}()

	select {
	case err := <-done:
		var failure *ExecutionFailure
		if !errors.As(err, &failure) {
			t.Fatalf("expected *ExecutionFailure, got %v", err)
		}
		if !strings.Contains(err.Error(), "deadline exceeded") {
			t.Errorf("expected deadline error, got %q", err.Error())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("query was not cancelled by its timeout")
	}

	if len(store.addedIn(memory.CategoryErrorSolutions)) != 1 {
		t.Error("expected the timeout to be recorded as a failure")
	}
}

func TestExecute_ConcurrentCallsQueueForSlots(t *testing.T) {
	db := &mockQuerier{rows: ordersRowSet(), delay: 200 * time.Millisecond}
	store := &mockStore{}
	e := NewExecutor(db, store, Config{MaxConcurrent: 2})

	const callers = 4
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Execute(context.Background(), NewQuery("SELECT 1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("expected queued call to succeed, got %v", err)
		}
	}
	if n := db.callCount(); n != callers {
		t.Errorf("expected %d database calls, got %d", callers, n)
	}
	if n := len(store.addedIn(memory.CategoryErrorSolutions)); n != 0 {
		t.Errorf("expected no error_solutions records, got %d", n)
	}
	if n := len(store.addedIn(memory.CategoryQueryPatterns)); n != callers {
		t.Errorf("expected %d query_patterns records, got %d", callers, n)
	}
}

func TestExecute_FullQueueIsNotRecorded(t *testing.T) {
	gate := make(chan struct{})
	db := &mockQuerier{rows: ordersRowSet(), gate: gate}
	store := &mockStore{}
	e := NewExecutor(db, store, Config{MaxConcurrent: 1, MaxQueue: 1})

	held := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.Execute(context.Background(), NewQuery("SELECT 1"))
			held <- err
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for db.callCount() < 1 {
		if time.Now().After(deadline) {
			close(gate)
			t.Fatal("first call never reached the database")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Let the second call take the only queue position.
	time.Sleep(100 * time.Millisecond)

	_, err := e.Execute(context.Background(), NewQuery("SELECT 2"))
	close(gate)

	var failure *ExecutionFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *ExecutionFailure, got %v", err)
	}
	if !errors.Is(err, ferrors.ErrBulkheadFull) {
		t.Errorf("expected capacity error, got %v", err)
	}
	if failure.Hint != "" {
		t.Errorf("expected no hint for a call that never ran, got %q", failure.Hint)
	}

	for i := 0; i < 2; i++ {
		if err := <-held; err != nil {
			t.Errorf("expected held call to succeed, got %v", err)
		}
	}
	if n := len(store.addedIn(memory.CategoryErrorSolutions)); n != 0 {
		t.Errorf("capacity rejection must not be recorded, got %d records", n)
	}
	store.mu.Lock()
	for _, req := range store.searches {
		if strings.HasPrefix(req.Query, "query error ") {
			t.Errorf("unexpected hint lookup %q", req.Query)
		}
	}
	store.mu.Unlock()
}

func TestExecute_CancelledCallerStillRecorded(t *testing.T) {
	store := &mockStore{}
	e := NewExecutor(&mockQuerier{blockOn: true}, store, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Execute(ctx, NewQuery("SELECT 1")); err == nil {
		t.Fatal("expected failure for cancelled context")
	}
	if len(store.addedIn(memory.CategoryErrorSolutions)) != 1 {
		t.Error("expected cancellation to be recorded as a failure")
	}
}

func TestExecute_MemoryFailuresAreAdvisory(t *testing.T) {
	store := &mockStore{addError: errors.New("disk full"), searchError: errors.New("index corrupt")}
	e := NewExecutor(&mockQuerier{rows: ordersRowSet()}, store, DefaultConfig())

	res, err := e.Execute(context.Background(), NewQuery("SELECT * FROM orders"))
	if err != nil {
		t.Fatalf("memory failures must not fail the call: %v", err)
	}
	if res.Outcome.RowCount != 2 {
		t.Errorf("unexpected row count %d", res.Outcome.RowCount)
	}
	if len(res.Advisories) != 2 {
		t.Errorf("expected lookup and write advisories, got %v", res.Advisories)
	}
}

func TestExecute_SimilarQueries(t *testing.T) {
	past := []memory.Record{
		{Text: "Query executed successfully in 0.010s: SELECT * FROM orders...", Category: memory.CategoryQueryPatterns},
		{Text: "Query executed successfully in 0.020s: SELECT id FROM orders...", Category: memory.CategoryQueryPatterns},
		{Text: "Query executed successfully in 0.030s: SELECT 1...", Category: memory.CategoryQueryPatterns},
		{Text: "Query executed successfully in 0.040s: SELECT 2...", Category: memory.CategoryQueryPatterns},
	}
	store := &mockStore{byCategory: map[memory.Category][]memory.Record{memory.CategoryQueryPatterns: past}}
	e := NewExecutor(&mockQuerier{rows: ordersRowSet()}, store, DefaultConfig())

	res, err := e.Execute(context.Background(), NewQuery("SELECT id, customer FROM orders WHERE id > 1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Similar) != 3 {
		t.Errorf("expected 3 similar queries, got %d", len(res.Similar))
	}

	first := store.searches[0]
	if first.Query != "select id customer from orders" {
		t.Errorf("expected first five tokens, got %q", first.Query)
	}
	if first.Category == nil || *first.Category != memory.CategoryQueryPatterns || first.Limit != 3 {
		t.Errorf("unexpected similar-query search %+v", first)
	}
}

func TestExecute_EmptyResult(t *testing.T) {
	rs := &database.RowSet{Columns: []database.Column{{Name: "id"}}}
	e := NewExecutor(&mockQuerier{rows: rs}, &mockStore{}, DefaultConfig())

	res, err := e.Execute(context.Background(), NewQuery("SELECT id FROM orders WHERE 1 = 0"))
	if err != nil {
		t.Fatalf("empty result is not an error: %v", err)
	}
	if res.Outcome.RowCount != 0 || len(res.Outcome.Columns) != 1 {
		t.Errorf("unexpected outcome %+v", res.Outcome)
	}
}
