package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
// Relevance search uses an FTS5 index over record text kept in sync by a
// trigger, ranked with bm25.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore connected to the given database path.
// The path should be a file path (e.g., "./memory.db").
// It opens the database connection and verifies connectivity with a ping.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Appends from concurrent queries serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the necessary tables if they don't exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS memory_records (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			owner_id   TEXT NOT NULL,
			category   TEXT NOT NULL,
			text       TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_records_owner_category ON memory_records(owner_id, category);

		CREATE VIRTUAL TABLE IF NOT EXISTS memory_records_fts USING fts5(
			text,
			content='memory_records',
			content_rowid='seq'
		);

		CREATE TRIGGER IF NOT EXISTS memory_records_fts_insert AFTER INSERT ON memory_records BEGIN
			INSERT INTO memory_records_fts(rowid, text) VALUES (new.seq, new.text);
		END;
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Add appends a record.
func (s *SQLiteStore) Add(ctx context.Context, rec Record) error {
	rec = withDefaults(rec)

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO memory_records (id, owner_id, category, text, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, string(rec.Category), rec.Text, string(meta),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}

// Search returns records matching any term of req.Query, best bm25 rank
// first. An empty or term-less query returns the most recent records.
func (s *SQLiteStore) Search(ctx context.Context, req SearchRequest) ([]Record, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	var (
		query string
		args  []any
	)

	if match := sanitizeFTS(req.Query); match != "" {
		query = `
			SELECT r.id, r.owner_id, r.category, r.text, r.metadata, r.created_at
			FROM memory_records_fts fts
			JOIN memory_records r ON r.seq = fts.rowid
			WHERE memory_records_fts MATCH ? AND r.owner_id = ?`
		args = []any{match, req.OwnerID}
		if req.Category != nil {
			query += ` AND r.category = ?`
			args = append(args, string(*req.Category))
		}
		query += ` ORDER BY fts.rank, r.seq DESC LIMIT ?`
	} else {
		query = `
			SELECT r.id, r.owner_id, r.category, r.text, r.metadata, r.created_at
			FROM memory_records r
			WHERE r.owner_id = ?`
		args = []any{req.OwnerID}
		if req.Category != nil {
			query += ` AND r.category = ?`
			args = append(args, string(*req.Category))
		}
		query += ` ORDER BY r.seq DESC LIMIT ?`
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			category  string
			meta      string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &category, &rec.Text, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Category = Category(category)
		rec.Metadata = Metadata{}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", rec.ID, err)
			}
		}
		rec.CreatedAt, _ = parseTimestamp(createdAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

var ftsTerm = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// sanitizeFTS quotes every word so FTS5 operators and punctuation in free
// text never reach the query parser, and ORs them for recall.
func sanitizeFTS(query string) string {
	words := ftsTerm.FindAllString(query, -1)
	for i, w := range words {
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " OR ")
}

// withDefaults assigns an ID, creation time and non-nil metadata.
func withDefaults(rec Record) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Metadata == nil {
		rec.Metadata = Metadata{}
	}
	return rec
}

var _ Store = (*SQLiteStore)(nil)
