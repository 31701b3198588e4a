// Package memory provides the categorized, append-only knowledge base the
// query executor writes outcomes into and the learning pipeline mines.
package memory

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Category partitions memory records. The set is closed.
type Category string

const (
	CategoryQueryPatterns       Category = "query_patterns"
	CategoryErrorSolutions      Category = "error_solutions"
	CategoryPerformanceInsights Category = "performance_insights"
	CategorySchemaInfo          Category = "schema_info"
	CategoryErrorLog            Category = "error_log"
	CategoryDatabaseConnection  Category = "database_connection"
	CategoryUserPreferences     Category = "user_preferences"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryQueryPatterns,
	CategoryErrorSolutions,
	CategoryPerformanceInsights,
	CategorySchemaInfo,
	CategoryErrorLog,
	CategoryDatabaseConnection,
	CategoryUserPreferences,
}

// ParseCategory converts a free-text category into the closed set.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown memory category %q", s)
}

// IsErrorLike reports whether records of this category describe failures.
func (c Category) IsErrorLike() bool {
	return c == CategoryErrorSolutions || c == CategoryErrorLog
}

// Well-known metadata keys.
const (
	MetaTimestamp     = "timestamp"
	MetaExecutionTime = "execution_time"
	MetaRowCount      = "row_count"
	MetaColumnCount   = "column_count"
	MetaQueryType     = "query_type"
	MetaErrorType     = "error_type"
	MetaErrorMessage  = "error_message"
	MetaQueryFragment = "query_fragment"
	MetaSlowQuery     = "slow_query"
	MetaTool          = "tool"
)

// Metadata holds scalar attributes of a record (string, number or bool).
type Metadata map[string]any

// String returns the value at key when it is a string.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// Float returns the value at key as float64 when it is numeric.
// Values decoded from JSON arrive as float64.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Bool returns the value at key when it is a bool.
func (m Metadata) Bool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

// Clone returns a shallow copy so stored records never alias caller maps.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Record is the append-only unit of the knowledge base.
type Record struct {
	ID        string
	Text      string
	OwnerID   string
	Category  Category
	Metadata  Metadata
	CreatedAt time.Time
}

// SearchRequest selects records by relevance to Query, optionally
// restricted to one category.
type SearchRequest struct {
	Query    string
	OwnerID  string
	Category *Category
	Limit    int
}

// Truncate shortens s to at most max runes without splitting multi-byte
// characters.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// parseTimestamp parses the timestamp formats records are written with,
// including naive ISO timestamps without a zone.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}
