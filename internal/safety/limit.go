package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultRowLimit is used when a caller passes a non-positive bound.
const DefaultRowLimit = 100

var limitClause = regexp.MustCompile(`(?i)\blimit\s+\d+`)

// HasLimit reports whether the query already carries a row-limit clause.
func HasLimit(text string) bool {
	return limitClause.MatchString(text)
}

// ApplyLimit appends "LIMIT maxRows" unless the query already has a limit
// clause. A trailing line comment and a single trailing statement
// terminator are removed first so the clause is never swallowed.
func ApplyLimit(text string, maxRows int) string {
	query := strings.TrimSpace(text)
	code := strings.TrimSpace(stripTrailingComment(query))
	if HasLimit(code) {
		return query
	}

	if maxRows <= 0 {
		maxRows = DefaultRowLimit
	}

	code = strings.TrimSuffix(code, ";")
	code = strings.TrimRight(code, " \t\r\n")
	return fmt.Sprintf("%s LIMIT %d", code, maxRows)
}

// stripTrailingComment drops a "--" comment that runs to the end of the
// text. Dashes inside single-quoted literals are not comments.
func stripTrailingComment(query string) string {
	inQuote := false
	for i := 0; i < len(query); i++ {
		switch c := query[i]; {
		case c == '\'':
			inQuote = !inQuote
		case !inQuote && c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return query[:i]
			}
			i += end
		}
	}
	return query
}
