// Package report renders execution results and learning analyses as
// display-ready markdown. Every function is pure.
package report

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/easeaico/sql-memory-agent/internal/database"
	"github.com/easeaico/sql-memory-agent/internal/memory"
	"github.com/easeaico/sql-memory-agent/internal/query"
)

const (
	previewRows    = 10
	cellWidth      = 12
	summaryColumns = 3
	similarRunes   = 100
	hintRunes      = 200
)

// FormatExecution renders a successful execution: performance block, a
// preview of the first rows, numeric column summaries and similar past
// queries.
func FormatExecution(res *query.Result) string {
	var b strings.Builder

	b.WriteString("**Query Executed Successfully**\n\n")
	b.WriteString("**Performance:**\n")
	fmt.Fprintf(&b, "- Execution Time: %.3f seconds\n", res.Outcome.Elapsed.Seconds())
	fmt.Fprintf(&b, "- Rows Returned: %d\n", res.Outcome.RowCount)
	fmt.Fprintf(&b, "- Columns: %d\n\n", len(res.Outcome.Columns))

	rs := res.Rows
	if rs.Len() == 0 {
		b.WriteString("**No results returned**\n")
	} else {
		writePreview(&b, rs)
		writeSummary(&b, rs)
		if extra := rs.Len() - previewRows; extra > 0 {
			fmt.Fprintf(&b, "\n... and %d more rows\n", extra)
		}
	}

	if len(res.Similar) > 0 {
		b.WriteString("\n**Similar Past Queries:**\n")
		for _, rec := range res.Similar {
			fmt.Fprintf(&b, "- %s\n", memory.Truncate(rec.Text, similarRunes))
		}
	}

	return b.String()
}

func writePreview(b *strings.Builder, rs *database.RowSet) {
	shown := min(previewRows, rs.Len())
	fmt.Fprintf(b, "**Results Preview** (showing up to %d rows):\n\n", shown)

	headers := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		headers[i] = fmt.Sprintf("%*s", cellWidth, memory.Truncate(c.Name, cellWidth))
	}
	header := strings.Join(headers, " | ")
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("-", len([]rune(header))) + "\n")

	for _, row := range rs.Rows[:shown] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		b.WriteString(strings.Join(cells, " | ") + "\n")
	}
}

// formatCell right-aligns a value in a fixed-width cell. Text longer than
// the cell is cut; numbers are never cut.
func formatCell(v database.Value) string {
	switch v.Kind {
	case database.ValueNull:
		return fmt.Sprintf("%*s", cellWidth, "NULL")
	case database.ValueNumber:
		return fmt.Sprintf("%*s", cellWidth, v.String())
	default:
		return fmt.Sprintf("%*s", cellWidth, memory.Truncate(v.Text, cellWidth))
	}
}

func writeSummary(b *strings.Builder, rs *database.RowSet) {
	var lines []string
	for _, idx := range rs.NumericColumns() {
		if len(lines) == summaryColumns {
			break
		}
		lo, hi, sum, n := math.Inf(1), math.Inf(-1), 0.0, 0
		for _, row := range rs.Rows {
			v := row[idx]
			if v.Kind != database.ValueNumber {
				continue
			}
			lo = math.Min(lo, v.Num)
			hi = math.Max(hi, v.Num)
			sum += v.Num
			n++
		}
		if n == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: min=%.2f, max=%.2f, mean=%.2f",
			rs.Columns[idx].Name, lo, hi, sum/float64(n)))
	}

	if len(lines) == 0 {
		return
	}
	b.WriteString("\n**Numeric Column Summary:**\n")
	b.WriteString(strings.Join(lines, "\n") + "\n")
}

// FormatError renders a failed call. Execution failures carry the driver
// message verbatim followed by the hint, if any.
func FormatError(err error, hint string) string {
	var b strings.Builder

	var rejection *query.SafetyRejection
	var failure *query.ExecutionFailure
	switch {
	case errors.As(err, &rejection):
		b.WriteString("**Query Safety Error:**\n")
		b.WriteString(rejection.Error())
	case errors.As(err, &failure):
		b.WriteString("**Query Execution Error:**\n")
		b.WriteString(failure.Error())
		if hint == "" {
			hint = failure.Hint
		}
	default:
		b.WriteString("**Error:**\n")
		b.WriteString(err.Error())
	}

	if hint != "" {
		b.WriteString("\n\n**Similar errors found in memory:**\n")
		b.WriteString(memory.Truncate(hint, hintRunes) + "...")
	}

	return b.String()
}
