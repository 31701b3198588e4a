// Package learning mines retrieved memory records for recurring error,
// success and performance patterns and turns them into suggestions.
package learning

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/orsinium-labs/stopwords"

	"github.com/easeaico/sql-memory-agent/internal/memory"
)

// ErrorPattern is a recognized class of failure.
type ErrorPattern string

const (
	PatternConnection ErrorPattern = "Database connection issues"
	PatternTimeout    ErrorPattern = "Query timeout problems"
	PatternSyntax     ErrorPattern = "SQL syntax errors"
	PatternPermission ErrorPattern = "Permission/access issues"
)

// errorRules are checked in order; a record gets at most one pattern.
var errorRules = []struct {
	keyword string
	pattern ErrorPattern
}{
	{"connection", PatternConnection},
	{"timeout", PatternTimeout},
	{"syntax", PatternSyntax},
	{"permission", PatternPermission},
}

const (
	fastSeconds    = 1.0
	slowSeconds    = 5.0
	excerptRunes   = 100
	maxThemes      = 10
	minThemeLength = 3
)

// SuccessPattern classifies one successful execution by speed.
type SuccessPattern struct {
	Fast    bool
	Seconds float64
}

func (p SuccessPattern) String() string {
	if p.Fast {
		return fmt.Sprintf("Fast query execution (%.3fs)", p.Seconds)
	}
	return fmt.Sprintf("Slow query identified (%.3fs)", p.Seconds)
}

// CategoryGroup holds the records of one category.
type CategoryGroup struct {
	Category memory.Category
	Records  []memory.Record
}

// Keyword is one entry of the theme table.
type Keyword struct {
	Word  string
	Count int
}

// PatternCount is an error pattern with its number of occurrences.
type PatternCount struct {
	Pattern ErrorPattern
	Count   int
}

// Analysis is the aggregate view of one retrieved candidate set.
type Analysis struct {
	Total               int
	Categories          []CategoryGroup
	ErrorPatterns       []ErrorPattern
	SuccessPatterns     []SuccessPattern
	PerformanceInsights []string
	Themes              []Keyword
}

// CategoryCount returns how many records belong to c.
func (a Analysis) CategoryCount(c memory.Category) int {
	for _, g := range a.Categories {
		if g.Category == c {
			return len(g.Records)
		}
	}
	return 0
}

// HasErrorPattern reports whether any record was classified as p.
func (a Analysis) HasErrorPattern(p ErrorPattern) bool {
	for _, got := range a.ErrorPatterns {
		if got == p {
			return true
		}
	}
	return false
}

// ErrorCounts returns each detected pattern with its count, in first-seen
// order.
func (a Analysis) ErrorCounts() []PatternCount {
	var counts []PatternCount
	index := map[ErrorPattern]int{}
	for _, p := range a.ErrorPatterns {
		if i, ok := index[p]; ok {
			counts[i].Count++
			continue
		}
		index[p] = len(counts)
		counts = append(counts, PatternCount{Pattern: p, Count: 1})
	}
	return counts
}

// FastCount returns the number of fast successful executions.
func (a Analysis) FastCount() int {
	n := 0
	for _, p := range a.SuccessPatterns {
		if p.Fast {
			n++
		}
	}
	return n
}

// domainStopWords are SQL and system words too common in records to
// carry meaning.
var domainStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true,
	"select": true, "from": true, "where": true, "order": true, "group": true,
	"having": true, "limit": true, "database": true, "table": true,
	"column": true, "query": true, "error": true, "failed": true, "success": true,
}

var (
	englishStopWords = stopwords.MustGet("en")
	themeToken       = regexp.MustCompile(`\b[a-z]{3,}\b`)
)

// Analyze classifies records in a single deterministic pass.
func Analyze(records []memory.Record) Analysis {
	a := Analysis{Total: len(records)}
	groupIndex := map[memory.Category]int{}
	texts := make([]string, 0, len(records))

	for _, rec := range records {
		if i, ok := groupIndex[rec.Category]; ok {
			a.Categories[i].Records = append(a.Categories[i].Records, rec)
		} else {
			groupIndex[rec.Category] = len(a.Categories)
			a.Categories = append(a.Categories, CategoryGroup{Category: rec.Category, Records: []memory.Record{rec}})
		}
		texts = append(texts, rec.Text)

		lower := strings.ToLower(rec.Text)
		switch {
		case rec.Category.IsErrorLike():
			if p, ok := classifyError(lower); ok {
				a.ErrorPatterns = append(a.ErrorPatterns, p)
			}

		case rec.Category == memory.CategoryQueryPatterns:
			secs, ok := rec.Metadata.Float(memory.MetaExecutionTime)
			if !ok {
				continue
			}
			if secs < fastSeconds {
				a.SuccessPatterns = append(a.SuccessPatterns, SuccessPattern{Fast: true, Seconds: secs})
			} else if secs > slowSeconds {
				a.SuccessPatterns = append(a.SuccessPatterns, SuccessPattern{Fast: false, Seconds: secs})
			}

		case rec.Category == memory.CategoryPerformanceInsights:
			if rec.Metadata.Bool(memory.MetaSlowQuery) || strings.Contains(lower, "slow") {
				a.PerformanceInsights = append(a.PerformanceInsights, memory.Truncate(rec.Text, excerptRunes))
			}
		}
	}

	a.Themes = extractThemes(strings.Join(texts, " "))
	return a
}

func classifyError(lower string) (ErrorPattern, bool) {
	for _, r := range errorRules {
		if strings.Contains(lower, r.keyword) {
			return r.pattern, true
		}
	}
	return "", false
}

// extractThemes returns the most frequent meaningful words, ties broken by
// first appearance.
func extractThemes(text string) []Keyword {
	counts := map[string]int{}
	var order []string

	for _, w := range themeToken.FindAllString(strings.ToLower(text), -1) {
		if len(w) < minThemeLength || domainStopWords[w] || englishStopWords.Contains(w) {
			continue
		}
		if _, seen := counts[w]; !seen {
			order = append(order, w)
		}
		counts[w]++
	}

	themes := make([]Keyword, len(order))
	for i, w := range order {
		themes[i] = Keyword{Word: w, Count: counts[w]}
	}
	sort.SliceStable(themes, func(i, j int) bool {
		return themes[i].Count > themes[j].Count
	})

	if len(themes) > maxThemes {
		themes = themes[:maxThemes]
	}
	return themes
}
