package report

import (
	"fmt"
	"strings"

	"github.com/easeaico/sql-memory-agent/internal/learning"
	"github.com/easeaico/sql-memory-agent/internal/memory"
)

const (
	shownInsights = 3
	shownThemes   = 5
	shownSamples  = 3
	sampleRunes   = 80
)

// LearnResult is everything one learning call produced.
type LearnResult struct {
	Topic       string
	WindowDays  int
	Analysis    learning.Analysis
	Suggestions []learning.Suggestion
	Samples     []memory.Record
}

var priorityMarker = map[learning.Priority]string{
	learning.PriorityHigh:   "[HIGH]",
	learning.PriorityMedium: "[MEDIUM]",
	learning.PriorityLow:    "[LOW]",
}

// FormatLearning renders a learning analysis.
func FormatLearning(r LearnResult) string {
	var b strings.Builder
	a := r.Analysis

	b.WriteString("**Memory Learning Analysis**\n\n")
	fmt.Fprintf(&b, "**Topic:** %s\n", r.Topic)
	fmt.Fprintf(&b, "**Analyzed:** %d memories", a.Total)
	if r.WindowDays > 0 {
		fmt.Fprintf(&b, " (last %d days)", r.WindowDays)
	}
	b.WriteString("\n\n")

	if len(a.Categories) > 0 {
		b.WriteString("**Memory Categories:**\n")
		for _, g := range a.Categories {
			fmt.Fprintf(&b, "   - %s: %d memories\n", g.Category, len(g.Records))
		}
		b.WriteString("\n")
	}

	if counts := a.ErrorCounts(); len(counts) > 0 {
		b.WriteString("**Error Patterns Detected:**\n")
		for _, c := range counts {
			fmt.Fprintf(&b, "   - %s: %d occurrences\n", c.Pattern, c.Count)
		}
		b.WriteString("\n")
	}

	if len(a.PerformanceInsights) > 0 {
		b.WriteString("**Performance Insights:**\n")
		for _, insight := range a.PerformanceInsights[:min(shownInsights, len(a.PerformanceInsights))] {
			fmt.Fprintf(&b, "   - %s...\n", insight)
		}
		b.WriteString("\n")
	}

	if len(a.Themes) > 0 {
		b.WriteString("**Common Themes:**\n")
		for _, k := range a.Themes[:min(shownThemes, len(a.Themes))] {
			fmt.Fprintf(&b, "   - %s: %d mentions\n", k.Word, k.Count)
		}
		b.WriteString("\n")
	}

	if len(r.Suggestions) > 0 {
		b.WriteString("**Learning-Based Suggestions:**\n\n")
		for i, s := range r.Suggestions {
			fmt.Fprintf(&b, "   **%d. %s** %s\n", i+1, s.Title, priorityMarker[s.Priority])
			fmt.Fprintf(&b, "      %s\n", s.Description)
			fmt.Fprintf(&b, "      *Action:* %s\n\n", s.Action)
		}
	}

	b.WriteString("**Recent Relevant Memories:**\n")
	for i, rec := range r.Samples[:min(shownSamples, len(r.Samples))] {
		fmt.Fprintf(&b, "   %d. %s...\n", i+1, memory.Truncate(rec.Text, sampleRunes))
	}

	return b.String()
}

// FormatNoMemories renders the empty learning state.
func FormatNoMemories(topic string) string {
	return fmt.Sprintf("No relevant memories found for query: '%s'", topic)
}

// FormatIssues renders past error_solutions records found for a problem
// description.
func FormatIssues(problem string, records []memory.Record) string {
	if len(records) == 0 {
		return fmt.Sprintf("No past issues found for: '%s'", problem)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Past Issues** matching '%s':\n\n", problem)
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, memory.Truncate(rec.Text, hintRunes))
		if !rec.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "   recorded %s\n", rec.CreatedAt.UTC().Format("2006-01-02 15:04"))
		}
	}
	return b.String()
}
