package learning

import (
	"context"
	"fmt"

	"github.com/easeaico/sql-memory-agent/internal/logging"
	"github.com/easeaico/sql-memory-agent/internal/memory"
)

// Priority ranks a suggestion.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Suggestion is an actionable recommendation derived from an Analysis.
type Suggestion struct {
	Type        string
	Priority    Priority
	Title       string
	Description string
	Action      string
}

type rule struct {
	applies func(Analysis) bool
	build   func(Analysis) Suggestion
}

// rules are evaluated in order; earlier rules win when the list is capped.
var rules = []rule{
	{
		applies: func(a Analysis) bool { return a.HasErrorPattern(PatternConnection) },
		build: func(Analysis) Suggestion {
			return Suggestion{
				Type:        "error_prevention",
				Priority:    PriorityHigh,
				Title:       "Connection Reliability",
				Description: "Consider implementing connection pooling and retry logic",
				Action:      "Review database connection settings and add resilience measures",
			}
		},
	},
	{
		applies: func(a Analysis) bool { return a.HasErrorPattern(PatternTimeout) },
		build: func(Analysis) Suggestion {
			return Suggestion{
				Type:        "performance",
				Priority:    PriorityMedium,
				Title:       "Query Optimization",
				Description: "Multiple queries have timed out - review query complexity",
				Action:      "Add query complexity analysis and suggest LIMIT clauses",
			}
		},
	},
	{
		applies: func(a Analysis) bool { return a.HasErrorPattern(PatternSyntax) },
		build: func(Analysis) Suggestion {
			return Suggestion{
				Type:        "quality",
				Priority:    PriorityMedium,
				Title:       "Query Validation",
				Description: "Frequent syntax errors detected",
				Action:      "Implement better SQL validation and provide syntax examples",
			}
		},
	},
	{
		applies: func(a Analysis) bool { return a.HasErrorPattern(PatternPermission) },
		build: func(Analysis) Suggestion {
			return Suggestion{
				Type:        "security",
				Priority:    PriorityMedium,
				Title:       "Access Review",
				Description: "Permission or access errors detected",
				Action:      "Verify the analysis role has read access to the queried objects",
			}
		},
	},
	{
		applies: func(a Analysis) bool { return len(a.PerformanceInsights) > 0 },
		build: func(a Analysis) Suggestion {
			return Suggestion{
				Type:        "optimization",
				Priority:    PriorityMedium,
				Title:       "Performance Monitoring",
				Description: fmt.Sprintf("Found %d performance issues to address", len(a.PerformanceInsights)),
				Action:      "Review slow queries and suggest indexing strategies",
			}
		},
	},
	{
		applies: func(a Analysis) bool { return a.FastCount() >= 3 },
		build: func(a Analysis) Suggestion {
			return Suggestion{
				Type:        "best_practice",
				Priority:    PriorityLow,
				Title:       "Query Templates",
				Description: fmt.Sprintf("Identified %d efficient query patterns", a.FastCount()),
				Action:      "Create query templates based on successful patterns",
			}
		},
	},
	{
		applies: func(a Analysis) bool { return a.CategoryCount(memory.CategorySchemaInfo) >= 5 },
		build: func(Analysis) Suggestion {
			return Suggestion{
				Type:        "optimization",
				Priority:    PriorityLow,
				Title:       "Schema Caching",
				Description: "Frequent schema queries detected",
				Action:      "Implement schema information caching to improve performance",
			}
		},
	},
}

// Suggest evaluates the rule table against a and returns at most max
// suggestions. It has no side effects.
func Suggest(a Analysis, max int) []Suggestion {
	if max <= 0 {
		return []Suggestion{}
	}
	out := []Suggestion{}
	for _, r := range rules {
		if len(out) == max {
			break
		}
		if r.applies(a) {
			out = append(out, r.build(a))
		}
	}
	return out
}

// Engine produces suggestions and persists the high-priority ones.
type Engine struct {
	recorder *memory.Recorder
}

// NewEngine creates an Engine writing through recorder.
func NewEngine(recorder *memory.Recorder) *Engine {
	return &Engine{recorder: recorder}
}

// Suggest returns the capped suggestion list after recording every
// high-priority entry as a performance insight. Write failures are
// returned as advisories and never shorten the list.
func (e *Engine) Suggest(ctx context.Context, a Analysis, max int) ([]Suggestion, []error) {
	suggestions := Suggest(a, max)

	var advisories []error
	for _, s := range suggestions {
		if s.Priority != PriorityHigh {
			continue
		}
		text := fmt.Sprintf("High-priority suggestion: %s - %s", s.Title, s.Description)
		err := e.recorder.Record(ctx, text, memory.CategoryPerformanceInsights, memory.Metadata{
			"suggestion_type": s.Type,
			"priority":        string(s.Priority),
			"from_learning":   true,
		})
		if err != nil {
			advisories = append(advisories, fmt.Errorf("failed to record suggestion %q: %w", s.Title, err))
		}
	}

	logging.Info().
		Add(logging.Component("learning")).
		Add(logging.Count("suggestions", len(suggestions))).
		Msg("suggestions generated")

	return suggestions, advisories
}
