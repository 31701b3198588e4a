// Package safety decides whether a user-supplied SQL string may reach the
// database and normalizes accepted queries with a row bound.
package safety

import (
	"fmt"
	"regexp"
)

// Rule identifies which check produced a verdict.
type Rule string

const (
	RuleNone        Rule = ""
	RuleDestructive Rule = "destructive_verb"
	RuleInjection   Rule = "injection_signature"
)

// Verdict is the result of validating a query.
type Verdict struct {
	Safe   bool
	Reason string
	Rule   Rule
}

// destructiveVerbs are checked in this order; the first whole-word match wins.
var destructiveVerbs = []string{"drop", "delete", "update", "insert", "alter", "create", "truncate"}

type verbPattern struct {
	verb string
	re   *regexp.Regexp
}

// RE2 counts '_' as a word character, so update_history never matches \bupdate\b.
var verbPatterns = func() []verbPattern {
	ps := make([]verbPattern, 0, len(destructiveVerbs))
	for _, v := range destructiveVerbs {
		ps = append(ps, verbPattern{verb: v, re: regexp.MustCompile(`(?i)\b` + v + `\b`)})
	}
	return ps
}()

type injectionSignature struct {
	name string
	re   *regexp.Regexp
}

var injectionSignatures = []injectionSignature{
	{name: "stacked drop table", re: regexp.MustCompile(`(?i);\s*drop\s+table`)},
	{name: "union select from information_schema", re: regexp.MustCompile(`(?is)union\s+select.*from\s+information_schema`)},
	{name: "procedural exec call", re: regexp.MustCompile(`(?i)\bexec(ute)?\s*\(`)},
	{name: "sp_executesql", re: regexp.MustCompile(`(?i)\bsp_executesql\b`)},
}

// Validate checks the query text against the destructive-verb denylist and
// the injection signatures. It never touches the database.
func Validate(text string) Verdict {
	for _, p := range verbPatterns {
		if p.re.MatchString(text) {
			return Verdict{
				Safe:   false,
				Reason: fmt.Sprintf("Destructive operation '%s' not allowed", p.verb),
				Rule:   RuleDestructive,
			}
		}
	}

	for _, sig := range injectionSignatures {
		if sig.re.MatchString(text) {
			return Verdict{
				Safe:   false,
				Reason: fmt.Sprintf("Potential SQL injection pattern detected (%s)", sig.name),
				Rule:   RuleInjection,
			}
		}
	}

	return Verdict{Safe: true, Reason: "Query passed safety checks", Rule: RuleNone}
}
