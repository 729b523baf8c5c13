// Package parser turns raw Slack message text into typed graph diffs.
//
// Texts that carry the structured keyword markers ("project:" plus either
// "constraint:" or "depends_on:") are parsed against one of two grammars:
//
//	project: <id> constraint: <key>=<value> [type: DesignChoice|Requirement] why: <reason>
//	project: <id> depends_on: <other_id> why: <reason>
//
// Keywords are case-insensitive. Everything else is a plain message and only
// gets summary and hashtag-entity extraction.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dendrite/internal/graph"
)

// Templates surfaced back to the author when a structured attempt fails to
// parse.
const (
	ConstraintTemplate = "project: <project_id> constraint: <key>=<value> [type: DesignChoice|Requirement] why: <reason>"
	DependencyTemplate = "project: <project_id> depends_on: <other_project_id> why: <reason>"
)

// ParseError reports a structured attempt that did not match its grammar.
// Template carries the expected shape so it can be echoed to the author.
type ParseError struct {
	Template string
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (expected: %s)", e.Message, e.Template)
}

var (
	constraintRe = regexp.MustCompile(
		`(?i)^\s*project:\s*(\S+)\s+constraint:\s*([^=\s]+)\s*=\s*(.+?)\s+(?:type:\s*(\S+)\s+)?why:\s*(.+?)\s*$`)
	dependencyRe = regexp.MustCompile(
		`(?i)^\s*project:\s*(\S+)\s+depends_on:\s*(\S+)\s+why:\s*(.+?)\s*$`)
)

// IsStructuredAttempt reports whether the text looks like it intends a graph
// mutation. Only texts passing this pre-check ever reach Parse; everything
// else is treated as a plain, non-mutating message.
func IsStructuredAttempt(text string) bool {
	lower := strings.ToLower(normalize(text))
	if !strings.Contains(lower, "project:") {
		return false
	}
	return strings.Contains(lower, "constraint:") || strings.Contains(lower, "depends_on:")
}

// Parse converts a structured attempt into a typed diff. The grammar is
// chosen by marker: texts containing "depends_on:" use the dependency
// grammar, all others the constraint grammar. Any mismatch or empty reason
// fails with a *ParseError; a partial diff is never returned.
func Parse(text string) (graph.Diff, error) {
	text = normalize(text)
	if strings.Contains(strings.ToLower(text), "depends_on:") {
		return parseDependency(text)
	}
	return parseConstraint(text)
}

func parseConstraint(text string) (graph.Diff, error) {
	m := constraintRe.FindStringSubmatch(text)
	if m == nil {
		return graph.Diff{}, &ParseError{
			Template: ConstraintTemplate,
			Message:  "constraint update did not match the expected format",
		}
	}

	ctype := graph.TypeDesignChoice
	if m[4] != "" {
		parsed, ok := parseConstraintType(m[4])
		if !ok {
			return graph.Diff{}, &ParseError{
				Template: ConstraintTemplate,
				Message:  fmt.Sprintf("unknown constraint type %q", m[4]),
			}
		}
		ctype = parsed
	}

	reason := strings.TrimSpace(m[5])
	if reason == "" {
		return graph.Diff{}, &ParseError{
			Template: ConstraintTemplate,
			Message:  "constraint update requires a non-empty reason",
		}
	}

	return graph.Diff{Constraint: &graph.ConstraintUpsert{
		ProjectID: m[1],
		Key:       m[2],
		Value:     strings.TrimSpace(m[3]),
		Type:      ctype,
		Reason:    reason,
	}}, nil
}

func parseDependency(text string) (graph.Diff, error) {
	m := dependencyRe.FindStringSubmatch(text)
	if m == nil {
		return graph.Diff{}, &ParseError{
			Template: DependencyTemplate,
			Message:  "dependency update did not match the expected format",
		}
	}

	reason := strings.TrimSpace(m[3])
	if reason == "" {
		return graph.Diff{}, &ParseError{
			Template: DependencyTemplate,
			Message:  "dependency update requires a non-empty reason",
		}
	}

	return graph.Diff{Dependency: &graph.DependencyAdd{
		FromProjectID: m[1],
		ToProjectID:   m[2],
		Reason:        reason,
	}}, nil
}

func parseConstraintType(raw string) (graph.ConstraintType, bool) {
	for t := range graph.ValidConstraintTypes {
		if strings.EqualFold(raw, string(t)) {
			return t, true
		}
	}
	return "", false
}

// Plain is the non-mutating reading of a message: a short summary and any
// hashtag entities it mentions.
type Plain struct {
	Summary  string   `json:"summary"`
	Entities []string `json:"entities"`
}

const summaryLimit = 120

// ParsePlain extracts the summary and hashtag entities from free text.
func ParsePlain(text string) Plain {
	text = normalize(text)

	var entities []string
	for _, token := range strings.Fields(text) {
		if strings.HasPrefix(token, "#") {
			entities = append(entities, token)
		}
	}

	// Truncate on runes, not bytes, so a multi-byte character on the
	// boundary is never split into invalid UTF-8.
	summary := text
	if runes := []rune(summary); len(runes) > summaryLimit {
		summary = string(runes[:summaryLimit])
	}

	return Plain{
		Summary:  strings.TrimSpace(summary),
		Entities: entities,
	}
}

// normalize applies NFC so that visually identical keyword spellings compare
// equal regardless of how the chat client encoded them.
func normalize(text string) string {
	return norm.NFC.String(text)
}
