// Package message renders revision fields as commit message text and parses
// that text back without a round trip to the review service.
//
// The grammar is the one Differential accepts: a title line, then labelled
// sections. Text between the title and the first label is the summary.
//
//	Add retry to the fetcher
//
//	Summary:
//	Wraps calls in exponential back-off.
//
//	Test Plan:
//	go test ./...
//
//	Reviewers: alice, bob
//
//	CC: carol
package message

import (
	"strings"

	"github.com/dshills/revbridge/internal/fields"
)

// Section labels, as rendered.
const (
	labelSummary   = "Summary"
	labelTestPlan  = "Test Plan"
	labelReviewers = "Reviewers"
	labelCC        = "CC"
)

// Composer renders field sets as commit message text.
type Composer struct{}

// Compose renders fs with the given reviewer and cc user names. The output is
// accepted by both Parser and the review service's own parser.
func (Composer) Compose(fs fields.FieldSet, reviewers, ccs []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(fs.Title))
	b.WriteString("\n\n")

	if summary := strings.TrimSpace(fs.Summary); summary != "" {
		b.WriteString(labelSummary + ":\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	b.WriteString(labelTestPlan + ":\n")
	if plan := strings.TrimSpace(fs.TestPlan); plan != "" {
		b.WriteString(plan)
		b.WriteString("\n")
	}

	if len(reviewers) > 0 {
		b.WriteString("\n" + labelReviewers + ": ")
		b.WriteString(strings.Join(reviewers, ", "))
		b.WriteString("\n")
	}
	if len(ccs) > 0 {
		b.WriteString("\n" + labelCC + ": ")
		b.WriteString(strings.Join(ccs, ", "))
		b.WriteString("\n")
	}
	return b.String()
}
