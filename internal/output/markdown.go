package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dshills/revbridge/internal/fields"
)

// MarkdownWriter outputs a report suitable for pasting into a review
// comment.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	ew.printf("## revbridge %s\n\n", report.Command)
	if report.Range != "" {
		ew.printf("Range: `%s`\n\n", report.Range)
	}

	switch {
	case report.Revision != nil:
		rev := report.Revision
		ew.printf("**Author:** %s (`%s`)\n\n", rev.Author.Username, rev.AuthorEmail)
		ew.printf("| Commit | Result |\n")
		ew.printf("|--------|--------|\n")
		for _, c := range rev.Commits {
			ew.printf("| `%s` | %s |\n", shortHash(c.Hash), mdResult(c.Outcome))
		}
		ew.printf("\n<details>\n<summary>Message</summary>\n\n```\n%s\n```\n\n</details>\n\n",
			strings.TrimRight(rev.Message, "\n"))
		mdOutcome(ew, rev.Outcome)
	case report.Message != nil:
		ew.printf("Source: `%s`\n\n", report.Message.Source)
		mdFields(ew, report.Message.Outcome.Fields)
		mdOutcome(ew, report.Message.Outcome)
	case report.Materialized != nil:
		mat := report.Materialized
		ew.printf("Source: `%s` → `%s`\n\n", mat.Source, mat.Root)
		if len(mat.Files) > 0 {
			ew.printf("Diff touches %s.\n\n", plural(len(mat.Files), "file"))
		}
		if mat.Result != nil {
			ew.printf("| Side | Files |\n")
			ew.printf("|------|-------|\n")
			ew.printf("| old | %d |\n", len(mat.Result.Old))
			ew.printf("| new | %d |\n", len(mat.Result.New))
			ew.printf("| **Bytes** | **%s** |\n\n", humanize.Bytes(uint64(max(mat.Result.Bytes, 0))))
		}
		for _, e := range mat.Errors {
			ew.printf("- :x: %s\n", e)
		}
	}

	ew.printf("\n*Completed in %dms*\n", report.Timing.TotalMs)
	return ew.err
}

func mdFields(ew *errWriter, fs fields.FieldSet) {
	ew.printf("| Field | Value |\n")
	ew.printf("|-------|-------|\n")
	ew.printf("| Title | %s |\n", mdCell(fs.Title))
	ew.printf("| Summary | %s |\n", mdCell(fs.Summary))
	ew.printf("| Test Plan | %s |\n", mdCell(fs.TestPlan))
	ew.printf("| Reviewers | %s |\n", mdCell(strings.Join(fs.Reviewers, ", ")))
	ew.printf("| CCs | %s |\n\n", mdCell(strings.Join(fs.CCs, ", ")))
}

func mdOutcome(ew *errWriter, o fields.ParseOutcome) {
	if o.OK() {
		ew.println("No problems found. :white_check_mark:")
		return
	}
	ew.printf("**%s:**\n\n", plural(len(o.Errors), "problem"))
	for _, p := range outcomeProblems(o) {
		ew.printf("- :x: %s\n", p)
	}
}

func mdResult(o fields.ParseOutcome) string {
	if o.OK() {
		return ":white_check_mark:"
	}
	return fmt.Sprintf(":x: %s", strings.Join(outcomeProblems(o), "; "))
}

// mdCell keeps a value on one table row.
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", "<br>")
}
