package output

import (
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/dshills/revbridge/internal/fields"
)

const rule = 60

// TextWriter outputs a human-readable text report.
type TextWriter struct {
	Color bool
}

type palette struct {
	ok, bad, head, dim func(a ...any) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		ok:   mk(color.FgGreen),
		bad:  mk(color.FgRed, color.Bold),
		head: mk(color.Bold),
		dim:  mk(color.Faint),
	}
}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}
	p := newPalette(t.Color)

	ew.printf("%s\n", p.head("revbridge "+report.Command))
	if report.Range != "" {
		ew.printf("Range: %s\n", report.Range)
	}
	if report.Repo != nil {
		ew.printf("Repository: %s (branch: %s)\n", report.Repo.Root, report.Repo.Branch)
	}
	ew.println(strings.Repeat("─", rule))

	switch {
	case report.Revision != nil:
		t.writeRevision(ew, p, report)
	case report.Message != nil:
		ew.printf("Source: %s\n", report.Message.Source)
		writeFields(ew, report.Message.Outcome.Fields)
		writeOutcome(ew, p, report.Message.Outcome)
	case report.Materialized != nil:
		writeMaterialized(ew, p, report.Materialized)
	}

	ew.printf("\n%s\n", p.dim("Completed in "+humanizeMs(report.Timing.TotalMs)))
	return ew.err
}

func (t *TextWriter) writeRevision(ew *errWriter, p palette, report *Report) {
	rev := report.Revision
	ew.printf("Author: %s <%s> %s\n", rev.Author.Username, rev.AuthorEmail, p.dim(rev.Author.PHID))
	ew.printf("Commits: %d\n", len(rev.Commits))
	for _, c := range rev.Commits {
		status := p.ok("ok")
		if !c.Outcome.OK() {
			status = p.bad(strings.Join(outcomeProblems(c.Outcome), "; "))
		}
		ew.printf("  %s  %s\n", shortHash(c.Hash), status)
	}
	ew.println(strings.Repeat("─", rule))
	ew.println("Message:")
	for _, line := range strings.Split(strings.TrimRight(rev.Message, "\n"), "\n") {
		ew.printf("  %s\n", line)
	}
	ew.println(strings.Repeat("─", rule))
	writeOutcome(ew, p, rev.Outcome)
}

func writeFields(ew *errWriter, fs fields.FieldSet) {
	ew.printf("Title: %s\n", fs.Title)
	if fs.Summary != "" {
		ew.printf("Summary: %s\n", firstLine(fs.Summary))
	}
	if fs.TestPlan != "" {
		ew.printf("Test Plan: %s\n", firstLine(fs.TestPlan))
	}
	if len(fs.Reviewers) > 0 {
		ew.printf("Reviewers: %s\n", strings.Join(fs.Reviewers, ", "))
	}
	if len(fs.CCs) > 0 {
		ew.printf("CCs: %s\n", strings.Join(fs.CCs, ", "))
	}
}

func writeOutcome(ew *errWriter, p palette, o fields.ParseOutcome) {
	if o.OK() {
		ew.printf("Result: %s\n", p.ok("OK"))
		return
	}
	ew.printf("Result: %s\n", p.bad(plural(len(o.Errors), "problem")))
	for _, problem := range outcomeProblems(o) {
		ew.printf("  [!] %s\n", problem)
	}
}

func writeMaterialized(ew *errWriter, p palette, m *Materialized) {
	ew.printf("Source: %s\n", m.Source)
	ew.printf("Output: %s\n", m.Root)
	if len(m.Files) > 0 {
		ew.printf("Diff: %s\n", plural(len(m.Files), "file"))
	}
	if m.Result != nil {
		ew.printf("Files: %d old, %d new (%s)\n", len(m.Result.Old), len(m.Result.New),
			humanize.Bytes(uint64(max(m.Result.Bytes, 0))))
		for _, f := range m.Result.Old {
			ew.printf("  old/%s\n", f)
		}
		for _, f := range m.Result.New {
			ew.printf("  new/%s\n", f)
		}
	}
	if len(m.Errors) > 0 {
		ew.printf("%s\n", p.bad(plural(len(m.Errors), "error")))
		for _, e := range m.Errors {
			ew.printf("  [!] %s\n", e)
		}
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func firstLine(s string) string {
	line, rest, _ := strings.Cut(s, "\n")
	if rest != "" {
		return line + " ..."
	}
	return line
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

func humanizeMs(ms int64) string {
	return humanize.Comma(ms) + "ms"
}
