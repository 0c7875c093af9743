package output

import (
	"github.com/dshills/revbridge/internal/fields"
	"github.com/dshills/revbridge/internal/gitctx"
	"github.com/dshills/revbridge/internal/materialize"
	"github.com/dshills/revbridge/internal/revision"
)

// Report is the envelope every command renders. Exactly one of Revision,
// Message and Materialized is set.
type Report struct {
	Tool    string           `json:"tool"`
	Version string           `json:"version"`
	Command string           `json:"command"`
	Range   string           `json:"range,omitempty"`
	Repo    *gitctx.RepoMeta `json:"repo,omitempty"`

	Revision     *revision.Revision `json:"revision,omitempty"`
	Message      *MessageCheck      `json:"message,omitempty"`
	Materialized *Materialized      `json:"materialized,omitempty"`

	Timing Timing `json:"timing"`
}

// MessageCheck is the outcome of parsing a single commit message.
type MessageCheck struct {
	Source  string              `json:"source"`
	Outcome fields.ParseOutcome `json:"outcome"`
}

// Materialized describes a diff written to disk. Files lists the paths the
// source diff touches, before validation.
type Materialized struct {
	Source string              `json:"source"`
	Root   string              `json:"root"`
	Files  []string            `json:"files,omitempty"`
	Result *materialize.Result `json:"result"`
	Errors []string            `json:"errors,omitempty"`
}

// Timing records wall-clock durations in milliseconds.
type Timing struct {
	TotalMs int64 `json:"totalMs"`
}

// HasFindings reports whether the report carries parse errors or failed
// writes, which the CLI turns into a non-zero exit.
func (r *Report) HasFindings() bool {
	switch {
	case r.Revision != nil:
		return !r.Revision.Outcome.OK()
	case r.Message != nil:
		return !r.Message.Outcome.OK()
	case r.Materialized != nil:
		return len(r.Materialized.Errors) > 0
	}
	return false
}

func outcomeProblems(o fields.ParseOutcome) []string {
	problems := make([]string, len(o.Errors))
	for i, e := range o.Errors {
		problems[i] = e.String()
	}
	return problems
}
