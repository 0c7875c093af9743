package fields

import (
	"encoding/json"
)

// FieldSet is the structured description of a revision as the review service
// derives it from a commit message.
type FieldSet struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	TestPlan  string   `json:"testPlan"`
	Reviewers []string `json:"reviewerPHIDs"`
	CCs       []string `json:"ccPHIDs"`
}

// Total returns a copy of fs with every list field non-nil. Scalars are
// already total by virtue of the string zero value.
func (fs FieldSet) Total() FieldSet {
	out := fs
	out.Reviewers = cloneList(fs.Reviewers)
	out.CCs = cloneList(fs.CCs)
	return out
}

// ParseOutcome is the result of submitting free text to a field parser.
type ParseOutcome struct {
	Fields FieldSet     `json:"fields"`
	Errors []ParseError `json:"-"`
}

// OK reports whether the parse produced no errors.
func (p ParseOutcome) OK() bool {
	return len(p.Errors) == 0
}

// MarshalJSON encodes errors in the service's raw wording.
func (p ParseOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Fields FieldSet `json:"fields"`
		Errors []string `json:"errors"`
	}{p.Fields.Total(), p.RawErrors()})
}

// RawErrors renders the outcome's errors back into the service's wording.
func (p ParseOutcome) RawErrors() []string {
	out := make([]string, 0, len(p.Errors))
	for _, e := range p.Errors {
		out = append(out, RawError(e))
	}
	return out
}

func cloneList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
