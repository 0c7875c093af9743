package fields

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPolicy is returned by PolicyByName for an unsupported name.
var ErrUnknownPolicy = errors.New("unknown merge policy")

// MergePolicy combines the fields accumulated so far with the next commit's.
// Implementations must not reorder entries that come from a single commit.
type MergePolicy interface {
	Merge(prev, next FieldSet) FieldSet
}

// AppendPolicy keeps the first title and concatenates prose fields so that
// nothing written in any commit is lost.
type AppendPolicy struct{}

// Merge implements MergePolicy.
func (AppendPolicy) Merge(prev, next FieldSet) FieldSet {
	return FieldSet{
		Title:     firstNonEmpty(prev.Title, next.Title),
		Summary:   appendParagraph(prev.Summary, next.Summary),
		TestPlan:  appendParagraph(prev.TestPlan, next.TestPlan),
		Reviewers: union(prev.Reviewers, next.Reviewers),
		CCs:       union(prev.CCs, next.CCs),
	}
}

// OverridePolicy lets the latest commit win for every non-empty scalar.
type OverridePolicy struct{}

// Merge implements MergePolicy.
func (OverridePolicy) Merge(prev, next FieldSet) FieldSet {
	return FieldSet{
		Title:     firstNonEmpty(next.Title, prev.Title),
		Summary:   firstNonEmpty(next.Summary, prev.Summary),
		TestPlan:  firstNonEmpty(next.TestPlan, prev.TestPlan),
		Reviewers: union(prev.Reviewers, next.Reviewers),
		CCs:       union(prev.CCs, next.CCs),
	}
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (MergePolicy, error) {
	switch name {
	case "", "append":
		return AppendPolicy{}, nil
	case "override":
		return OverridePolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Accumulator folds field sets in order. The zero value holds nothing and
// merges with AppendPolicy; use NewAccumulator to choose a policy.
type Accumulator struct {
	policy MergePolicy
	fields FieldSet
	filled bool
}

// NewAccumulator returns an empty accumulator using policy.
func NewAccumulator(policy MergePolicy) Accumulator {
	return Accumulator{policy: policy}
}

// Add returns the accumulator with next folded in. The first call installs
// next as-is.
func (a Accumulator) Add(next FieldSet) Accumulator {
	if !a.filled {
		a.fields = next.Total()
		a.filled = true
		return a
	}
	policy := a.policy
	if policy == nil {
		policy = AppendPolicy{}
	}
	a.fields = policy.Merge(a.fields, next).Total()
	return a
}

// Result returns the folded fields, or false if nothing was added.
func (a Accumulator) Result() (FieldSet, bool) {
	if !a.filled {
		return FieldSet{}, false
	}
	return a.fields.Total(), true
}

// Aggregate folds sets in order with policy.
func Aggregate(policy MergePolicy, sets ...FieldSet) (FieldSet, bool) {
	acc := NewAccumulator(policy)
	for _, fs := range sets {
		acc = acc.Add(fs)
	}
	return acc.Result()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func appendParagraph(prev, next string) string {
	switch {
	case strings.TrimSpace(next) == "":
		return prev
	case strings.TrimSpace(prev) == "":
		return next
	case containsParagraph(prev, next):
		return prev
	default:
		return prev + "\n\n" + next
	}
}

func containsParagraph(text, para string) bool {
	para = strings.TrimSpace(para)
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) == para {
			return true
		}
	}
	return false
}

func union(prev, next []string) []string {
	out := make([]string, 0, len(prev)+len(next))
	seen := make(map[string]bool, len(prev)+len(next))
	for _, list := range [][]string{prev, next} {
		for _, v := range list {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
