package message

import (
	"context"
	"regexp"
	"strings"

	"github.com/dshills/revbridge/internal/fields"
	"github.com/dshills/revbridge/internal/users"
)

const missingTitleMessage = "Invalid or missing field 'Title': You must provide a title."

// UserIndex finds registered users by name.
type UserIndex interface {
	ByUsername(name string) (users.Identity, bool)
}

// Parser parses commit messages locally, reporting problems with the same
// raw wording the review service uses.
type Parser struct {
	Users UserIndex
	// AllowEmptyTestPlan suppresses the missing test plan error.
	AllowEmptyTestPlan bool
}

// NewParser returns a parser that resolves reviewer names through idx.
func NewParser(idx UserIndex) *Parser {
	return &Parser{Users: idx}
}

type field int

const (
	fieldNone field = iota
	fieldSummary
	fieldTestPlan
	fieldReviewers
	fieldCCs
	fieldIgnored
)

var labelRe = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*?)\s*:\s*(.*)$`)

var labels = map[string]field{
	"summary":               fieldSummary,
	"testplan":              fieldTestPlan,
	"reviewer":              fieldReviewers,
	"reviewers":             fieldReviewers,
	"cc":                    fieldCCs,
	"ccs":                   fieldCCs,
	"differentialrevision":  fieldIgnored,
	"reviewedby":            fieldIgnored,
	"maniphesttasks":        fieldIgnored,
	"subscribers":           fieldCCs,
	"blamerevision":         fieldIgnored,
	"revertplan":            fieldIgnored,
	"conflicts":             fieldIgnored,
	"differentialrevisions": fieldIgnored,
}

// ParseCommitMessage parses corpus into fields. It never returns an error;
// the signature matches the remote parser.
func (p *Parser) ParseCommitMessage(_ context.Context, corpus string) (fields.ParseOutcome, error) {
	sections := map[field][]string{}
	var title string
	current := fieldSummary

	lines := strings.Split(strings.ReplaceAll(corpus, "\r\n", "\n"), "\n")
	i := 0
	for ; i < len(lines); i++ {
		if t := strings.TrimSpace(lines[i]); t != "" {
			title = t
			i++
			break
		}
	}
	for ; i < len(lines); i++ {
		line := lines[i]
		if f, rest, ok := matchLabel(line); ok {
			current = f
			if rest != "" {
				sections[current] = append(sections[current], rest)
			}
			continue
		}
		sections[current] = append(sections[current], line)
	}

	fs := fields.FieldSet{
		Title:    title,
		Summary:  joinSection(sections[fieldSummary]),
		TestPlan: joinSection(sections[fieldTestPlan]),
	}

	var raw []string
	if title == "" {
		raw = append(raw, missingTitleMessage)
	}
	if fs.TestPlan == "" && !p.AllowEmptyTestPlan {
		raw = append(raw, fields.RawError(fields.NoTestPlan{}))
	}

	reviewers, unknown := p.resolve(splitNames(sections[fieldReviewers]))
	if len(unknown) > 0 {
		raw = append(raw, fields.RawError(fields.UnknownReviewer{Names: unknown}))
	}
	ccs, unknownCCs := p.resolve(splitNames(sections[fieldCCs]))
	if len(unknownCCs) > 0 {
		raw = append(raw, "Error parsing field 'CC': Commit message references nonexistent users: "+
			strings.Join(unknownCCs, ", ")+".")
	}
	fs.Reviewers = reviewers
	fs.CCs = ccs

	return fields.ParseOutcome{Fields: fs.Total(), Errors: fields.ParseErrors(raw)}, nil
}

func (p *Parser) resolve(names []string) (phids, unknown []string) {
	seen := map[string]bool{}
	for _, n := range names {
		var id users.Identity
		ok := false
		if p.Users != nil {
			id, ok = p.Users.ByUsername(n)
		}
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		if !seen[id.PHID] {
			seen[id.PHID] = true
			phids = append(phids, id.PHID)
		}
	}
	return phids, unknown
}

func matchLabel(line string) (field, string, bool) {
	m := labelRe.FindStringSubmatch(line)
	if m == nil {
		return fieldNone, "", false
	}
	key := strings.ToLower(strings.ReplaceAll(m[1], " ", ""))
	f, ok := labels[key]
	if !ok {
		return fieldNone, "", false
	}
	return f, strings.TrimSpace(m[2]), true
}

func joinSection(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func splitNames(lines []string) []string {
	var names []string
	for _, l := range lines {
		for _, n := range strings.FieldsFunc(l, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			n = strings.TrimPrefix(n, "@")
			if n != "" {
				names = append(names, n)
			}
		}
	}
	return names
}
