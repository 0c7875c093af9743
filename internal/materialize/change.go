package materialize

import "strings"

// FileChange is one file of a diff. An empty path means the file does not
// exist on that side.
type FileChange struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
	Hunks   []Hunk `json:"hunks"`
}

// Hunk is a contiguous block of a diff anchored at 1-based start lines.
type Hunk struct {
	OldStart int            `json:"oldStart"`
	NewStart int            `json:"newStart"`
	Lines    []PrefixedLine `json:"lines"`
}

// IsWholeFile reports whether the hunk describes an entire file.
func (h Hunk) IsWholeFile() bool {
	return h.OldStart == 1 && h.NewStart == 1
}

// PrefixedLine is one diff line: a one-character prefix (' ', '+' or '-')
// and the remaining text, which keeps its terminator when it had one.
type PrefixedLine struct {
	Prefix byte   `json:"prefix"`
	Text   string `json:"text"`
}

// ParseLine splits a raw diff line into prefix and text. An empty line has a
// zero prefix.
func ParseLine(raw string) PrefixedLine {
	if raw == "" || raw[0] == '\n' {
		return PrefixedLine{Text: raw}
	}
	return PrefixedLine{Prefix: raw[0], Text: raw[1:]}
}

// SplitCorpus splits a hunk's raw text into lines. A final line without a
// terminator is kept. A "\ No newline at end of file" marker strips the
// terminator from the line before it and is itself dropped.
func SplitCorpus(corpus string) []PrefixedLine {
	var out []PrefixedLine
	for _, raw := range strings.SplitAfter(corpus, "\n") {
		if raw == "" {
			continue
		}
		if raw[0] == '\\' {
			if n := len(out); n > 0 {
				out[n-1].Text = strings.TrimSuffix(out[n-1].Text, "\n")
			}
			continue
		}
		out = append(out, ParseLine(raw))
	}
	return out
}
