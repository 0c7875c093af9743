package materialize

import (
	"fmt"
	"io"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// ParseUnified reads a git-style unified diff into file changes. Binary files
// are returned without hunks. A side with no lines (a pure add or delete) is
// anchored at line 1 and has its path cleared.
func ParseUnified(r io.Reader) ([]FileChange, error) {
	files, _, err := gitdiff.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	changes := make([]FileChange, 0, len(files))
	for _, f := range files {
		c := FileChange{OldPath: f.OldName, NewPath: f.NewName}
		if f.IsNew {
			c.OldPath = ""
		}
		if f.IsDelete {
			c.NewPath = ""
		}
		if !f.IsBinary {
			for _, frag := range f.TextFragments {
				c.Hunks = append(c.Hunks, fromFragment(frag))
			}
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func fromFragment(frag *gitdiff.TextFragment) Hunk {
	h := Hunk{
		OldStart: anchor(frag.OldPosition, frag.OldLines),
		NewStart: anchor(frag.NewPosition, frag.NewLines),
		Lines:    make([]PrefixedLine, 0, len(frag.Lines)),
	}
	for _, l := range frag.Lines {
		h.Lines = append(h.Lines, PrefixedLine{Prefix: opPrefix(l.Op), Text: l.Line})
	}
	return h
}

// anchor maps git's "-0,0" header for an empty side onto line 1.
func anchor(pos, lines int64) int {
	if pos == 0 && lines == 0 {
		return 1
	}
	return int(pos)
}

func opPrefix(op gitdiff.LineOp) byte {
	switch op {
	case gitdiff.OpAdd:
		return '+'
	case gitdiff.OpDelete:
		return '-'
	default:
		return ' '
	}
}
