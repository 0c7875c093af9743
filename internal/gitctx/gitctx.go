package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dshills/revbridge/internal/revision"
)

// wholeFileContext is passed as -U so every hunk spans its whole file.
const wholeFileContext = 1 << 30

// Separators for git log --format; neither can appear in commit text git
// accepts.
const (
	fieldSep  = "\x00"
	recordSep = "\x1e"
)

// Repo runs git commands in a working tree. An empty Dir means the current
// directory.
type Repo struct {
	Dir string
}

// Open returns a Repo for dir after checking it is inside a git work tree.
func Open(ctx context.Context, dir string) (*Repo, error) {
	r := &Repo{Dir: dir}
	if _, err := r.git(ctx, "rev-parse", "--show-toplevel"); err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	return r, nil
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string `json:"root"`
	Head   string `json:"head"`
	Branch string `json:"branch"`
}

// Meta collects repository metadata from git.
func (r *Repo) Meta(ctx context.Context) (RepoMeta, error) {
	root, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	head, err := r.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		head = "" // new repo with no commits
	}
	branch, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = ""
	}
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// RangeCommits returns the commits reachable from branch but not from base,
// oldest first. An empty range returns an empty slice and no error.
func (r *Repo) RangeCommits(ctx context.Context, base, branch string) ([]revision.CommitRef, error) {
	format := strings.Join([]string{"%H", "%s", "%b", "%ce"}, "%x00") + "%x1e"
	out, err := r.git(ctx, "log", "--reverse", "--no-color", "--format="+format, base+".."+branch, "--")
	if err != nil {
		return nil, fmt.Errorf("git log %s..%s: %w", base, branch, err)
	}
	return parseLog(out)
}

func parseLog(out string) ([]revision.CommitRef, error) {
	commits := []revision.CommitRef{}
	for _, rec := range strings.Split(out, recordSep) {
		rec = strings.TrimLeft(rec, "\n")
		if rec == "" {
			continue
		}
		parts := strings.Split(rec, fieldSep)
		if len(parts) != 4 {
			return nil, fmt.Errorf("unexpected git log record %q", rec)
		}
		commits = append(commits, revision.CommitRef{
			Hash:      parts[0],
			Subject:   parts[1],
			Body:      strings.TrimRight(parts[2], "\n"),
			Committer: strings.TrimSpace(parts[3]),
		})
	}
	return commits, nil
}

// DiffOptions filters the files of a diff by glob. A file is kept when it
// matches some Include pattern (or Include is empty) and no Exclude pattern.
type DiffOptions struct {
	Include []string
	Exclude []string
}

// DiffResult holds a collected diff and the files it touches.
type DiffResult struct {
	Diff  string
	Files []string
	Range string
}

// RangeDiff returns the diff from the merge base of base and branch to
// branch, with enough context that each file is a single whole-file hunk.
func (r *Repo) RangeDiff(ctx context.Context, base, branch string, opts DiffOptions) (DiffResult, error) {
	diff, err := r.git(ctx, "diff", "--no-color", "--no-ext-diff", "--no-renames",
		fmt.Sprintf("-U%d", wholeFileContext), base+"..."+branch, "--")
	if err != nil {
		return DiffResult{}, fmt.Errorf("git diff %s...%s: %w", base, branch, err)
	}

	if len(opts.Include) > 0 || len(opts.Exclude) > 0 {
		diff = filterSections(diff, opts)
	}
	return DiffResult{
		Diff:  diff,
		Files: extractFiles(diff),
		Range: base + "..." + branch,
	}, nil
}

func extractFiles(diff string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, section := range splitDiffSections(diff) {
		f := extractPathFromSection(section)
		if f != "" && !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files
}

func filterSections(diff string, opts DiffOptions) string {
	var kept []string
	for _, section := range splitDiffSections(diff) {
		path := extractPathFromSection(section)
		if path == "" {
			kept = append(kept, section)
			continue
		}
		if len(opts.Include) > 0 && !MatchesAny(path, opts.Include) {
			continue
		}
		if MatchesAny(path, opts.Exclude) {
			continue
		}
		kept = append(kept, section)
	}
	return strings.Join(kept, "")
}

func splitDiffSections(diff string) []string {
	var sections []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, "diff --git ") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

// extractPathFromSection prefers the new path and falls back to the old one
// for deleted files.
func extractPathFromSection(section string) string {
	var oldPath string
	for _, line := range strings.Split(section, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ b/"):
			return strings.TrimPrefix(line, "+++ b/")
		case strings.HasPrefix(line, "--- a/"):
			oldPath = strings.TrimPrefix(line, "--- a/")
		case strings.HasPrefix(line, "@@"):
			return oldPath
		}
	}
	return oldPath
}

// MatchesAny returns true if the path matches any of the given glob patterns.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok && strings.HasPrefix(path, dir+"/") {
			return true
		}
		clean := strings.TrimPrefix(pattern, "**/")
		if clean != pattern {
			matched, err = filepath.Match(clean, filepath.Base(path))
			if err == nil && matched {
				return true
			}
			matched, err = filepath.Match(clean, path)
			if err == nil && matched {
				return true
			}
			if dir, ok := strings.CutSuffix(clean, "/**"); ok &&
				(strings.HasPrefix(path, dir+"/") || strings.Contains(path, "/"+dir+"/")) {
				return true
			}
		}
	}
	return false
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
