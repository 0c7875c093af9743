// Package materialize reconstructs the pre-image and post-image of a diff as
// two file trees on disk.
//
// Only whole-file diffs can be reconstructed: every file must carry exactly
// one hunk anchored at line 1 on both sides. Paths are validated before any
// filesystem call and all writes go through an [os.Root], so nothing is ever
// written outside the destination.
package materialize

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Side selects the pre-image (old) or post-image (new) of a diff.
type Side int

const (
	SideOld Side = iota
	SideNew
)

func (s Side) String() string {
	if s == SideOld {
		return "old"
	}
	return "new"
}

// exclude is the prefix of lines that do not exist on this side.
func (s Side) exclude() byte {
	if s == SideOld {
		return '+'
	}
	return '-'
}

// Materializer writes old/ and new/ trees for a list of file changes.
type Materializer struct {
	// Workers bounds concurrent file writes. Values below 1 mean 1.
	Workers int
	// ContinueOnError writes every valid file and joins all failures instead
	// of stopping at the first.
	ContinueOnError bool
}

// Result lists the files written, relative to their side's root.
type Result struct {
	Old   []string `json:"old"`
	New   []string `json:"new"`
	Bytes int64    `json:"bytes"`
}

// Files returns the total number of files written.
func (r *Result) Files() int {
	return len(r.Old) + len(r.New)
}

type job struct {
	side Side
	path string // cleaned, OS-specific, relative
	hunk Hunk
}

// Write reconstructs changes under root/old and root/new.
func (m *Materializer) Write(changes []FileChange, root string) (*Result, error) {
	jobs, errs := plan(changes)
	if len(errs) > 0 && !m.ContinueOnError {
		return &Result{}, errs[0]
	}

	res := &Result{}
	if len(jobs) == 0 {
		return res, errors.Join(errs...)
	}

	roots := map[Side]*os.Root{}
	for _, side := range []Side{SideOld, SideNew} {
		r, err := openSide(root, side)
		if err != nil {
			return res, err
		}
		defer r.Close()
		roots[side] = r
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(1, m.Workers))
	for _, j := range jobs {
		g.Go(func() error {
			if !m.ContinueOnError && ctx.Err() != nil {
				return nil
			}
			n, err := writeFile(roots[j.side], j)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if m.ContinueOnError {
					errs = append(errs, err)
					return nil
				}
				return err
			}
			if j.side == SideOld {
				res.Old = append(res.Old, filepath.ToSlash(j.path))
			} else {
				res.New = append(res.New, filepath.ToSlash(j.path))
			}
			res.Bytes += n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append([]error{err}, errs...)
	}
	slices.Sort(res.Old)
	slices.Sort(res.New)
	return res, errors.Join(errs...)
}

// plan validates every change before anything touches the filesystem.
func plan(changes []FileChange) ([]job, []error) {
	var jobs []job
	var errs []error
	seen := map[Side]map[string]bool{SideOld: {}, SideNew: {}}
	for _, c := range changes {
		for _, side := range []Side{SideOld, SideNew} {
			p := c.OldPath
			if side == SideNew {
				p = c.NewPath
			}
			j, ok, err := validate(side, p, c.Hunks)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !ok {
				continue
			}
			if seen[side][j.path] {
				errs = append(errs, &StructuralViolation{Side: side, Path: p, Reason: "duplicate path"})
				continue
			}
			seen[side][j.path] = true
			jobs = append(jobs, j)
		}
	}
	return jobs, errs
}

// validate applies the structural and path checks for one side of a change.
// ok is false when there is nothing to write on this side.
func validate(side Side, p string, hunks []Hunk) (job, bool, error) {
	if p == "" || len(hunks) == 0 {
		return job{}, false, nil
	}
	if len(hunks) > 1 {
		return job{}, false, &StructuralViolation{Side: side, Path: p, Reason: "partial file"}
	}
	h := hunks[0]
	if !h.IsWholeFile() {
		reason := fmt.Sprintf("partial file, old offset %d", h.OldStart)
		if h.NewStart != 1 {
			reason = fmt.Sprintf("partial file, new offset %d", h.NewStart)
		}
		return job{}, false, &StructuralViolation{Side: side, Path: p, Reason: reason}
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return job{}, false, &PathSafetyViolation{Side: side, Path: p, Reason: "refusing abs path"}
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == "." {
		return job{}, false, &PathSafetyViolation{Side: side, Path: p, Reason: "refusing path that names the root"}
	}
	if !filepath.IsLocal(clean) {
		return job{}, false, &PathSafetyViolation{Side: side, Path: p, Reason: "refusing path outside root"}
	}
	return job{side: side, path: clean, hunk: h}, true, nil
}

func openSide(root string, side Side) (*os.Root, error) {
	dir := filepath.Join(root, side.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriteDiffError{Side: side, Path: dir, Err: err}
	}
	r, err := os.OpenRoot(dir)
	if err != nil {
		return nil, &WriteDiffError{Side: side, Path: dir, Err: err}
	}
	return r, nil
}

// writeFile writes one side of a hunk to a temporary sibling and renames it
// into place, so a failure never leaves a partial file at j.path.
func writeFile(root *os.Root, j job) (int64, error) {
	fail := func(err error) (int64, error) {
		return 0, &WriteDiffError{Side: j.side, Path: filepath.ToSlash(j.path), Err: err}
	}

	if dir := filepath.Dir(j.path); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return fail(err)
		}
	}

	tmp := filepath.Join(filepath.Dir(j.path), fmt.Sprintf(".rb-%016x.tmp", rand.Uint64()))
	f, err := root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fail(err)
	}

	n, err := writeLines(f, j.hunk.Lines, j.side.exclude())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = root.Rename(tmp, j.path)
	}
	if err != nil {
		_ = root.Remove(tmp)
		return fail(err)
	}
	return n, nil
}

func writeLines(f *os.File, lines []PrefixedLine, exclude byte) (int64, error) {
	w := bufio.NewWriter(f)
	var n int64
	for _, l := range lines {
		if l.Prefix == exclude {
			continue
		}
		c, err := w.WriteString(l.Text)
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, w.Flush()
}
