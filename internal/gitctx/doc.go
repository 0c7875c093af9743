// Package gitctx reads commit ranges and diffs from a git repository by
// shelling out to git.
//
// [Repo.RangeCommits] lists the commits of base..branch oldest first and
// satisfies revision.CommitSource. [Repo.RangeDiff] produces a diff against
// the merge base in which every file is a single whole-file hunk, the shape
// the materializer accepts. Files can be filtered with include and exclude
// globs.
package gitctx
