// Revbridge moves review metadata between git branches and Phabricator.
//
// It derives a revision's title, summary, test plan, reviewers and CCs from
// the commit messages of a branch, and writes the old and new sides of a
// review diff to disk, with deterministic exit codes suitable for scripts
// and git hooks.
//
// Usage:
//
//	revbridge fields origin/main feature      # derive revision fields
//	revbridge materialize --revision 42 --out-dir /tmp/D42
//	revbridge materialize --patch change.diff --out-dir /tmp/p
//	revbridge check-message .git/COMMIT_EDITMSG
//	revbridge hook install                    # check messages on commit
package main
