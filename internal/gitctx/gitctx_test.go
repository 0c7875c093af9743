package gitctx

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/revbridge/internal/materialize"
)

func TestExtractFiles(t *testing.T) {
	diff := `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
+import "fmt"
diff --git a/util.go b/util.go
--- a/util.go
+++ /dev/null
@@ -1 +0,0 @@
-func helper() {}
`
	files := extractFiles(diff)
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0] != "main.go" {
		t.Errorf("files[0] = %q, want %q", files[0], "main.go")
	}
	if files[1] != "util.go" {
		t.Errorf("files[1] = %q, want %q (deleted file keeps its old path)", files[1], "util.go")
	}
}

func TestExtractFiles_Empty(t *testing.T) {
	if files := extractFiles(""); len(files) != 0 {
		t.Errorf("got %d files from empty diff, want 0", len(files))
	}
}

func TestFilterSections_Exclude(t *testing.T) {
	diff := `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
+import "fmt"
diff --git a/vendor/lib.go b/vendor/lib.go
--- a/vendor/lib.go
+++ b/vendor/lib.go
@@ -1,3 +1,4 @@
+package lib
`
	result := filterSections(diff, DiffOptions{Exclude: []string{"vendor/**"}})
	if strings.Contains(result, "vendor/lib.go") {
		t.Error("vendor/lib.go should be excluded")
	}
	if !strings.Contains(result, "main.go") {
		t.Error("main.go should be kept")
	}
}

func TestFilterSections_IncludeThenExclude(t *testing.T) {
	diff := `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1 +1 @@
-a
+b
diff --git a/docs/readme.md b/docs/readme.md
--- a/docs/readme.md
+++ b/docs/readme.md
@@ -1 +1 @@
-a
+b
diff --git a/gen.go b/gen.go
--- a/gen.go
+++ b/gen.go
@@ -1 +1 @@
-a
+b
`
	result := filterSections(diff, DiffOptions{Include: []string{"*.go"}, Exclude: []string{"gen.go"}})
	if files := extractFiles(result); strings.Join(files, ",") != "main.go" {
		t.Errorf("files = %v, want [main.go]", files)
	}
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"vendor/lib.go", []string{"vendor/**"}, true},
		{"vendor/a/b/lib.go", []string{"vendor/**"}, true},
		{"main.go", []string{"vendor/**"}, false},
		{"foo.gen.go", []string{"**/*.gen.go"}, true},
		{"pkg/foo.gen.go", []string{"**/*.gen.go"}, true},
		{"dist/bundle.js", []string{"**/dist/**"}, true},
		{"web/dist/bundle.js", []string{"**/dist/**"}, true},
		{"main.go", []string{"*.go"}, true},
		{"main.go", nil, false},
	}
	for _, tt := range tests {
		got := MatchesAny(tt.path, tt.patterns)
		if got != tt.want {
			t.Errorf("MatchesAny(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
		}
	}
}

func TestSplitDiffSections(t *testing.T) {
	diff := `diff --git a/a.go b/a.go
--- a/a.go
+++ b/a.go
@@ -1,3 +1,4 @@
+line1
diff --git a/b.go b/b.go
--- a/b.go
+++ b/b.go
@@ -1,3 +1,4 @@
+line2
`
	sections := splitDiffSections(diff)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if !strings.Contains(sections[0], "a.go") || strings.Contains(sections[0], "b.go") {
		t.Errorf("section 0 = %q", sections[0])
	}
	if strings.Join(sections, "") != diff {
		t.Error("sections should concatenate back to the input")
	}
}

func TestExtractPathFromSection_NoPath(t *testing.T) {
	if got := extractPathFromSection("no headers here\n"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestParseLog(t *testing.T) {
	out := "abc\x00Subject one\x00Body line\n\x00a@example.com\x1e\n" +
		"def\x00Subject two\x00\x00b@example.com\x1e\n"
	commits, err := parseLog(out)
	if err != nil {
		t.Fatalf("parseLog error: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}
	if commits[0].Body != "Body line" {
		t.Errorf("Body = %q", commits[0].Body)
	}
	if commits[1].Hash != "def" || commits[1].Committer != "b@example.com" || commits[1].Body != "" {
		t.Errorf("commits[1] = %+v", commits[1])
	}
}

func TestParseLog_Malformed(t *testing.T) {
	if _, err := parseLog("abc\x00only two\x1e"); err == nil {
		t.Error("expected error for malformed record")
	}
}

// setupTestRepo creates a temp git repo on branch main with one commit.
func setupTestRepo(t *testing.T) (string, func(args ...string) string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()

	run := func(args ...string) string {
		t.Helper()
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=author@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=committer@test.com",
			"GIT_CONFIG_GLOBAL=/dev/null",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("command %v failed: %v\n%s", args, err, out)
		}
		return strings.TrimSpace(string(out))
	}

	run("git", "init", "-q")
	run("git", "checkout", "-q", "-b", "main")

	writeFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, dir, "gone.txt", "bye\n")
	writeFile(t, dir, "vendor/lib.go", "package vendor\n")
	run("git", "add", "-A")
	run("git", "commit", "-q", "-m", "init")

	return dir, run
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	if _, err := Open(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error outside a git repository")
	}
}

func TestMeta(t *testing.T) {
	dir, run := setupTestRepo(t)
	repo, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	meta, err := repo.Meta(context.Background())
	if err != nil {
		t.Fatalf("Meta error: %v", err)
	}
	if meta.Branch != "main" {
		t.Errorf("Branch = %q, want main", meta.Branch)
	}
	if meta.Head != run("git", "rev-parse", "HEAD") {
		t.Errorf("Head = %q", meta.Head)
	}
}

func TestRangeCommits(t *testing.T) {
	dir, run := setupTestRepo(t)
	run("git", "checkout", "-q", "-b", "feature")

	writeFile(t, dir, "a.go", "package main\n")
	run("git", "add", "a.go")
	run("git", "commit", "-q", "-m", "add a.go", "-m", "Test Plan: built it")

	writeFile(t, dir, "b.go", "package main\n")
	run("git", "add", "b.go")
	run("git", "commit", "-q", "-m", "add b.go")

	repo := &Repo{Dir: dir}
	commits, err := repo.RangeCommits(context.Background(), "main", "feature")
	if err != nil {
		t.Fatalf("RangeCommits error: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}

	// Oldest first
	if commits[0].Subject != "add a.go" || commits[1].Subject != "add b.go" {
		t.Errorf("subjects = %q, %q", commits[0].Subject, commits[1].Subject)
	}
	if commits[0].Body != "Test Plan: built it" {
		t.Errorf("Body = %q", commits[0].Body)
	}
	if commits[0].Committer != "committer@test.com" {
		t.Errorf("Committer = %q", commits[0].Committer)
	}
	if len(commits[0].Hash) != 40 {
		t.Errorf("Hash length = %d, want 40", len(commits[0].Hash))
	}
}

func TestRangeCommits_EmptyRange(t *testing.T) {
	dir, _ := setupTestRepo(t)
	commits, err := (&Repo{Dir: dir}).RangeCommits(context.Background(), "main", "main")
	if err != nil {
		t.Fatalf("RangeCommits error: %v", err)
	}
	if commits == nil || len(commits) != 0 {
		t.Errorf("got %v for empty range, want empty non-nil slice", commits)
	}
}

func TestRangeCommits_UnknownRef(t *testing.T) {
	dir, _ := setupTestRepo(t)
	if _, err := (&Repo{Dir: dir}).RangeCommits(context.Background(), "main", "nope"); err == nil {
		t.Error("expected error for unknown ref")
	}
}

func TestRangeDiff_WholeFileHunks(t *testing.T) {
	dir, run := setupTestRepo(t)
	run("git", "checkout", "-q", "-b", "feature")

	lines := make([]string, 0, 40)
	for i := range 40 {
		lines = append(lines, "line "+strings.Repeat("x", i%5))
	}
	writeFile(t, dir, "long.txt", strings.Join(lines, "\n")+"\n")
	run("git", "add", "long.txt")
	run("git", "commit", "-q", "-m", "add long")
	run("git", "checkout", "-q", "main")
	run("git", "merge", "-q", "feature")
	run("git", "checkout", "-q", "feature")

	lines[0], lines[39] = "first changed", "last changed"
	writeFile(t, dir, "long.txt", strings.Join(lines, "\n")+"\n")
	writeFile(t, dir, "vendor/lib.go", "package vendor // changed\n")
	writeFile(t, dir, "new.txt", "hello\n")
	run("git", "rm", "-q", "gone.txt")
	run("git", "add", "-A")
	run("git", "commit", "-q", "-m", "edit")

	res, err := (&Repo{Dir: dir}).RangeDiff(context.Background(), "main", "feature",
		DiffOptions{Exclude: []string{"vendor/**"}})
	if err != nil {
		t.Fatalf("RangeDiff error: %v", err)
	}
	if want := []string{"gone.txt", "long.txt", "new.txt"}; strings.Join(res.Files, ",") != strings.Join(want, ",") {
		t.Errorf("Files = %v, want %v", res.Files, want)
	}
	if res.Range != "main...feature" {
		t.Errorf("Range = %q, want main...feature", res.Range)
	}

	only, err := (&Repo{Dir: dir}).RangeDiff(context.Background(), "main", "feature",
		DiffOptions{Include: []string{"*.txt"}, Exclude: []string{"gone.txt"}})
	if err != nil {
		t.Fatalf("RangeDiff with include error: %v", err)
	}
	if want := "long.txt,new.txt"; strings.Join(only.Files, ",") != want {
		t.Errorf("included Files = %v, want %s", only.Files, want)
	}

	changes, err := materialize.ParseUnified(strings.NewReader(res.Diff))
	if err != nil {
		t.Fatalf("ParseUnified error: %v", err)
	}
	for _, c := range changes {
		if len(c.Hunks) != 1 || !c.Hunks[0].IsWholeFile() {
			t.Errorf("%s/%s: hunks = %d, want one whole-file hunk", c.OldPath, c.NewPath, len(c.Hunks))
		}
	}

	out := t.TempDir()
	if _, err := (&materialize.Materializer{}).Write(changes, out); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "new", "long.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != strings.Join(lines, "\n")+"\n" {
		t.Errorf("materialized long.txt differs from the branch version")
	}
}
