package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/revbridge/internal/conduit"
	"github.com/dshills/revbridge/internal/gitctx"
	"github.com/dshills/revbridge/internal/materialize"
	"github.com/dshills/revbridge/internal/output"
)

var (
	flagRevision        int
	flagDiffID          int
	flagRange           string
	flagPatch           string
	flagOutDir          string
	flagInclude         string
	flagExclude         string
	flagWorkers         int
	flagContinueOnError bool
)

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Write the old and new sides of a diff to disk",
	Long: "Fetch a diff and reconstruct both sides of every file under " +
		"<out>/old and <out>/new. Every hunk must cover its whole file.\n\n" +
		"Exactly one source is required: --revision, --diff-id, --range or --patch.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := materializeSource()
		if err != nil {
			return err
		}
		if flagOutDir == "" {
			return errors.New("--out-dir is required")
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		runMaterialize(ctx, cmd.InOrStdin(), source)
		return nil
	},
}

// materializeSource names the single selected diff source.
func materializeSource() (string, error) {
	var sources []string
	if flagRevision > 0 {
		sources = append(sources, fmt.Sprintf("D%d", flagRevision))
	}
	if flagDiffID > 0 {
		sources = append(sources, fmt.Sprintf("diff %d", flagDiffID))
	}
	if flagRange != "" {
		sources = append(sources, flagRange)
	}
	if flagPatch != "" {
		sources = append(sources, flagPatch)
	}
	if len(sources) != 1 {
		return "", errors.New("exactly one of --revision, --diff-id, --range or --patch is required")
	}
	return sources[0], nil
}

func runMaterialize(ctx context.Context, stdin io.Reader, source string) {
	start := time.Now()
	a, err := newApp()
	if err != nil {
		fail(err)
		return
	}

	src, err := a.fetchChanges(ctx, stdin)
	if err != nil {
		fail(err)
		return
	}
	a.logger.Debug("fetched diff", "source", source, "files", len(src.files))

	m := &materialize.Materializer{
		Workers:         a.cfg.Materialize.Workers,
		ContinueOnError: a.cfg.Materialize.ContinueOnError,
	}
	res, err := m.Write(src.changes, flagOutDir)
	if err != nil && !m.ContinueOnError {
		fail(err)
		return
	}

	report := &output.Report{
		Command: "materialize",
		Range:   src.rng,
		Materialized: &output.Materialized{
			Source: source,
			Root:   flagOutDir,
			Files:  src.files,
			Result: res,
			Errors: errorLines(err),
		},
	}
	a.emit(report, start)
}

// fetched is a diff ready to materialize. rng is set for local ranges only.
type fetched struct {
	changes []materialize.FileChange
	files   []string
	rng     string
}

func (a *app) fetchChanges(ctx context.Context, stdin io.Reader) (fetched, error) {
	switch {
	case flagPatch != "":
		r := stdin
		if flagPatch != "-" {
			f, err := os.Open(flagPatch)
			if err != nil {
				return fetched{}, fmt.Errorf("opening patch: %w", err)
			}
			defer f.Close()
			r = f
		}
		changes, err := materialize.ParseUnified(r)
		if err != nil {
			return fetched{}, err
		}
		return fetched{changes: changes, files: changedPaths(changes)}, nil

	case flagRange != "":
		base, branch, ok := strings.Cut(strings.Replace(flagRange, "...", "..", 1), "..")
		if !ok || base == "" || branch == "" {
			return fetched{}, &usageError{err: fmt.Errorf("--range must look like base..branch, got %q", flagRange)}
		}
		repo, err := gitctx.Open(ctx, flagRepo)
		if err != nil {
			return fetched{}, err
		}
		diff, err := repo.RangeDiff(ctx, base, branch, gitctx.DiffOptions{
			Include: splitComma(flagInclude),
			Exclude: splitComma(flagExclude),
		})
		if err != nil {
			return fetched{}, err
		}
		changes, err := materialize.ParseUnified(strings.NewReader(diff.Diff))
		if err != nil {
			return fetched{}, err
		}
		return fetched{changes: changes, files: diff.Files, rng: diff.Range}, nil
	}

	client, err := a.conduitClient()
	if err != nil {
		return fetched{}, err
	}
	var changes []materialize.FileChange
	err = conduit.Retry(ctx, a.cfg.Conduit.Retries, func() error {
		var err error
		if flagRevision > 0 {
			changes, err = client.GetRevisionDiff(ctx, flagRevision)
		} else {
			changes, err = client.GetDiff(ctx, flagDiffID)
		}
		return err
	})
	if err != nil {
		return fetched{}, err
	}
	return fetched{changes: changes, files: changedPaths(changes)}, nil
}

// changedPaths lists each change once, by new path or by old path when the
// file was removed.
func changedPaths(changes []materialize.FileChange) []string {
	files := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.NewPath != "" {
			files = append(files, c.NewPath)
		} else if c.OldPath != "" {
			files = append(files, c.OldPath)
		}
	}
	return files
}

// errorLines flattens a joined error into one line per failure.
func errorLines(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range joined.Unwrap() {
			lines = append(lines, errorLines(e)...)
		}
		return lines
	}
	return []string{err.Error()}
}

func init() {
	f := materializeCmd.Flags()
	f.IntVar(&flagRevision, "revision", 0, "Revision id (D<id>) whose latest diff to fetch")
	f.IntVar(&flagDiffID, "diff-id", 0, "Diff id to fetch")
	f.StringVar(&flagRange, "range", "", "Local range base..branch to diff against its merge base")
	f.StringVar(&flagPatch, "patch", "", "Unified diff file, or - for stdin")
	f.StringVar(&flagOutDir, "out-dir", "", "Directory to create old/ and new/ under")
	f.StringVar(&flagInclude, "include", "", "Only materialize file path globs for --range (comma-separated)")
	f.StringVar(&flagExclude, "exclude", "", "Exclude file path globs for --range (comma-separated)")
	f.IntVar(&flagWorkers, "workers", 0, "Parallel file writers")
	f.BoolVar(&flagContinueOnError, "continue-on-error", false, "Write every valid file and report all failures")
	f.StringVar(&flagRepo, "repo", "", "Repository directory for --range")
	f.StringVar(&flagConduitURI, "conduit-uri", "", "Phabricator base URI")
	f.BoolVar(&flagNoCache, "no-cache", false, "Bypass the Conduit response cache")
}
