package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/revbridge/internal/gitctx"
	"github.com/dshills/revbridge/internal/output"
)

var (
	flagRepo        string
	flagMessageOnly bool
)

var fieldsCmd = &cobra.Command{
	Use:   "fields <base> <branch>",
	Short: "Derive revision fields from the commits of base..branch",
	Long: "Parse every commit message of base..branch, fold the fields in commit " +
		"order, render one revision message and re-parse it. The report shows " +
		"the author, per-commit problems and the final message.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		runFields(ctx, cmd, args[0], args[1])
		return nil
	},
}

func runFields(ctx context.Context, cmd *cobra.Command, base, branch string) {
	start := time.Now()
	a, err := newApp()
	if err != nil {
		fail(err)
		return
	}

	repo, err := gitctx.Open(ctx, flagRepo)
	if err != nil {
		fail(err)
		return
	}
	resolver, err := a.resolver()
	if err != nil {
		fail(err)
		return
	}

	a.logger.Debug("resolving range", "base", base, "branch", branch, "parser", a.cfg.Parser)
	rev, err := resolver.ResolveRange(ctx, repo, base, branch)
	if err != nil {
		fail(err)
		return
	}
	a.logger.Debug("resolved range", "commits", len(rev.Commits), "errors", len(rev.Outcome.Errors))

	if flagMessageOnly {
		fmt.Fprint(cmd.OutOrStdout(), rev.Message)
		if !rev.Outcome.OK() {
			exitCode = ExitFindings
		}
		return
	}

	report := &output.Report{Command: "fields", Range: base + ".." + branch, Revision: rev}
	if meta, err := repo.Meta(ctx); err == nil {
		report.Repo = &meta
	}
	a.emit(report, start)
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagParser, "parser", "", "Commit message parser (conduit, local)")
	cmd.Flags().StringVar(&flagUsersFile, "users-file", "", "YAML user directory for the local parser")
	cmd.Flags().BoolVar(&flagAllowNoPlan, "allow-empty-test-plan", false, "Local parser: accept messages without a test plan")
	cmd.Flags().StringVar(&flagMergePolicy, "merge-policy", "", "How commit fields combine (append, override)")
	cmd.Flags().StringVar(&flagConduitURI, "conduit-uri", "", "Phabricator base URI")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the Conduit response cache")
}

func init() {
	addPipelineFlags(fieldsCmd)
	fieldsCmd.Flags().StringVar(&flagRepo, "repo", "", "Repository directory (default: current directory)")
	fieldsCmd.Flags().BoolVar(&flagMessageOnly, "message-only", false, "Print only the rendered revision message")
}
