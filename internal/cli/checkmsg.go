package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/revbridge/internal/output"
)

var checkMessageCmd = &cobra.Command{
	Use:   "check-message <file|->",
	Short: "Parse a single commit message and report problems",
	Long: "Parse a commit message the way the review service would and exit 1 " +
		"if it has problems. Used by the commit-msg hook.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		runCheckMessage(ctx, cmd.InOrStdin(), args[0])
		return nil
	},
}

func runCheckMessage(ctx context.Context, stdin io.Reader, source string) {
	start := time.Now()
	a, err := newApp()
	if err != nil {
		fail(err)
		return
	}

	corpus, err := readMessage(stdin, source)
	if err != nil {
		fail(err)
		return
	}
	parser, _, err := a.pipeline()
	if err != nil {
		fail(err)
		return
	}
	outcome, err := parser.ParseCommitMessage(ctx, corpus)
	if err != nil {
		fail(err)
		return
	}

	a.emit(&output.Report{
		Command: "check-message",
		Message: &output.MessageCheck{Source: source, Outcome: outcome},
	}, start)
}

// readMessage reads a commit message and drops git's comment lines.
func readMessage(stdin io.Reader, source string) (string, error) {
	var data []byte
	var err error
	if source == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return "", fmt.Errorf("reading message: %w", err)
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), nil
}

func init() {
	addPipelineFlags(checkMessageCmd)
}
