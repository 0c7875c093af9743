package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	hookName        = "commit-msg"
	hookMarkerStart = "# >>> revbridge commit-msg hook >>>"
	hookMarkerEnd   = "# <<< revbridge commit-msg hook <<<"
)

var (
	hookParser string
	hookStrict bool
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the git commit-msg hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install revbridge as a git commit-msg hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			fail(err)
			return nil
		}

		section := generateHookScript(hookParser, hookStrict)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !os.IsNotExist(err) {
			fail(fmt.Errorf("reading hook file: %w", err))
			return nil
		}

		var content string
		if os.IsNotExist(err) || len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceHookSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			fail(fmt.Errorf("creating hooks directory: %w", err))
			return nil
		}
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fail(fmt.Errorf("writing hook file: %w", err))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Installed revbridge %s hook at %s\n", hookName, hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the revbridge commit-msg hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			fail(err)
			return nil
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s hook found.\n", hookName)
				return nil
			}
			fail(fmt.Errorf("reading hook file: %w", err))
			return nil
		}

		content := removeHookSection(string(existing))

		// If only the shebang remains, delete the file entirely
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				fail(fmt.Errorf("removing hook file: %w", err))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed revbridge %s hook at %s\n", hookName, hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fail(fmt.Errorf("writing hook file: %w", err))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed revbridge section from %s\n", hookPath)
		return nil
	},
}

func getHookPath() (string, error) {
	out, err := exec.Command("git", "rev-parse", "--git-path", "hooks").Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository (git rev-parse --git-path hooks failed)")
	}
	return filepath.Join(strings.TrimSpace(string(out)), hookName), nil
}

// generateHookScript renders the hook section. Problems in the message
// block the commit; tool errors only warn unless strict is set.
func generateHookScript(parser string, strict bool) string {
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	b.WriteString("revbridge check-message")
	if parser != "" {
		b.WriteString(" --parser " + parser)
	}
	b.WriteString(" --no-color \"$1\"\n")
	b.WriteString("REVBRIDGE_EXIT=$?\n")
	b.WriteString("if [ $REVBRIDGE_EXIT -eq 1 ]; then\n")
	b.WriteString("  echo \"revbridge: commit message has problems, commit blocked\"\n")
	b.WriteString("  exit 1\n")
	b.WriteString("elif [ $REVBRIDGE_EXIT -ge 2 ]; then\n")
	if strict {
		b.WriteString("  echo \"revbridge: check failed (exit $REVBRIDGE_EXIT), commit blocked\"\n")
		b.WriteString("  exit $REVBRIDGE_EXIT\n")
	} else {
		b.WriteString("  echo \"revbridge: check failed (exit $REVBRIDGE_EXIT), allowing commit\"\n")
	}
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func replaceHookSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return before + section + after
}

func removeHookSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		return existing
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return before + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookParser, "parser", "", "Parser the hook uses (conduit, local; default from config)")
	hookInstallCmd.Flags().BoolVar(&hookStrict, "strict", false, "Block the commit when the check itself fails")
}
