package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/gitutil"
	"github.com/dotsetlabs/whogitit/internal/notes"
	"github.com/dotsetlabs/whogitit/internal/pending"
)

// whogititHookMarker identifies a whogitit-managed block inside an
// installed git hook file, so installs are idempotent and uninstalls can
// find what they own.
const whogititHookMarker = "whogitit-managed"

// managedGitHooks are the hooks whogitit installs: commit-msg appends the
// AI-* trailers before the commit object is made, post-commit stores the
// attribution once it exists.
var managedGitHooks = []struct {
	name    string
	command string
}{
	{name: "commit-msg", command: `whogitit hook commit-msg "$1" || exit 1`},
	{name: "post-commit", command: `whogitit finalize 2>/dev/null || true`},
}

func hookBlock(command string) string {
	return fmt.Sprintf("\n# %s\n%s\n", whogititHookMarker, command)
}

// installGitHooks writes each managed hook, preserving any pre-existing
// hook content instead of overwriting it. A hook file missing an
// executable shebang is given one; whogitit's block is appended after
// whatever was already there, and is a no-op on a second install since the
// marker is already present.
func installGitHooks(gitDir string) (installed int, err error) {
	hooksDir := filepath.Join(gitDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil { //nolint:gosec // hooks must be executable
		return 0, fmt.Errorf("creating hooks directory: %w", err)
	}

	for _, h := range managedGitHooks {
		path := filepath.Join(hooksDir, h.name)
		existing, readErr := os.ReadFile(path) //nolint:gosec // constructed from a trusted hooks dir
		switch {
		case readErr != nil:
			content := "#!/bin/sh" + hookBlock(h.command)
			if err := os.WriteFile(path, []byte(content), 0o755); err != nil { //nolint:gosec // git hooks require exec bit
				return installed, fmt.Errorf("installing %s hook: %w", h.name, err)
			}
			installed++
		case strings.Contains(string(existing), whogititHookMarker):
			// already installed; leave it alone
		default:
			content := strings.TrimRight(string(existing), "\n") + "\n" + hookBlock(h.command)
			if err := os.WriteFile(path, []byte(content), 0o755); err != nil { //nolint:gosec // git hooks require exec bit
				return installed, fmt.Errorf("appending to existing %s hook: %w", h.name, err)
			}
			installed++
		}
	}
	return installed, nil
}

func newSetupCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install whogitit's git hooks in the current repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			writeRetention := false
			if !yes && term.IsTerminal(int(os.Stdout.Fd())) {
				install := true
				form := huh.NewForm(huh.NewGroup(
					huh.NewConfirm().
						Title("Install whogitit's commit-msg and post-commit git hooks?").
						Value(&install),
					huh.NewConfirm().
						Title("Write the default retention policy to .whogitit.toml?").
						Value(&writeRetention),
				))
				if err := form.Run(); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return fmt.Errorf("setup prompt failed: %w", err)
				}
				if !install {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			gitDir, err := gitDirPath()
			if err != nil {
				return fmt.Errorf("resolving .git directory: %w", err)
			}
			installed, err := installGitHooks(gitDir)
			if err != nil {
				return err
			}
			if installed == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "whogitit hooks already installed")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "installed %d git hook(s): commit-msg, post-commit\n", installed)
			}

			if writeRetention {
				for _, kv := range [][2]string{
					{"retention.max_age_days", "90"},
					{"retention.min_commits", "50"},
				} {
					if err := config.Set(kv[0], kv[1]); err != nil {
						return fmt.Errorf("writing retention defaults: %w", err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "wrote default retention policy to .whogitit.toml")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "point your editor's tool-use hooks at 'whogitit hook pre' / 'whogitit hook post'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "skip the interactive prompts")
	return cmd
}

func gitDirPath() (string, error) {
	out, err := exec.CommandContext(context.Background(), "git", "rev-parse", "--git-dir").Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	dir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(dir) {
		if cwd, err := os.Getwd(); err == nil {
			dir = filepath.Join(cwd, dir)
		}
	}
	return filepath.Clean(dir), nil
}

// newDoctorCmd wires `whogitit doctor`: basic environment checks (git
// version, hooks installed, notes ref reachability, pending buffer
// staleness), reported without attempting repairs.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the whogitit environment for common problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runDoctor(cmd)
			return nil
		},
	}
}

func runDoctor(cmd *cobra.Command) {
	out := cmd.OutOrStdout()

	if verOut, err := exec.CommandContext(context.Background(), "git", "--version").Output(); err != nil {
		fmt.Fprintln(out, "✗ git not found on PATH")
	} else {
		fmt.Fprintf(out, "✓ %s", string(verOut))
	}

	gitDir, err := gitDirPath()
	if err != nil {
		fmt.Fprintln(out, "✗ not inside a git repository")
		return
	}

	missing := []string{}
	for _, h := range managedGitHooks {
		data, err := os.ReadFile(filepath.Join(gitDir, "hooks", h.name)) //nolint:gosec // constructed from a trusted hooks dir
		if err != nil || !strings.Contains(string(data), whogititHookMarker) {
			missing = append(missing, h.name)
		}
	}
	if len(missing) == 0 {
		fmt.Fprintln(out, "✓ git hooks installed")
	} else {
		fmt.Fprintf(out, "✗ missing git hooks: %s (run 'whogitit setup')\n", strings.Join(missing, ", "))
	}

	repo, err := gitutil.OpenRepository()
	if err != nil {
		fmt.Fprintln(out, "✗ could not open repository:", err)
		return
	}
	if _, err := repo.Reference(notes.RefName(), true); err != nil {
		fmt.Fprintln(out, "- no attribution notes ref yet (expected before the first finalize)")
	} else {
		fmt.Fprintln(out, "✓ attribution notes ref reachable")
	}

	buf, err := pending.Load()
	if err != nil {
		fmt.Fprintln(out, "✗ pending buffer is corrupt:", err)
		return
	}
	if buf == nil {
		fmt.Fprintln(out, "- no pending buffer")
		return
	}
	maxAge := float64(pending.DefaultMaxPendingAgeHours)
	if cfg, err := config.Load(); err == nil && cfg.General.MaxPendingAgeHours > 0 {
		maxAge = float64(cfg.General.MaxPendingAgeHours)
	}
	status := buf.Status(time.Now(), maxAge)
	if status.Stale {
		fmt.Fprintf(out, "✗ pending buffer is stale: session %s, %d edit(s), %.0fh old\n", buf.Session.SessionID, status.EditCount, status.AgeHours)
	} else {
		fmt.Fprintf(out, "- pending buffer: session %s, %d edit(s) across %d file(s)\n", buf.Session.SessionID, status.EditCount, status.FileCount)
	}
}
