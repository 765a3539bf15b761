// Package cli implements the whogitit command tree: capture hooks, the
// post-commit finalizer, and the read-side blame/export/retention/audit/
// setup surface. Commands are one-file-per-command under a single
// NewRootCmd() wiring every subcommand, with a SilentError convention for
// failures that have already printed their own message before returning.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/telemetry"
	"github.com/dotsetlabs/whogitit/internal/versioncheck"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// SilentError wraps an error a command has already reported to the user
// (e.g. a redaction report or a retention dry-run table), so main.go's top
// level handler doesn't print it a second time.
type SilentError struct {
	Err error
}

func NewSilentError(err error) *SilentError { return &SilentError{Err: err} }

func (e *SilentError) Error() string { return e.Err.Error() }
func (e *SilentError) Unwrap() error { return e.Err }

const gettingStarted = `

Getting Started:
  Run 'whogitit setup' inside a git repository to install the post-commit
  hook and capture entrypoints. Then point your editor's tool-use hooks at
  'whogitit hook pre' / 'whogitit hook post'.
`

// telemetryClient is set up once per invocation in PersistentPreRun and
// flushed in PersistentPostRun, wrapping every command in a single PostHog
// client lifecycle.
var telemetryClient telemetry.Client = &telemetry.NoOpClient{}

// NewRootCmd builds the whogitit command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "whogitit",
		Short:         "AI-aware git attribution",
		Long:          "whogitit records, per commit, which lines of code were authored by a generative model versus a human." + gettingStarted,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg, err := config.Load()
			enabled := false
			if err == nil {
				enabled = cfg.Telemetry.Enabled
			}
			telemetryClient = telemetry.NewClient(Version, &enabled, os.Getenv(telemetry.OptOutEnvVar))
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			telemetryClient.TrackCommand(cmd, "ok")
			telemetryClient.Close()
			if cmd.Name() == "version" {
				return
			}
			versioncheck.CheckAndNotify(cmd, Version)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newHookCmd())
	cmd.AddCommand(newFinalizeCmd())
	cmd.AddCommand(newBlameCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newRedactCmd())
	cmd.AddCommand(newRetentionCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newSummaryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "whogitit %s (%s)\n", Version, Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
