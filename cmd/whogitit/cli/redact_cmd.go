package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/audit"
	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/logging"
	"github.com/dotsetlabs/whogitit/redact"
)

// newRedactCmd wires `whogitit redact <file|-->`: runs the redaction
// catalog standalone against a file or stdin, with --audit printing the
// match trail alongside the redacted text.
func newRedactCmd() *cobra.Command {
	var showAudit bool

	cmd := &cobra.Command{
		Use:   "redact <file|->",
		Short: "Redact secrets from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0]) //nolint:gosec // user-supplied path is the whole point of this command
			}
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			var redactor *redact.Redactor
			if cfg, cfgErr := config.Load(); cfgErr == nil {
				redactor = cfg.BuildRedactor(func(name, pattern string, err error) {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping invalid custom pattern %q (%s): %v\n", name, pattern, err)
				})
			} else {
				redactor = redact.NewDefault()
			}

			if !showAudit {
				fmt.Fprint(cmd.OutOrStdout(), redactor.Redact(string(data)))
				return nil
			}

			redacted, matches := redactor.RedactWithAudit(string(data), time.Now())
			fmt.Fprint(cmd.OutOrStdout(), redacted)
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%d match(es):\n", len(matches))
			for _, m := range matches {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s at [%d:%d] %q\n", m.PatternName, m.Start, m.End, m.Preview)
			}
			if len(matches) > 0 {
				// Best-effort: the redact command also runs outside a repo,
				// where there is no audit log to append to.
				if err := audit.Append(audit.EventRedaction, map[string]any{"match_count": len(matches)}); err != nil {
					logging.Warn(cmd.Context(), "redact: recording audit event failed", "error", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showAudit, "audit", false, "print the audit trail of what was redacted")
	return cmd
}
