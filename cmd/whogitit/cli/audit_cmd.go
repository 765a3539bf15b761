package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/audit"
	"github.com/dotsetlabs/whogitit/internal/paths"
)

// newAuditCmd wires `whogitit audit verify`: validates the audit log's
// hash chain and reports the first broken link, if any.
func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the attribution audit log",
	}
	cmd.AddCommand(newAuditVerifyCmd())
	return cmd
}

func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log's hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := paths.AbsPath(paths.AuditLogFile)
			if err != nil {
				return fmt.Errorf("resolving audit log path: %w", err)
			}

			if err := audit.VerifyChain(p); err != nil {
				var broken *audit.ErrChainBroken
				if errors.As(err, &broken) {
					fmt.Fprintf(cmd.OutOrStdout(), "audit chain broken at event %d: %s\n", broken.Index, broken.Reason)
					return NewSilentError(err)
				}
				return fmt.Errorf("verifying audit log: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "audit chain ok")
			return nil
		},
	}
}
