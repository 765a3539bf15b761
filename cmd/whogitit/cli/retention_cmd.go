package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/gitutil"
	"github.com/dotsetlabs/whogitit/internal/retention"
)

// newRetentionCmd wires `whogitit retention apply|show`: dry-run by
// default, with an interactive confirm before a real delete.
func newRetentionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Show or apply the attribution retention policy",
	}
	cmd.AddCommand(newRetentionShowCmd())
	cmd.AddCommand(newRetentionApplyCmd())
	return cmd
}

func retentionPolicy() (retention.Policy, error) {
	cfg, err := config.Load()
	if err != nil {
		return retention.Policy{}, err
	}
	return retention.Policy{
		MaxAgeDays: cfg.Retention.MaxAgeDays,
		MinCommits: cfg.Retention.MinCommits,
		RetainRefs: cfg.Retention.RetainRefs,
	}, nil
}

func newRetentionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show which attributed commits the policy would delete or keep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sets, err := computeRetentionSets()
			if err != nil {
				return err
			}
			printRetentionSets(cmd, sets)
			return nil
		},
	}
}

func newRetentionApplyCmd() *cobra.Command {
	var execute bool
	var force bool
	var reason string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Delete notes for commits past the retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sets, err := computeRetentionSets()
			if err != nil {
				return err
			}
			printRetentionSets(cmd, sets)

			if len(sets.ToDelete) == 0 {
				return nil
			}

			if !execute {
				fmt.Fprintln(cmd.OutOrStdout(), "\ndry run: pass --execute to delete the above commits' attribution")
				return nil
			}

			if !force {
				var confirm bool
				form := huh.NewForm(huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Delete attribution for %d commit(s)?", len(sets.ToDelete))).
						Value(&confirm),
				))
				if err := form.Run(); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return fmt.Errorf("confirmation prompt failed: %w", err)
				}
				if !confirm {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			repo, err := gitutil.OpenRepository()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			deleted, err := retention.Apply(repo, sets, true, reason)
			if err != nil {
				return fmt.Errorf("applying retention: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted attribution for %d commit(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&execute, "execute", false, "actually delete (default is dry-run)")
	cmd.Flags().BoolVar(&force, "force", false, "skip the interactive confirmation")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit log")
	return cmd
}

func computeRetentionSets() (retention.Sets, error) {
	policy, err := retentionPolicy()
	if err != nil {
		return retention.Sets{}, fmt.Errorf("loading retention policy: %w", err)
	}
	repo, err := gitutil.OpenRepository()
	if err != nil {
		return retention.Sets{}, fmt.Errorf("opening repository: %w", err)
	}
	return retention.ComputeRetentionSets(repo, policy, time.Now())
}

func printRetentionSets(cmd *cobra.Command, sets retention.Sets) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "COMMIT\tDISPOSITION\n")
	for _, h := range sets.ToKeep {
		fmt.Fprintf(tw, "%s\tkeep\n", h.String()[:8])
	}
	for _, h := range sets.ToDelete {
		fmt.Fprintf(tw, "%s\tdelete\n", h.String()[:8])
	}
	tw.Flush() //nolint:errcheck
}
