package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/audit"
	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/logging"
)

// newConfigCmd wires `whogitit config show|set`: `show` prints the fully
// resolved configuration (defaults layered with .whogitit.toml,
// .whogitit.local.toml, and WHOGITIT_* env overrides) rather than any one
// file's contents; `set` writes one key into the project file.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or update whogitit's configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one configuration key into .whogitit.toml",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := config.Set(key, value); err != nil {
				return err
			}
			if err := audit.Append(audit.EventConfigChange, map[string]any{"key": key, "value": value}); err != nil {
				logging.Warn(context.Background(), "config set: recording audit event failed", "error", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s = %s\n", key, value)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the fully resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			switch format {
			case "json", "":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			case "toml":
				return printConfigTOML(cmd, cfg)
			default:
				return fmt.Errorf("unknown --format %q (want json|toml)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json|toml")
	return cmd
}

// printConfigTOML renders the resolved config in the same section shape a
// user's .whogitit.toml would take, so `config show --format toml` can be
// pasted straight into one.
func printConfigTOML(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "[general]")
	fmt.Fprintf(out, "enabled = %t\n", cfg.General.Enabled)
	fmt.Fprintf(out, "log_level = %q\n", cfg.General.LogLevel)
	fmt.Fprintf(out, "max_pending_age_hours = %d\n\n", cfg.General.MaxPendingAgeHours)

	fmt.Fprintln(out, "[analyzer]")
	fmt.Fprintf(out, "similarity_threshold = %v\n\n", cfg.Analyzer.SimilarityThreshold)

	fmt.Fprintln(out, "[notes]")
	fmt.Fprintf(out, "warn_size_bytes = %d\n", cfg.Notes.WarnSizeBytes)
	fmt.Fprintf(out, "max_size_bytes = %d\n\n", cfg.Notes.MaxSizeBytes)

	fmt.Fprintln(out, "[retention]")
	fmt.Fprintf(out, "max_age_days = %d\n", cfg.Retention.MaxAgeDays)
	fmt.Fprintf(out, "min_commits = %d\n", cfg.Retention.MinCommits)
	fmt.Fprintf(out, "retain_refs = %q\n\n", cfg.Retention.RetainRefs)

	fmt.Fprintln(out, "[telemetry]")
	fmt.Fprintf(out, "enabled = %t\n", cfg.Telemetry.Enabled)
	return nil
}
