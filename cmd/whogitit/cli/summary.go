package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/analyzer"
	"github.com/dotsetlabs/whogitit/internal/gitutil"
	"github.com/dotsetlabs/whogitit/internal/notes"
)

// repoSummary aggregates AttributionSummary across every attributed commit
// in the repository, a repo-wide rollup distinct from per-commit show.
type repoSummary struct {
	CommitCount int                         `json:"commit_count"`
	Totals      analyzer.AttributionSummary `json:"totals"`
}

// newSummaryCmd wires `whogitit summary`: walks every commit with stored
// attribution and rolls up line counts by provenance class into one totals
// table.
func newSummaryCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate AI attribution totals across all recorded commits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := gitutil.OpenRepository()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}

			hashes, err := notes.ListAttributed(repo)
			if err != nil {
				return fmt.Errorf("listing attributed commits: %w", err)
			}

			var rs repoSummary
			for _, h := range hashes {
				attr, err := notes.Fetch(repo, h)
				if err != nil {
					continue // a commit dropped between list and fetch (e.g. concurrent retention) is not fatal here
				}
				rs.CommitCount++
				for _, f := range attr.Files {
					rs.Totals.TotalLines += f.Summary.TotalLines
					rs.Totals.Original += f.Summary.Original
					rs.Totals.AI += f.Summary.AI
					rs.Totals.AIModified += f.Summary.AIModified
					rs.Totals.Human += f.Summary.Human
					rs.Totals.Unknown += f.Summary.Unknown
				}
			}

			var r renderer
			switch format {
			case "json":
				r = jsonRenderer{v: rs}
			case "table", "":
				r = summaryTableRenderer{rs: rs}
			default:
				return fmt.Errorf("unknown --format %q (want table|json)", format)
			}
			return r.Render(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format: table|json")
	return cmd
}

type summaryTableRenderer struct{ rs repoSummary }

func (s summaryTableRenderer) Render(w io.Writer) error {
	if s.rs.CommitCount == 0 {
		fmt.Fprintln(w, "no attributed commits found")
		return nil
	}
	fmt.Fprintf(w, "%d attributed commit(s)\n\n", s.rs.CommitCount)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TOTAL\tORIGINAL\tAI\tAI_MODIFIED\tHUMAN\tUNKNOWN\n")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\n",
		s.rs.Totals.TotalLines, s.rs.Totals.Original, s.rs.Totals.AI,
		s.rs.Totals.AIModified, s.rs.Totals.Human, s.rs.Totals.Unknown)
	return tw.Flush()
}
