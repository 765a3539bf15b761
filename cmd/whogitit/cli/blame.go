package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/blameutil"
	"github.com/dotsetlabs/whogitit/internal/gitutil"
)

// newBlameCmd wires `whogitit blame`: joins host blame with stored
// attribution and renders the whogitit.blame.v1 schema as a terminal table
// or JSON.
func newBlameCmd() *cobra.Command {
	var revision, format string

	cmd := &cobra.Command{
		Use:   "blame <path>",
		Short: "Show AI-aware line-by-line attribution for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := gitutil.OpenRepository()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}

			result, err := blameutil.Blame(cmd.Context(), repo, args[0], revision)
			if err != nil {
				return fmt.Errorf("blame: %w", err)
			}

			var r renderer
			switch format {
			case "json":
				r = jsonRenderer{v: result}
			case "table", "":
				r = blameTableRenderer{result: result}
			default:
				return fmt.Errorf("unknown --format %q (want table|json)", format)
			}

			var buf strings.Builder
			if err := r.Render(&buf); err != nil {
				return err
			}
			outputWithPager(cmd.OutOrStdout(), buf.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&revision, "revision", "HEAD", "revision to blame at")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table|json")
	return cmd
}

// jsonRenderer renders any value as indented JSON, shared by blame/show/export.
type jsonRenderer struct{ v any }

func (j jsonRenderer) Render(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(j.v)
}

type blameTableRenderer struct {
	result *blameutil.BlameResult
}

func (b blameTableRenderer) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "LINE\tSOURCE\tCOMMIT\tCONF\tCONTENT\n")
	for _, l := range b.result.Lines {
		commit := l.CommitHash
		if len(commit) > 8 {
			commit = commit[:8]
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n", l.LineNumber, l.Source, commit, l.Confidence, l.Content)
	}
	return tw.Flush()
}
