package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/gitutil"
	"github.com/dotsetlabs/whogitit/internal/notes"
)

// resolveCommitish resolves a revision string (full/short SHA, branch, tag,
// HEAD~N, ...) to a commit hash, the same go-git ResolveRevision call every
// read-side command needs.
func resolveCommitish(repo interface {
	ResolveRevision(plumbing.Revision) (*plumbing.Hash, error)
}, revision string) (plumbing.Hash, error) {
	if revision == "" {
		revision = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving %q: %w", revision, err)
	}
	return *hash, nil
}

// newShowCmd wires `whogitit show <commit>`: renders one commit's stored
// AIAttribution with per-file summaries, paged when taller than the
// terminal.
func newShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <commit>",
		Short: "Show the stored AI attribution for a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := gitutil.OpenRepository()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}
			hash, err := resolveCommitish(repo, args[0])
			if err != nil {
				return err
			}
			attr, err := notes.Fetch(repo, hash)
			if err != nil {
				if errors.Is(err, notes.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "no AI attribution recorded for %s\n", hash.String()[:8])
					return nil
				}
				return fmt.Errorf("fetching attribution: %w", err)
			}

			var r renderer
			switch format {
			case "json":
				r = jsonRenderer{v: attr}
			case "table", "":
				r = showTableRenderer{commit: hash.String(), attr: attr}
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

	cmd.Flags().StringVar(&format, "format", "table", "output format: table|json")
	return cmd
}

type showTableRenderer struct {
	commit string
	attr   *notes.AIAttribution
}

func (s showTableRenderer) Render(w io.Writer) error {
	fmt.Fprintf(w, "commit %s\n", s.commit)
	fmt.Fprintf(w, "session %s  model %s\n\n", s.attr.Session.SessionID, s.attr.Session.ModelID)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "FILE\tTOTAL\tAI\tAI_MODIFIED\tHUMAN\tUNKNOWN\n")
	for _, f := range s.attr.Files {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", f.Path, f.Summary.TotalLines, f.Summary.AI, f.Summary.AIModified, f.Summary.Human, f.Summary.Unknown)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.attr.Prompts) > 0 {
		fmt.Fprintf(w, "\nprompts:\n")
		for _, p := range s.attr.Prompts {
			preview := p.Text
			if len(preview) > 80 {
				preview = preview[:80] + "..."
			}
			fmt.Fprintf(w, "  [%d] %s\n", p.Index, preview)
		}
	}
	return nil
}
