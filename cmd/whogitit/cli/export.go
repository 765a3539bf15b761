package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/audit"
	"github.com/dotsetlabs/whogitit/internal/gitutil"
	"github.com/dotsetlabs/whogitit/internal/logging"
	"github.com/dotsetlabs/whogitit/internal/notes"
)

// exportedCommit pairs a commit hash with its stored attribution for the
// whogitit.annotations.v1 export schema.
type exportedCommit struct {
	Commit      string               `json:"commit"`
	Attribution *notes.AIAttribution `json:"attribution"`
}

// annotationsExport is the top-level whogitit.annotations.v1 document.
type annotationsExport struct {
	SchemaVersion int              `json:"schema_version"`
	Commits       []exportedCommit `json:"commits"`
}

const annotationsSchemaVersion = 1

// newExportCmd wires `whogitit export <commit|range>`: machine JSON
// (whogitit.annotations.v1) or a GitHub-Checks-style Markdown summary, with
// --all walking every commit that has a stored attribution (the SUPPLEMENT
// repo-wide export feature).
func newExportCmd() *cobra.Command {
	var format string
	var all bool

	cmd := &cobra.Command{
		Use:   "export [commit|range]",
		Short: "Export stored AI attribution as JSON or Markdown",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := gitutil.OpenRepository()
			if err != nil {
				return fmt.Errorf("opening repository: %w", err)
			}

			var hashes []plumbing.Hash
			switch {
			case all:
				hashes, err = notes.ListAttributed(repo)
				if err != nil {
					return fmt.Errorf("listing attributed commits: %w", err)
				}
			case len(args) == 1 && strings.Contains(args[0], ".."):
				hashes, err = resolveRange(repo, args[0])
				if err != nil {
					return err
				}
			case len(args) == 1:
				hash, err := resolveCommitish(repo, args[0])
				if err != nil {
					return err
				}
				hashes = []plumbing.Hash{hash}
			default:
				hash, err := resolveCommitish(repo, "HEAD")
				if err != nil {
					return err
				}
				hashes = []plumbing.Hash{hash}
			}

			doc := annotationsExport{SchemaVersion: annotationsSchemaVersion}
			for _, h := range hashes {
				attr, err := notes.Fetch(repo, h)
				if err != nil {
					if errors.Is(err, notes.ErrNotFound) {
						continue
					}
					return fmt.Errorf("fetching attribution for %s: %w", h.String(), err)
				}
				doc.Commits = append(doc.Commits, exportedCommit{Commit: h.String(), Attribution: attr})
			}

			var r renderer
			switch format {
			case "markdown", "md":
				r = markdownExportRenderer{doc: doc}
			case "json", "":
				r = jsonRenderer{v: doc}
			default:
				return fmt.Errorf("unknown --format %q (want json|markdown)", format)
			}

			var buf strings.Builder
			if err := r.Render(&buf); err != nil {
				return err
			}
			outputWithPager(cmd.OutOrStdout(), buf.String())

			if err := audit.Append(audit.EventExport, map[string]any{"commit_count": len(doc.Commits), "format": format}); err != nil {
				logging.Warn(cmd.Context(), "export: recording audit event failed", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json|markdown")
	cmd.Flags().BoolVar(&all, "all", false, "export every commit with stored attribution")
	return cmd
}

// resolveRange resolves a "<from>..<to>" revision range to every commit
// reachable from <to> but not <from>, the same commit set `git log
// from..to` would walk.
func resolveRange(repo *git.Repository, rangeExpr string) ([]plumbing.Hash, error) {
	parts := strings.SplitN(rangeExpr, "..", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid revision range %q", rangeExpr)
	}

	fromHash, err := resolveCommitish(repo, parts[0])
	if err != nil {
		return nil, err
	}
	toHash, err := resolveCommitish(repo, parts[1])
	if err != nil {
		return nil, err
	}

	toCommit, err := repo.CommitObject(toHash)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", toHash, err)
	}

	var hashes []plumbing.Hash
	iter := object.NewCommitPreorderIter(toCommit, nil, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == fromHash {
			return storer.ErrStop
		}
		hashes = append(hashes, c.Hash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking range %s: %w", rangeExpr, err)
	}
	return hashes, nil
}

type markdownExportRenderer struct {
	doc annotationsExport
}

func (m markdownExportRenderer) Render(w io.Writer) error {
	fmt.Fprintf(w, "# AI Attribution Export\n\n")
	for _, ec := range m.doc.Commits {
		fmt.Fprintf(w, "## %s\n\n", ec.Commit[:8])
		fmt.Fprintf(w, "Session `%s` · Model `%s`\n\n", ec.Attribution.Session.SessionID, ec.Attribution.Session.ModelID)
		fmt.Fprintf(w, "| File | Total | AI | AI-Modified | Human | Unknown |\n")
		fmt.Fprintf(w, "|---|---|---|---|---|---|\n")
		for _, f := range ec.Attribution.Files {
			fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %d |\n",
				f.Path, f.Summary.TotalLines, f.Summary.AI, f.Summary.AIModified, f.Summary.Human, f.Summary.Unknown)
		}
		fmt.Fprintln(w)
	}
	return nil
}
