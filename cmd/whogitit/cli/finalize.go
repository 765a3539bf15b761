package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/analyzer"
	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/gitutil"
	"github.com/dotsetlabs/whogitit/internal/logging"
	"github.com/dotsetlabs/whogitit/internal/notes"
	"github.com/dotsetlabs/whogitit/internal/pending"
)

// newFinalizeCmd wires the post-commit git hook entrypoint: run the
// three-way analyzer over every file touched in the pending buffer against
// the commit that was just made, store the resulting AIAttribution, and
// discard the buffer. Invoked with no arguments; the commit being finalized
// is always HEAD, since post-commit fires after the commit object already
// exists.
func newFinalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "finalize",
		Short:  "Reconcile the pending buffer against HEAD and store attribution",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cleanup := initHookLogging()
			defer cleanup()
			return runFinalize(cmd)
		},
	}
}

func runFinalize(cmd *cobra.Command) error {
	ctx := context.Background()

	buf, err := loadPendingTolerant(ctx)
	if err != nil {
		return fmt.Errorf("loading pending buffer: %w", err)
	}
	if buf == nil || len(buf.FileHistories) == 0 {
		logging.Debug(ctx, "finalize: no pending buffer, nothing to attribute")
		return nil
	}

	repo, err := gitutil.OpenRepository()
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("reading HEAD commit: %w", err)
	}

	cfg, cfgErr := config.Load()
	threshold := analyzer.DefaultThreshold
	if cfgErr == nil && cfg.Analyzer.SimilarityThreshold > 0 {
		threshold = cfg.Analyzer.SimilarityThreshold
	}

	paths := make([]string, 0, len(buf.FileHistories))
	for p := range buf.FileHistories {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	results := make([]analyzer.FileAttributionResult, 0, len(paths))
	for _, p := range paths {
		hist := buf.FileHistories[p]

		var committedContent string
		if file, err := commit.File(p); err == nil {
			content, err := file.Contents()
			if err != nil {
				logging.Warn(ctx, "finalize: reading committed file content failed, skipping", "path", p, "error", err)
				continue
			}
			committedContent = content
		} else {
			// File not present at HEAD (deleted or renamed away before commit);
			// nothing committed for the analyzer to reconcile against.
			continue
		}

		h := hist
		result := analyzer.Analyze(&h, committedContent, threshold)
		results = append(results, result)
	}

	if len(results) == 0 {
		logging.Debug(ctx, "finalize: no pending edits matched files in HEAD, discarding buffer")
		return pending.Discard()
	}

	attribution := &notes.AIAttribution{
		Version: notes.Version,
		Session: notes.SessionMetadata{
			SessionID: buf.Session.SessionID,
			ModelID:   buf.Session.ModelID,
			StartedAt: buf.Session.StartedAt,
		},
		Files: results,
	}
	for _, p := range buf.Prompts {
		attribution.Prompts = append(attribution.Prompts, notes.PromptInfo{
			Index:         p.Index,
			Text:          p.Text,
			Timestamp:     p.Timestamp,
			AffectedFiles: p.AffectedFiles,
		})
	}

	warnSize, maxSize := 0, 0
	if cfgErr == nil {
		warnSize, maxSize = cfg.Notes.WarnSizeBytes, cfg.Notes.MaxSizeBytes
	}
	_, warning, err := notes.StoreWithLimits(repo, head.Hash(), attribution, warnSize, maxSize)
	if err != nil {
		var tooLarge *notes.ErrNoteTooLarge
		if errors.As(err, &tooLarge) {
			// Preserve the pending buffer so a future finalize (after the
			// user trims prompts/scope) can retry.
			logging.Warn(ctx, "finalize: attribution too large to store, leaving pending buffer intact", "error", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "whogitit: attribution for %s exceeds the note size limit; buffer preserved for retry\n", head.Hash())
			return nil
		}
		return fmt.Errorf("storing attribution: %w", err)
	}
	if warning != nil {
		logging.Warn(ctx, "finalize: attribution payload near size limit", "warning", warning)
	}

	if err := pending.Discard(); err != nil {
		logging.Warn(ctx, "finalize: discarding pending buffer failed", "error", err)
	}

	logging.Info(ctx, "finalize: stored attribution", "commit", head.Hash().String(), "files", len(results))
	return nil
}
