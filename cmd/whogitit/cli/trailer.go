package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/analyzer"
	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/logging"
	"github.com/dotsetlabs/whogitit/internal/trailers"
)

// newHookCommitMsgCmd wires the commit-msg git hook entrypoint: the
// trailer step of the commit flow, appended to the message before the
// commit object exists. Takes the commit-msg file path as its sole
// argument, matching git's own commit-msg hook calling convention.
func newHookCommitMsgCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "commit-msg <commit-msg-file>",
		Short:  "Append AI-* trailers to the commit message",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup := initHookLogging()
			defer cleanup()
			return runHookCommitMsg(args[0])
		},
	}
}

func runHookCommitMsg(msgFile string) error {
	ctx := context.Background()

	buf, err := loadPendingTolerant(ctx)
	if err != nil {
		return fmt.Errorf("loading pending buffer: %w", err)
	}
	if buf == nil || len(buf.FileHistories) == 0 {
		return nil
	}

	cfg, cfgErr := config.Load()
	threshold := analyzer.DefaultThreshold
	if cfgErr == nil && cfg.Analyzer.SimilarityThreshold > 0 {
		threshold = cfg.Analyzer.SimilarityThreshold
	}

	var totalAI, totalModified, totalHuman int
	for path, hist := range buf.FileHistories {
		staged, err := stagedContent(path)
		if err != nil {
			// File deleted or not yet staged under this path: skip it rather
			// than fail the commit over a trailer estimate.
			continue
		}
		h := hist
		result := analyzer.Analyze(&h, staged, threshold)
		totalAI += result.Summary.AI
		totalModified += result.Summary.AIModified
		totalHuman += result.Summary.Human
	}

	set := trailers.Set{
		SessionID:     shortSession(buf.Session.SessionID),
		HasSession:    buf.Session.SessionID != "",
		Model:         buf.Session.ModelID,
		HasModel:      buf.Session.ModelID != "",
		Lines:         totalAI + totalModified,
		HasLines:      true,
		ModifiedLines: totalModified,
		HasModified:   totalModified > 0,
		HumanLines:    totalHuman,
		HasHuman:      totalHuman > 0,
		CoAuthoredBy:  trailers.CoAuthorFor(buf.Session.ModelID),
		HasCoAuthor:   buf.Session.ModelID != "",
	}

	data, err := os.ReadFile(msgFile) //nolint:gosec // path supplied by git itself
	if err != nil {
		return fmt.Errorf("reading commit message file: %w", err)
	}

	formatted := trailers.Format(strings.TrimRight(string(data), "\n"), set)
	if err := os.WriteFile(msgFile, []byte(formatted), 0o644); err != nil { //nolint:gosec // matches git's own commit-msg file mode
		return fmt.Errorf("writing commit message file: %w", err)
	}

	logging.Debug(ctx, "commit-msg: appended AI trailers", "ai_lines", totalAI, "modified_lines", totalModified, "human_lines", totalHuman)
	return nil
}

// shortSession truncates a session id to the 12-char prefix the trailer
// format documents.
func shortSession(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// stagedContent reads a path's staged (index) blob via `git show :path`,
// which is what the commit object will contain once commit-msg returns
// successfully, without requiring a full go-git index reader.
func stagedContent(path string) (string, error) {
	out, err := exec.CommandContext(context.Background(), "git", "show", ":"+path).Output() //nolint:gosec // path comes from our own pending buffer keys
	if err != nil {
		return "", fmt.Errorf("reading staged content for %s: %w", path, err)
	}
	return string(out), nil
}
