package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotsetlabs/whogitit/internal/config"
	"github.com/dotsetlabs/whogitit/internal/diffutil"
	"github.com/dotsetlabs/whogitit/internal/gitutil"
	"github.com/dotsetlabs/whogitit/internal/logging"
	"github.com/dotsetlabs/whogitit/internal/paths"
	"github.com/dotsetlabs/whogitit/internal/pending"
	"github.com/dotsetlabs/whogitit/internal/validation"
	"github.com/dotsetlabs/whogitit/redact"
)

// defaultModelID is used for WHOGITIT_MODEL_ID when the environment leaves
// it unset.
const defaultModelID = "claude-sonnet"

// hookContext carries the optional AIEdit.context payload, read from
// the hook-input JSON's "context" object.
type hookContext struct {
	PlanMode   bool   `json:"plan_mode"`
	IsSubagent bool   `json:"is_subagent"`
	AgentDepth uint8  `json:"agent_depth"`
	SubagentID string `json:"subagent_id"`
}

// HookInput is the capture entrypoint's stdin payload. Unknown fields
// are ignored by encoding/json's default decode behavior.
type HookInput struct {
	Tool        string       `json:"tool"`
	FilePath    string       `json:"file_path"`
	Prompt      string       `json:"prompt"`
	OldContent  *string      `json:"old_content"`
	NewContent  string       `json:"new_content"`
	Context     *hookContext `json:"context"`
}

func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hook",
		Short:  "Capture entrypoints invoked by editor tool-use hooks",
		Long:   "Commands invoked by the host editor's PreToolUse/PostToolUse hooks. Internal; not for direct use.",
		Hidden: true,
	}
	cmd.AddCommand(newHookPreCmd())
	cmd.AddCommand(newHookPostCmd())
	cmd.AddCommand(newHookCommitMsgCmd())
	return cmd
}

func newHookPreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pre",
		Short: "Handle the pre-tool-use capture hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cleanup := initHookLogging()
			defer cleanup()

			input, err := readHookInput(cmd.InOrStdin())
			if err != nil {
				logging.Warn(context.Background(), "hook pre: malformed input, ignoring", "error", err)
				return nil // malformed input must never break the host tool
			}

			logging.Debug(context.Background(), "hook pre invoked", slog.String("tool", input.Tool), slog.String("file", input.FilePath))
			// PreToolUse fires before the edit happens, so there is nothing to
			// record yet (the buffer's before-snapshot is resolved lazily by
			// RecordEdit at "post" time). This entrypoint exists for parity with
			// the host tool's hook pairing and future pre-edit validation.
			return nil
		},
	}
}

func newHookPostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post",
		Short: "Handle the post-tool-use capture hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cleanup := initHookLogging()
			defer cleanup()

			input, err := readHookInput(cmd.InOrStdin())
			if err != nil {
				logging.Warn(context.Background(), "hook post: malformed input, ignoring", "error", err)
				return nil
			}

			if err := captureEdit(input, time.Now()); err != nil {
				logging.Warn(context.Background(), "hook post: capture failed", "error", err)
			}
			return nil
		},
	}
}

func readHookInput(r io.Reader) (*HookInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading hook input: %w", err)
	}
	var in HookInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding hook input: %w", err)
	}
	return &in, nil
}

// captureEdit normalizes the path, redacts the prompt, and appends one
// AIEdit to the session's pending buffer (editor surrogate ->
// redact -> pending buffer).
func captureEdit(in *HookInput, at time.Time) error {
	path, err := paths.ToRepoRelative(in.FilePath)
	if err != nil {
		return fmt.Errorf("normalizing file path: %w", err)
	}
	if err := validation.ValidatePath(path); err != nil {
		return fmt.Errorf("rejecting untrusted hook path: %w", err)
	}

	sessionID := os.Getenv("WHOGITIT_SESSION_ID")
	modelID := os.Getenv("WHOGITIT_MODEL_ID")
	if modelID == "" {
		modelID = defaultModelID
	}

	buf, err := loadPendingTolerant(context.Background())
	if err != nil {
		return fmt.Errorf("loading pending buffer: %w", err)
	}
	if buf != nil && sessionID != "" && buf.Session.SessionID != sessionID {
		logging.Warn(context.Background(), "pending buffer discarded: session changed",
			"previous_session", buf.Session.SessionID, "new_session", sessionID, "discarded_edits", countEdits(buf))
		buf = nil
	}
	if buf == nil {
		buf = pending.New(sessionID, modelID, at)
	}

	var redactor pending.Redactor
	if cfg, cfgErr := config.Load(); cfgErr == nil {
		redactor = cfg.BuildRedactor(func(name, pattern string, err error) {
			logging.Warn(context.Background(), "skipping invalid custom redact pattern", "name", name, "pattern", pattern, "error", err)
		})
	} else {
		redactor = redact.NewDefault()
	}

	oldContent := resolveOldContent(in.FilePath, in.OldContent)

	edit, err := buf.RecordEdit(path, oldContent, in.NewContent, in.Tool, in.Prompt, redactor, editContextFrom(in.Context), at)
	if err != nil {
		return fmt.Errorf("recording edit: %w", err)
	}

	if err := pending.Save(buf); err != nil {
		return fmt.Errorf("saving pending buffer: %w", err)
	}

	d := diffutil.ComputeDiff(edit.Before.Content, edit.After.Content)
	logging.Debug(context.Background(), "hook post: recorded edit",
		"path", path, "edit_id", edit.EditID,
		"lines_added", d.LinesAdded, "lines_removed", d.LinesRemoved)
	return nil
}

// loadPendingTolerant downgrades a corrupt pending buffer to "no pending"
// with a warning, so a fresh buffer is created on the next edit; any other
// load failure propagates.
func loadPendingTolerant(ctx context.Context) (*pending.Buffer, error) {
	buf, err := pending.Load()
	if err != nil {
		var corrupt *pending.ErrCorrupt
		if errors.As(err, &corrupt) {
			logging.Warn(ctx, "pending buffer unreadable, treating as absent", "path", corrupt.Path, "error", corrupt.Err)
			return nil, nil
		}
		return nil, err
	}
	return buf, nil
}

// editContextFrom translates the hook-input context object into the
// buffer's EditContext, so subagent/plan provenance survives into the
// stored AIEdit. A subagent_id is only meaningful when the surrogate says
// the edit came from a subagent.
func editContextFrom(hc *hookContext) *pending.EditContext {
	if hc == nil {
		return nil
	}
	ec := &pending.EditContext{
		PlanMode:   hc.PlanMode,
		AgentDepth: hc.AgentDepth,
	}
	if hc.IsSubagent {
		ec.SubagentID = hc.SubagentID
	}
	return ec
}

func countEdits(b *pending.Buffer) int {
	n := 0
	for _, h := range b.FileHistories {
		n += len(h.Edits)
	}
	return n
}

// resolveOldContent honors the explicit old_content field when present;
// otherwise it falls back to the committed HEAD version of the file, if
// any. A file with no HEAD version (new file, not yet committed) falls
// through to RecordEdit's own new-file handling.
func resolveOldContent(rawPath string, explicit *string) *string {
	if explicit != nil {
		return explicit
	}

	repo, err := gitutil.OpenRepository()
	if err != nil {
		return nil
	}
	relPath, err := paths.ToRepoRelative(rawPath)
	if err != nil {
		return nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil
	}
	file, err := commit.File(relPath)
	if err != nil {
		return nil // not in the committed tree; let RecordEdit treat it as new
	}
	content, err := file.Contents()
	if err != nil {
		return nil
	}
	return &content
}
