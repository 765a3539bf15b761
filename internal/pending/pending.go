// Package pending implements the PendingBuffer: the in-progress,
// per-session, per-file capture of every model-driven edit, durably
// persisted with a write-to-temp-then-rename discipline so readers never
// observe a torn write.
package pending

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetlabs/whogitit/internal/paths"
	"github.com/dotsetlabs/whogitit/internal/snapshot"
	"github.com/dotsetlabs/whogitit/internal/validation"
)

// Version is the on-disk PendingBuffer schema version. It is deliberately
// independent of the notes AIAttribution schema version: a buffer is a
// transient capture format, not the long-lived record.
const Version = 2

// DefaultMaxPendingAgeHours is how old a buffer can get before Status
// reports it stale.
const DefaultMaxPendingAgeHours = 24

// SessionInfo describes the session a PendingBuffer belongs to.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	ModelID     string    `json:"model_id"`
	StartedAt   time.Time `json:"started_at"`
	PromptCount int       `json:"prompt_count"`
}

// EditContext carries optional context about the agent invocation that
// produced an edit.
type EditContext struct {
	PlanMode   bool   `json:"plan_mode,omitempty"`
	SubagentID string `json:"subagent_id,omitempty"`
	AgentDepth uint8  `json:"agent_depth,omitempty"`
	PlanStep   string `json:"plan_step,omitempty"`
}

// AIEdit is one immutable model-driven edit: a pair of full-content
// snapshots tagged with the prompt that produced them.
type AIEdit struct {
	EditID      string                   `json:"edit_id"`
	Prompt      string                   `json:"prompt"`
	PromptIndex int                      `json:"prompt_index"`
	Tool        string                   `json:"tool"`
	Before      snapshot.ContentSnapshot `json:"before"`
	After       snapshot.ContentSnapshot `json:"after"`
	Timestamp   time.Time                `json:"timestamp"`
	Context     *EditContext             `json:"context,omitempty"`
}

// FileEditHistory is the ordered edit history for one repo-relative path.
//
// Two invariants hold: edits[0].Before.ContentHash == Original.ContentHash
// unless WasNewFile (then Original is the empty snapshot), and for every
// adjacent pair edits[i+1].Before.ContentHash == edits[i].After.ContentHash,
// enforced by RecordEdit substituting the previous After when a caller
// omits the before-content.
type FileEditHistory struct {
	Path       string                   `json:"path"`
	Original   snapshot.ContentSnapshot `json:"original"`
	Edits      []AIEdit                 `json:"edits"`
	WasNewFile bool                     `json:"was_new_file"`
}

// PromptRecord is the per-prompt ledger entry emitted by RecordEdit.
type PromptRecord struct {
	Index         int       `json:"index"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
	AffectedFiles []string  `json:"affected_files"`
}

// Buffer is the PendingBuffer: the full capture state for one session,
// lazily created on the first edit and discarded on successful finalize.
type Buffer struct {
	Version       int                        `json:"version"`
	Session       SessionInfo                `json:"session"`
	FileHistories map[string]FileEditHistory `json:"file_histories"`
	PromptCounter int                        `json:"prompt_counter"`
	Prompts       []PromptRecord             `json:"prompts"`
}

// New creates an empty PendingBuffer for a session.
func New(sessionID, modelID string, at time.Time) *Buffer {
	return &Buffer{
		Version: Version,
		Session: SessionInfo{
			SessionID: sessionID,
			ModelID:   modelID,
			StartedAt: at.UTC(),
		},
		FileHistories: make(map[string]FileEditHistory),
	}
}

// Redactor redacts prompt text before it is stored, matching the capture
// pipeline: editor surrogate → redact → pending buffer.
type Redactor interface {
	Redact(text string) string
}

// RecordEdit appends one AIEdit for path. When oldContent is nil and the
// path already has history, the buffer substitutes the last After snapshot
// to keep the edit chain contiguous; when nil and no history exists, it
// substitutes "" and marks the file as new. The prompt is redacted (if
// redactor is non-nil) before storage, then prompt_counter advances by one
// and a PromptRecord is appended. editCtx is optional agent-invocation
// context carried onto the edit verbatim; nil when the surrogate sent none.
func (b *Buffer) RecordEdit(path string, oldContent *string, newContent, tool, prompt string, redactor Redactor, editCtx *EditContext, at time.Time) (AIEdit, error) {
	if path == "" {
		return AIEdit{}, errors.New("path cannot be empty")
	}

	hist, existed := b.FileHistories[path]

	var before snapshot.ContentSnapshot
	wasNewFile := false

	switch {
	case oldContent != nil:
		before = snapshot.New(*oldContent, at)
		if !existed {
			wasNewFile = *oldContent == ""
		} else {
			wasNewFile = hist.WasNewFile
		}
	case existed && len(hist.Edits) > 0:
		before = hist.Edits[len(hist.Edits)-1].After
		wasNewFile = hist.WasNewFile
	case existed:
		before = hist.Original
		wasNewFile = hist.WasNewFile
	default:
		before = snapshot.Empty(at)
		wasNewFile = true
	}

	if !existed {
		hist = FileEditHistory{
			Path:       path,
			Original:   before,
			WasNewFile: wasNewFile,
		}
	}

	redacted := prompt
	if redactor != nil {
		redacted = redactor.Redact(prompt)
	}

	editID := uuid.NewString()
	edit := AIEdit{
		EditID:      editID,
		Prompt:      redacted,
		PromptIndex: b.PromptCounter,
		Tool:        tool,
		Before:      before,
		After:       snapshot.New(newContent, at),
		Timestamp:   at.UTC(),
		Context:     editCtx,
	}

	hist.Edits = append(hist.Edits, edit)
	b.FileHistories[path] = hist

	b.Prompts = append(b.Prompts, PromptRecord{
		Index:         b.PromptCounter,
		Text:          redacted,
		Timestamp:     at.UTC(),
		AffectedFiles: []string{path},
	})
	b.PromptCounter++
	b.Session.PromptCount = b.PromptCounter

	return edit, nil
}

// Status summarizes a loaded buffer for CLI/doctor reporting.
type Status struct {
	SessionID string
	EditCount int
	FileCount int
	Stale     bool
	AgeHours  float64
}

// Status computes a Status snapshot relative to now, flagging the buffer
// stale once it exceeds maxAgeHours (default DefaultMaxPendingAgeHours).
func (b *Buffer) Status(now time.Time, maxAgeHours float64) Status {
	if maxAgeHours <= 0 {
		maxAgeHours = DefaultMaxPendingAgeHours
	}
	age := now.Sub(b.Session.StartedAt).Hours()
	editCount := 0
	for _, h := range b.FileHistories {
		editCount += len(h.Edits)
	}
	return Status{
		SessionID: b.Session.SessionID,
		EditCount: editCount,
		FileCount: len(b.FileHistories),
		Stale:     age > maxAgeHours,
		AgeHours:  age,
	}
}

// Load reads the PendingBuffer from its well-known repo-relative path.
// Absence is reported as (nil, nil), not an error. A structurally
// invalid file is reported as PendingCorrupt (non-fatal to callers, who
// should treat it as "no pending buffer" and start fresh).
func Load() (*Buffer, error) {
	p, err := paths.AbsPath(paths.PendingBufferFile)
	if err != nil {
		return nil, err
	}
	return LoadFrom(p)
}

// LoadFrom reads a PendingBuffer from an explicit path, for tests and tools
// operating outside the default repo-root resolution.
func LoadFrom(path string) (*Buffer, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is repo-relative or caller-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pending buffer: %w", err)
	}

	var b Buffer
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &ErrCorrupt{Path: path, Err: err}
	}
	if b.Version != Version {
		// A version this build doesn't recognize is not migrated by guesswork.
		return nil, &ErrCorrupt{Path: path, Err: fmt.Errorf("unsupported pending buffer version %d", b.Version)}
	}
	for _, h := range b.FileHistories {
		for _, e := range h.Edits {
			if err := validation.ValidateEditID(e.EditID); err != nil {
				return nil, &ErrCorrupt{Path: path, Err: err}
			}
		}
	}
	return &b, nil
}

// ErrCorrupt reports a structurally invalid pending buffer file.
type ErrCorrupt struct {
	Path string
	Err  error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("pending buffer at %s is not valid JSON: %v", e.Path, e.Err)
}

func (e *ErrCorrupt) Unwrap() error { return e.Err }

// Save durably persists b to its well-known repo-relative path using
// write-to-temp-then-rename, so a concurrent reader always sees either the
// prior file or the new one in full.
func Save(b *Buffer) error {
	p, err := paths.AbsPath(paths.PendingBufferFile)
	if err != nil {
		return err
	}
	return SaveTo(p, b)
}

// SaveTo persists b to an explicit path.
func SaveTo(path string, b *Buffer) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pending buffer: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ai-blame-pending-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op once rename succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("writing pending buffer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing pending buffer temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting pending buffer permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming pending buffer into place: %w", err)
	}
	return nil
}

// Discard removes the persisted PendingBuffer file, called on successful
// finalize.
func Discard() error {
	p, err := paths.AbsPath(paths.PendingBufferFile)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pending buffer: %w", err)
	}
	return nil
}
