// Package audit implements the tamper-evident append-only audit log:
// a hash-chained JSONL file at `.whogitit/audit.jsonl`, mode 0600, with
// re-entrant POSIX user-identity lookup.
package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/dotsetlabs/whogitit/internal/logging"
	"github.com/dotsetlabs/whogitit/internal/paths"
)

// EventType is the closed set of audit event kinds.
type EventType string

const (
	EventDelete         EventType = "delete"
	EventExport         EventType = "export"
	EventRetentionApply EventType = "retention_apply"
	EventConfigChange   EventType = "config_change"
	EventRedaction      EventType = "redaction"
)

// Event is one append-only audit log entry. PrevHash is nil for the first
// event in the log; EventHash is computed over the JSON encoding of the
// event with EventHash itself omitted.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
	User      string         `json:"user,omitempty"`
	PrevHash  string         `json:"prev_hash,omitempty"`
	EventHash string         `json:"event_hash"`
}

// hashableEvent is Event minus EventHash, used to compute the hash input
// deterministically (stable field order via struct tags, not map order).
type hashableEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
	User      string         `json:"user,omitempty"`
	PrevHash  string         `json:"prev_hash,omitempty"`
}

func computeHash(e Event) (string, error) {
	h := hashableEvent{Timestamp: e.Timestamp, EventType: e.EventType, Details: e.Details, User: e.User, PrevHash: e.PrevHash}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encoding event for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}

// CurrentUser resolves the real identity of the process owner: prefer the
// POSIX password-database entry (os/user.Current(), the portable stdlib
// equivalent of getpwuid_r), warning via internal/logging if it disagrees
// with $USER, and falling back to the environment entirely when the
// syscall fails.
func CurrentUser() string {
	envUser := os.Getenv("USER")
	if envUser == "" {
		envUser = os.Getenv("USERNAME")
	}

	u, err := user.Current()
	if err != nil {
		return envUser
	}
	if envUser != "" && envUser != u.Username {
		logging.Warn(context.Background(), "audit: $USER disagrees with system identity", "env_user", envUser, "system_user", u.Username)
	}
	if u.Username != "" {
		return u.Username
	}
	return envUser
}

// Append writes one Event to the audit log, filling PrevHash from the
// last event's EventHash (nil for the first event) and computing
// EventHash. The file is opened in append mode, created with mode 0600 if
// absent, and the write is flushed and fsynced before returning success.
func Append(eventType EventType, details map[string]any) error {
	return AppendAt(defaultLogPath, eventType, details, time.Now())
}

// AppendAt writes an event at an explicit path and timestamp, for tests
// and tools operating outside the default repo-root resolution.
func AppendAt(logPath func() (string, error), eventType EventType, details map[string]any, at time.Time) error {
	p, err := logPath()
	if err != nil {
		return err
	}

	prevHash, err := lastEventHash(p)
	if err != nil {
		return err
	}

	e := Event{
		Timestamp: at.UTC(),
		EventType: eventType,
		Details:   details,
		User:      CurrentUser(),
		PrevHash:  prevHash,
	}
	e.EventHash, err = computeHash(e)
	if err != nil {
		return err
	}

	return appendLine(p, e)
}

func defaultLogPath() (string, error) {
	return paths.AbsPath(paths.AuditLogFile)
}

func appendLine(path string, e Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // intentional audit log path
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsyncing audit log: %w", err)
	}
	return nil
}

func lastEventHash(path string) (string, error) {
	events, err := ReadAll(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if len(events) == 0 {
		return "", nil
	}
	return events[len(events)-1].EventHash, nil
}

// ReadAll reads every event from the log at path, in file order.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path) //nolint:gosec // repo-managed path
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("parsing audit log line: %w", err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// ErrChainBroken reports the first event whose hash chain fails to verify.
type ErrChainBroken struct {
	Index  int
	Reason string
}

func (e *ErrChainBroken) Error() string {
	return fmt.Sprintf("audit chain broken at event %d: %s", e.Index, e.Reason)
}

// VerifyChain validates that the log at path is a well-formed hash chain:
// the first event has no PrevHash, every subsequent event's
// PrevHash equals the prior event's EventHash, and every stored EventHash
// recomputes. Detecting a break is reported, never fatal; appends to the
// log continue regardless.
func VerifyChain(path string) error {
	events, err := ReadAll(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return VerifyEvents(events)
}

// VerifyEvents runs the same checks as VerifyChain over an in-memory slice.
func VerifyEvents(events []Event) error {
	for i, e := range events {
		wantPrev := ""
		if i > 0 {
			wantPrev = events[i-1].EventHash
		}
		if e.PrevHash != wantPrev {
			return &ErrChainBroken{Index: i, Reason: fmt.Sprintf("prev_hash %q does not match prior event_hash %q", e.PrevHash, wantPrev)}
		}
		got, err := computeHash(e)
		if err != nil {
			return err
		}
		if got != e.EventHash {
			return &ErrChainBroken{Index: i, Reason: fmt.Sprintf("event_hash %q does not recompute (got %q)", e.EventHash, got)}
		}
	}
	return nil
}

// ErrNotFound is a sentinel some callers match on to distinguish "no log
// yet" from a real read failure; ReadAll/VerifyChain instead report
// os.IsNotExist directly, but this is kept for callers that want an
// errors.Is-friendly check.
var ErrNotFound = errors.New("audit log not found")
