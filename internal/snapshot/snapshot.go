// Package snapshot implements ContentSnapshot, the immutable
// (content, hash, line-count, timestamp) triple every AIEdit is built from.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ContentSnapshot is an immutable capture of a file's full content at a
// point in time. Two snapshots with equal ContentHash are treated as
// byte-identical for classification purposes.
type ContentSnapshot struct {
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Timestamp   time.Time `json:"timestamp"`
	LineCount   int       `json:"line_count"`
}

// New builds a ContentSnapshot over content, hashing it with SHA-256 and
// truncating to a 16-byte hex prefix.
func New(content string, at time.Time) ContentSnapshot {
	return ContentSnapshot{
		Content:     content,
		ContentHash: hashContent(content),
		Timestamp:   at.UTC(),
		LineCount:   countLines(content),
	}
}

// Empty returns the ContentSnapshot used for `original` when a file is new.
func Empty(at time.Time) ContentSnapshot {
	return New("", at)
}

// hashContent returns the first 16 bytes (32 hex chars) of
// SHA-256(content).
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}

// countLines counts lines the way Lines() splits them: a trailing newline
// does not produce a spurious empty final line, but content containing no
// newline still counts as one line unless it is empty.
func countLines(content string) int {
	if content == "" {
		return 0
	}
	return len(Lines(content))
}

// Lines splits content into lines, trimming exactly one trailing newline
// so a final "\n" does not produce a spurious empty line.
func Lines(content string) []string {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(content, "\n")
	if trimmed == "" {
		return []string{""}
	}
	return strings.Split(trimmed, "\n")
}
