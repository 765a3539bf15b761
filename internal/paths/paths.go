// Package paths resolves the repository root and the well-known on-disk
// locations whogitit reads and writes, centralizing repo-relative file
// layout for a git-hook-driven tool.
package paths

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known repo-root-relative paths.
const (
	// PendingBufferFile is the PendingBuffer JSON document.
	PendingBufferFile = ".ai-blame-pending.json"

	// WhogititDir is the directory holding the audit log and local state.
	WhogititDir = ".whogitit"

	// AuditLogFile is the append-only hash-chained audit log.
	AuditLogFile = ".whogitit/audit.jsonl"

	// LogsDir is where per-session slog JSON logs are written.
	LogsDir = ".whogitit/logs"

	// ConfigFile is the project TOML configuration file.
	ConfigFile = ".whogitit.toml"

	// LocalConfigFile is an uncommitted local override layered on ConfigFile.
	LocalConfigFile = ".whogitit.local.toml"

	// NotesRef is the fixed git notes ref attribution records live under.
	NotesRef = "refs/notes/whogitit-attribution"
)

var (
	repoRootMu       sync.RWMutex
	repoRootCache    string
	repoRootCacheDir string
)

// RepoRoot returns the git repository root directory, resolved via
// 'git rev-parse --show-toplevel' so it works from any subdirectory.
// The result is cached per working directory.
func RepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}

	repoRootMu.RLock()
	if repoRootCache != "" && repoRootCacheDir == cwd {
		cached := repoRootCache
		repoRootMu.RUnlock()
		return cached, nil
	}
	repoRootMu.RUnlock()

	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not in a git repository: %w", err)
	}
	root := strings.TrimSpace(string(output))

	repoRootMu.Lock()
	repoRootCache = root
	repoRootCacheDir = cwd
	repoRootMu.Unlock()

	return root, nil
}

// ClearRepoRootCache clears the cached repository root. Used by tests that
// change directories between cases.
func ClearRepoRootCache() {
	repoRootMu.Lock()
	repoRootCache = ""
	repoRootCacheDir = ""
	repoRootMu.Unlock()
}

// RepoRootOr returns the repository root, or fallback if not inside a repo.
func RepoRootOr(fallback string) string {
	root, err := RepoRoot()
	if err != nil {
		return fallback
	}
	return root
}

// AbsPath resolves relPath against the repository root. An already-absolute
// path is returned unchanged.
func AbsPath(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return relPath, nil
	}
	root, err := RepoRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, relPath), nil
}

// ToRepoRelative normalizes an absolute or relative file path into a
// repo-root-relative, slash-separated path. Hook input file_path values may
// be absolute; the core always stores repo-relative paths.
func ToRepoRelative(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	root, err := RepoRoot()
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("path %q is not under repository root: %w", p, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside repository root", p)
	}
	return filepath.ToSlash(rel), nil
}
