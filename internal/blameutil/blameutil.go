// Package blameutil implements the blame correlator: it joins the
// host VCS's line blame with stored AIAttribution records to produce
// per-line provenance for any revision.
//
// go-git/v5's own Blame() has no move/copy detection, so this
// package shells to `git blame --line-porcelain -M -C` and parses the
// porcelain stream. go-git is still used to resolve the revision, read
// blob content at a revision, and open the notes store.
package blameutil

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/dotsetlabs/whogitit/internal/analyzer"
	"github.com/dotsetlabs/whogitit/internal/notes"
	"github.com/dotsetlabs/whogitit/internal/paths"
)

// previewLen is the max length of a prompt preview before truncation.
const previewLen = 60

// Hunk is one contiguous blame hunk: a run of final-revision lines
// attributed to a single commit.
type Hunk struct {
	CommitHash     string
	OrigStartLine  int // 1-indexed start line in the commit that introduced it
	FinalStartLine int // 1-indexed start line in the resolved revision
	LineCount      int
}

// LineBlame is one line's blame-plus-attribution result.
type LineBlame struct {
	LineNumber    int     `json:"line_number"`
	Content       string  `json:"content"`
	CommitHash    string  `json:"commit_hash"`
	Source        string  `json:"source"`
	EditID        string  `json:"edit_id,omitempty"`
	PromptIndex   *int    `json:"prompt_index,omitempty"`
	PromptPreview string  `json:"prompt_preview,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// BlameResult is the full per-line provenance for one file at one revision.
type BlameResult struct {
	SchemaVersion int         `json:"schema_version"`
	Path          string      `json:"path"`
	Revision      string      `json:"revision"`
	Lines         []LineBlame `json:"lines"`
}

// SchemaVersion is the machine output schema version for blame results
// (`whogitit.blame.v1`).
const SchemaVersion = 1

// Blame resolves revision (default "HEAD") to a commit, runs host-VCS line
// blame with move/copy detection, batch-prefetches attributions for every
// distinct commit referenced, and emits one LineBlame per line of the file
// at that revision.
func Blame(ctx context.Context, repo *git.Repository, path, revision string) (*BlameResult, error) {
	if revision == "" {
		revision = "HEAD"
	}

	commitHash, err := resolveRevision(repo, revision)
	if err != nil {
		return nil, fmt.Errorf("resolving revision %q: %w", revision, err)
	}

	content, err := readBlobAtRevision(repo, commitHash, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", path, revision, err)
	}

	hunks, err := runGitBlame(ctx, repoWorkdir(repo), path, commitHash.String())
	if err != nil {
		return nil, fmt.Errorf("running git blame: %w", err)
	}

	cache := newAttributionCache(repo)
	for _, h := range hunks {
		cache.prefetch(h.CommitHash)
	}

	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if content == "" {
		lines = nil
	}

	result := &BlameResult{
		SchemaVersion: SchemaVersion,
		Path:          path,
		Revision:      commitHash.String(),
	}

	for i, lineText := range lines {
		lineNumber := i + 1
		hunk := findHunk(hunks, lineNumber)
		lb := LineBlame{LineNumber: lineNumber, Content: lineText, Source: "unknown", Confidence: 0}
		if hunk != nil {
			lb.CommitHash = hunk.CommitHash
			origLine := hunk.OrigStartLine + (lineNumber - hunk.FinalStartLine)
			if attr := cache.get(hunk.CommitHash); attr != nil {
				if la, ok := lookupLineAttribution(attr, path, origLine); ok {
					applyAttribution(&lb, la, attr)
				}
			}
		}
		result.Lines = append(result.Lines, lb)
	}

	return result, nil
}

func applyAttribution(lb *LineBlame, la *analyzer.LineAttribution, attr *notes.AIAttribution) {
	lb.Source = string(la.Source.Kind)
	lb.EditID = la.EditID
	lb.Confidence = la.Confidence
	if la.PromptIndex != nil {
		lb.PromptIndex = la.PromptIndex
		for _, p := range attr.Prompts {
			if p.Index == *la.PromptIndex {
				lb.PromptPreview = truncatePreview(p.Text)
				break
			}
		}
	}
}

func truncatePreview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= previewLen {
		return s
	}
	return strings.TrimSpace(s[:previewLen]) + "..."
}

func lookupLineAttribution(attr *notes.AIAttribution, path string, origLine int) (*analyzer.LineAttribution, bool) {
	for _, f := range attr.Files {
		if f.Path != path {
			continue
		}
		for i := range f.Lines {
			if f.Lines[i].LineNumber == origLine {
				return &f.Lines[i], true
			}
		}
	}
	return nil, false
}

func findHunk(hunks []Hunk, finalLine int) *Hunk {
	for i := range hunks {
		h := &hunks[i]
		if finalLine >= h.FinalStartLine && finalLine < h.FinalStartLine+h.LineCount {
			return h
		}
	}
	return nil
}

func resolveRevision(repo *git.Repository, revision string) (plumbing.Hash, error) {
	h, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return *h, nil
}

func readBlobAtRevision(repo *git.Repository, commitHash plumbing.Hash, path string) (string, error) {
	commit, err := object.GetCommit(repo.Storer, commitHash)
	if err != nil {
		return "", err
	}
	file, err := commit.File(path)
	if err != nil {
		return "", fmt.Errorf("path %q not found at %s: %w", path, commitHash, err)
	}
	return file.Contents()
}

func repoWorkdir(repo *git.Repository) string {
	if wt, err := repo.Worktree(); err == nil {
		return wt.Filesystem.Root()
	}
	root, err := paths.RepoRoot()
	if err == nil {
		return root
	}
	return "."
}

// runGitBlame shells to `git blame --line-porcelain -M -C <rev> -- <path>`
// and parses the porcelain stream into hunks. go-git has no move/copy
// detection, so the host git binary is used directly here.
func runGitBlame(ctx context.Context, dir, path, revision string) ([]Hunk, error) {
	cmd := exec.CommandContext(ctx, "git", "blame", "--line-porcelain", "-M", "-C", revision, "--", path) //nolint:gosec // path/revision are validated upstream
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return parsePorcelain(stdout.Bytes())
}

// parsePorcelain parses `git blame --line-porcelain` output into hunks,
// coalescing consecutive final-revision lines attributed to the same
// commit starting at contiguous original lines into one Hunk.
func parsePorcelain(data []byte) ([]Hunk, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var hunks []Hunk
	var cur *Hunk

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "\t") {
			// Content line; only the headers matter for hunk assembly.
			continue
		}
		if isHeaderLine(line) {
			commitHash, origLine, finalLine, err := parseHeaderLine(line)
			if err != nil {
				continue
			}
			if cur != nil && cur.CommitHash == commitHash && finalLine == cur.FinalStartLine+cur.LineCount && origLine == cur.OrigStartLine+cur.LineCount {
				cur.LineCount++
				continue
			}
			if cur != nil {
				hunks = append(hunks, *cur)
			}
			cur = &Hunk{CommitHash: commitHash, OrigStartLine: origLine, FinalStartLine: finalLine, LineCount: 1}
		}
		// Everything else (author, summary, etc.) is metadata we don't need.
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return hunks, nil
}

// isHeaderLine reports whether line starts a new blame entry: 40 hex chars
// followed by three space-separated integers.
func isHeaderLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return false
	}
	if len(fields[0]) != 40 {
		return false
	}
	for _, c := range fields[0] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

func parseHeaderLine(line string) (commitHash string, origLine, finalLine int, err error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return "", 0, 0, fmt.Errorf("malformed porcelain header: %q", line)
	}
	origLine, err = strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, 0, err
	}
	finalLine, err = strconv.Atoi(fields[2])
	if err != nil {
		return "", 0, 0, err
	}
	return fields[0], origLine, finalLine, nil
}

// attributionCache is the per-invocation commit-id -> *AIAttribution
// cache: a plain owned map whose lifetime never exceeds one Blame call.
// Absent entries materialize on demand and may be nil to record a miss.
type attributionCache struct {
	repo    *git.Repository
	entries map[string]*notes.AIAttribution
}

func newAttributionCache(repo *git.Repository) *attributionCache {
	return &attributionCache{repo: repo, entries: make(map[string]*notes.AIAttribution)}
}

func (c *attributionCache) prefetch(commitHash string) {
	if _, ok := c.entries[commitHash]; ok {
		return
	}
	c.entries[commitHash] = c.fetch(commitHash)
}

func (c *attributionCache) get(commitHash string) *notes.AIAttribution {
	if attr, ok := c.entries[commitHash]; ok {
		return attr
	}
	attr := c.fetch(commitHash)
	c.entries[commitHash] = attr
	return attr
}

func (c *attributionCache) fetch(commitHash string) *notes.AIAttribution {
	h := plumbing.NewHash(commitHash)
	attr, err := notes.Fetch(c.repo, h)
	if err != nil {
		return nil
	}
	return attr
}
