// Package notes implements the notes store: it serializes an
// AIAttribution record under a dedicated git notes ref, with size
// guardrails and schema-skew tolerance.
//
// go-git/v5 has no notes porcelain, so the ref is built directly on its
// plumbing the way git itself lays notes out on disk: the ref's tip is a
// commit whose tree fans out by the target commit's full hex SHA
// (`<first 2 hex>/<remaining 38 hex>` as a tree-of-trees), with a blob at
// the leaf holding the compact JSON payload, built and moved by hand the
// same way any other git ref update is constructed from tree entries,
// just pointed at a notes ref instead of a branch tip.
package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/dotsetlabs/whogitit/internal/analyzer"
	"github.com/dotsetlabs/whogitit/internal/gitutil"
	"github.com/dotsetlabs/whogitit/internal/logging"
	"github.com/dotsetlabs/whogitit/internal/paths"
)

// Version is the AIAttribution schema version. It is deliberately
// independent of the PendingBuffer's on-disk version: the two formats
// evolve separately.
const Version = 3

// Size guardrails: warn above WarnSize, hard-fail above MaxSize.
const (
	WarnSize = 512 * 1024
	MaxSize  = 4 * 1024 * 1024
)

// SessionMetadata is the session identity carried into a stored record.
type SessionMetadata struct {
	SessionID string    `json:"session_id"`
	ModelID   string    `json:"model_id"`
	StartedAt time.Time `json:"started_at"`
	RepoRoot  string    `json:"repo_root,omitempty"`
}

// PromptInfo is one prompt's record as embedded in a stored AIAttribution,
// ordered by PromptIndex.
type PromptInfo struct {
	Index         int       `json:"index"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
	AffectedFiles []string  `json:"affected_files"`
}

// AIAttribution is the commit-bound attribution record, one per
// commit, stored with overwrite-on-rewrite semantics.
type AIAttribution struct {
	Version int                              `json:"version"`
	Session SessionMetadata                  `json:"session"`
	Prompts []PromptInfo                     `json:"prompts"`
	Files   []analyzer.FileAttributionResult `json:"files"`
}

// ErrNoteTooLarge is returned by Store when the encoded payload exceeds
// the size limit. The caller's pending buffer is left untouched.
type ErrNoteTooLarge struct {
	Size  int
	Limit int
}

func (e *ErrNoteTooLarge) Error() string {
	limit := e.Limit
	if limit <= 0 {
		limit = MaxSize
	}
	return fmt.Sprintf("attribution payload is %d bytes, exceeding the %d byte limit; reduce pending scope or shorten prompts", e.Size, limit)
}

// ErrNotFound is returned by Fetch when no note exists for a commit.
var ErrNotFound = errors.New("no attribution recorded for commit")

// Store serializes attribution as compact JSON and commits it into the
// notes ref at the fanout path for commitOID, overwriting any existing
// note for that commit. Returns the new notes-ref commit hash and, if the
// payload exceeded WarnSize, a non-nil warning that callers may log
// without treating it as failure.
func Store(repo *git.Repository, commitOID plumbing.Hash, attribution *AIAttribution) (newRef plumbing.Hash, warning error, err error) {
	return StoreWithLimits(repo, commitOID, attribution, WarnSize, MaxSize)
}

// StoreWithLimits is Store with caller-supplied size thresholds, for
// configurations that tune [notes].warn_size_bytes / max_size_bytes.
// Non-positive thresholds fall back to the defaults.
func StoreWithLimits(repo *git.Repository, commitOID plumbing.Hash, attribution *AIAttribution, warnSize, maxSize int) (newRef plumbing.Hash, warning error, err error) {
	if warnSize <= 0 {
		warnSize = WarnSize
	}
	if maxSize <= 0 {
		maxSize = MaxSize
	}

	data, err := json.Marshal(attribution)
	if err != nil {
		return plumbing.ZeroHash, nil, fmt.Errorf("encoding attribution: %w", err)
	}
	if len(data) > maxSize {
		return plumbing.ZeroHash, nil, &ErrNoteTooLarge{Size: len(data), Limit: maxSize}
	}
	if len(data) > warnSize {
		warning = fmt.Errorf("attribution payload is %d bytes, above the %d byte warn threshold", len(data), warnSize)
	}

	newRef, err = writeNote(repo, commitOID, data)
	return newRef, warning, err
}

func writeNote(repo *git.Repository, commitOID plumbing.Hash, data []byte) (plumbing.Hash, error) {
	root, _, err := loadNotesTree(repo) // absence is fine: first note ever written
	if err != nil {
		return plumbing.ZeroHash, err
	}

	blobHash, err := writeBlob(repo, data)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("writing note blob: %w", err)
	}

	newRoot, err := setFanoutEntry(repo, root, commitOID.String(), blobHash)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("updating notes tree: %w", err)
	}

	return commitNotesTree(repo, newRoot, fmt.Sprintf("whogitit: attribute %s", commitOID.String()))
}

// Fetch reads the stored AIAttribution for commitOID, tolerating schema
// skew: a version older than Version loads in compatibility mode
// (missing newer fields simply decode to zero values); a version newer than
// Version loads best-effort, ignoring fields this build doesn't know about
// (encoding/json already does this for unknown object keys). Neither case
// is ever treated as an error.
func Fetch(repo *git.Repository, commitOID plumbing.Hash) (*AIAttribution, error) {
	data, err := fetchRaw(repo, commitOID)
	if err != nil {
		return nil, err
	}
	var a AIAttribution
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decoding attribution for %s: %w", commitOID, err)
	}
	switch {
	case a.Version < Version:
		logging.Warn(context.Background(), "attribution schema older than this build, loading in compatibility mode",
			"commit", commitOID.String(), "note_version", a.Version, "current_version", Version)
	case a.Version > Version:
		logging.Warn(context.Background(), "attribution schema newer than this build, loading best-effort",
			"commit", commitOID.String(), "note_version", a.Version, "current_version", Version)
	}
	return &a, nil
}

func fetchRaw(repo *git.Repository, commitOID plumbing.Hash) ([]byte, error) {
	root, _, err := loadNotesTree(repo)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrNotFound
	}
	blobHash, ok, err := lookupFanoutEntry(repo, root, commitOID.String())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return readBlob(repo, blobHash)
}

// Has reports whether a note exists for commitOID.
func Has(repo *git.Repository, commitOID plumbing.Hash) (bool, error) {
	_, err := fetchRaw(repo, commitOID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the note for commitOID, if any. Removing a commit with no
// note is a no-op.
func Remove(repo *git.Repository, commitOID plumbing.Hash) error {
	root, _, err := loadNotesTree(repo)
	if err != nil {
		return err
	}
	if root == nil {
		return nil
	}
	newRoot, removed, err := removeFanoutEntry(repo, root, commitOID.String())
	if err != nil {
		return fmt.Errorf("removing note: %w", err)
	}
	if !removed {
		return nil
	}
	_, err = commitNotesTree(repo, newRoot, fmt.Sprintf("whogitit: remove attribution for %s", commitOID.String()))
	return err
}

// Copy propagates the note for fromOID onto toOID, for cherry-pick
// propagation by an external caller. Unlike Store, Copy refuses to
// overwrite an existing note on the target.
func Copy(repo *git.Repository, fromOID, toOID plumbing.Hash) error {
	has, err := Has(repo, toOID)
	if err != nil {
		return err
	}
	if has {
		return fmt.Errorf("copy: a note already exists for %s", toOID)
	}
	data, err := fetchRaw(repo, fromOID)
	if err != nil {
		return fmt.Errorf("copy: no note for source %s: %w", fromOID, err)
	}
	_, err = writeNote(repo, toOID, data)
	return err
}

// ListAttributed returns every commit OID with a stored attribution, by
// walking the notes tree's fanout structure.
func ListAttributed(repo *git.Repository) ([]plumbing.Hash, error) {
	root, _, err := loadNotesTree(repo)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	var out []plumbing.Hash
	for _, top := range root.Entries {
		if len(top.Name) != 2 {
			continue
		}
		subtree, err := object.GetTree(repo.Storer, top.Hash)
		if err != nil {
			continue
		}
		for _, leaf := range subtree.Entries {
			hexStr := top.Name + leaf.Name
			if h := plumbing.NewHash(hexStr); !h.IsZero() {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

// --- fanout tree plumbing ---

// notesRefName returns the fixed notes ref, sourced from
// internal/paths so the ref string has one definition shared across the
// whole module.
func notesRefName() plumbing.ReferenceName {
	return plumbing.ReferenceName(paths.NotesRef)
}

// RefName exposes the notes ref name for callers (e.g. doctor checks,
// retention reachability walks) that need to reference it directly.
func RefName() plumbing.ReferenceName { return notesRefName() }

// loadNotesTree resolves the notes ref's tip commit and its root tree.
// A missing ref is reported as (nil, zero-hash, nil), not an error.
func loadNotesTree(repo *git.Repository) (*object.Tree, plumbing.Hash, error) {
	ref, err := repo.Reference(notesRefName(), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, plumbing.ZeroHash, nil
		}
		return nil, plumbing.ZeroHash, fmt.Errorf("resolving notes ref: %w", err)
	}
	commit, err := object.GetCommit(repo.Storer, ref.Hash())
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("reading notes commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("reading notes tree: %w", err)
	}
	return tree, ref.Hash(), nil
}

func writeBlob(repo *git.Repository, data []byte) (plumbing.Hash, error) {
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return repo.Storer.SetEncodedObject(obj)
}

func readBlob(repo *git.Repository, hash plumbing.Hash) ([]byte, error) {
	blob, err := object.GetBlob(repo.Storer, hash)
	if err != nil {
		return nil, fmt.Errorf("reading note blob: %w", err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return io.ReadAll(r)
}

func writeTree(repo *git.Repository, entries []object.TreeEntry) (plumbing.Hash, error) {
	// Git requires canonically sorted tree entries; without this a real
	// `git notes --ref=...` reader rejects the tree as malformed.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	t := object.Tree{Entries: entries}
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := t.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return repo.Storer.SetEncodedObject(obj)
}

// setFanoutEntry inserts or replaces the fanout entry for hexSHA (full
// 40-char commit hash) pointing to blobHash, rebuilding the two affected
// tree levels. root may be nil (first note ever written).
func setFanoutEntry(repo *git.Repository, root *object.Tree, hexSHA string, blobHash plumbing.Hash) (plumbing.Hash, error) {
	fanout, leaf := hexSHA[:2], hexSHA[2:]

	var subEntries []object.TreeEntry
	if root != nil {
		for _, e := range root.Entries {
			if e.Name != fanout {
				continue
			}
			subtree, err := object.GetTree(repo.Storer, e.Hash)
			if err != nil {
				break
			}
			subEntries = append(subEntries, subtree.Entries...)
		}
	}
	subEntries = upsertEntry(subEntries, leaf, blobHash, filemode.Regular)

	subHash, err := writeTree(repo, subEntries)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	var rootEntries []object.TreeEntry
	if root != nil {
		rootEntries = append(rootEntries, root.Entries...)
	}
	rootEntries = upsertEntry(rootEntries, fanout, subHash, filemode.Dir)

	return writeTree(repo, rootEntries)
}

// lookupFanoutEntry resolves the blob hash for hexSHA under root, if any.
func lookupFanoutEntry(repo *git.Repository, root *object.Tree, hexSHA string) (plumbing.Hash, bool, error) {
	fanout, leaf := hexSHA[:2], hexSHA[2:]
	for _, e := range root.Entries {
		if e.Name != fanout {
			continue
		}
		subtree, err := object.GetTree(repo.Storer, e.Hash)
		if err != nil {
			return plumbing.ZeroHash, false, fmt.Errorf("reading fanout subtree: %w", err)
		}
		for _, leafEntry := range subtree.Entries {
			if leafEntry.Name == leaf {
				return leafEntry.Hash, true, nil
			}
		}
		return plumbing.ZeroHash, false, nil
	}
	return plumbing.ZeroHash, false, nil
}

// removeFanoutEntry removes the entry for hexSHA, if present, rebuilding
// the two affected tree levels. Reports whether anything was removed.
func removeFanoutEntry(repo *git.Repository, root *object.Tree, hexSHA string) (plumbing.Hash, bool, error) {
	fanout, leaf := hexSHA[:2], hexSHA[2:]

	var rootEntries []object.TreeEntry
	removed := false
	for _, e := range root.Entries {
		if e.Name != fanout {
			rootEntries = append(rootEntries, e)
			continue
		}
		subtree, err := object.GetTree(repo.Storer, e.Hash)
		if err != nil {
			return plumbing.ZeroHash, false, fmt.Errorf("reading fanout subtree: %w", err)
		}
		var subEntries []object.TreeEntry
		for _, leafEntry := range subtree.Entries {
			if leafEntry.Name == leaf {
				removed = true
				continue
			}
			subEntries = append(subEntries, leafEntry)
		}
		if len(subEntries) == 0 {
			continue // drop the now-empty fanout directory
		}
		subHash, err := writeTree(repo, subEntries)
		if err != nil {
			return plumbing.ZeroHash, false, err
		}
		rootEntries = append(rootEntries, object.TreeEntry{Name: fanout, Mode: filemode.Dir, Hash: subHash})
	}

	if !removed {
		return plumbing.ZeroHash, false, nil
	}
	newRoot, err := writeTree(repo, rootEntries)
	return newRoot, true, err
}

func upsertEntry(entries []object.TreeEntry, name string, hash plumbing.Hash, mode filemode.FileMode) []object.TreeEntry {
	for i, e := range entries {
		if e.Name == name {
			entries[i].Hash = hash
			entries[i].Mode = mode
			return entries
		}
	}
	return append(entries, object.TreeEntry{Name: name, Mode: mode, Hash: hash})
}

func commitNotesTree(repo *git.Repository, treeHash plumbing.Hash, message string) (plumbing.Hash, error) {
	oldRef, err := repo.Reference(notesRefName(), true)
	var parents []plumbing.Hash
	if err == nil {
		parents = []plumbing.Hash{oldRef.Hash()}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, fmt.Errorf("resolving notes ref: %w", err)
	}

	// Real `git notes` signs the notes commit with the configured git user;
	// do the same so the notes ref history reads like any other ref's.
	author := gitutil.CurrentAuthor(repo)
	sig := object.Signature{Name: author.Name, Email: author.Email, When: time.Now()}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}

	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	commitHash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if err := repo.Storer.SetReference(plumbing.NewHashReference(notesRefName(), commitHash)); err != nil {
		return plumbing.ZeroHash, err
	}
	return commitHash, nil
}
