package notes

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"

	"github.com/dotsetlabs/whogitit/internal/analyzer"
)

// newTestRepoWithCommit builds an in-memory repository with a single empty
// commit and returns the repo and that commit's hash, so notes tests don't
// need a real working tree on disk.
func newTestRepoWithCommit(t *testing.T) (*git.Repository, plumbing.Hash) {
	t.Helper()
	store := memory.NewStorage()
	repo, err := git.Init(store, nil)
	require.NoError(t, err)

	emptyTree := object.Tree{}
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	require.NoError(t, emptyTree.Encode(obj))
	treeHash, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)

	sig := object.Signature{Name: "tester", Email: "tester@local", When: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	commit := &object.Commit{Author: sig, Committer: sig, Message: "init", TreeHash: treeHash}
	cobj := repo.Storer.NewEncodedObject()
	cobj.SetType(plumbing.CommitObject)
	require.NoError(t, commit.Encode(cobj))
	commitHash, err := repo.Storer.SetEncodedObject(cobj)
	require.NoError(t, err)

	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(plumbing.HEAD, commitHash)))

	return repo, commitHash
}

func sampleAttribution() *AIAttribution {
	return &AIAttribution{
		Version: Version,
		Session: SessionMetadata{SessionID: "sess-1", ModelID: "claude-x"},
		Prompts: []PromptInfo{{Index: 0, Text: "do the thing", AffectedFiles: []string{"main.go"}}},
		Files: []analyzer.FileAttributionResult{
			{Path: "main.go", Summary: analyzer.AttributionSummary{TotalLines: 1, AI: 1}},
		},
	}
}

func TestStoreFetchRoundTrip(t *testing.T) {
	repo, commitHash := newTestRepoWithCommit(t)

	_, warn, err := Store(repo, commitHash, sampleAttribution())
	require.NoError(t, err)
	require.Nil(t, warn)

	has, err := Has(repo, commitHash)
	require.NoError(t, err)
	require.True(t, has)

	got, err := Fetch(repo, commitHash)
	require.NoError(t, err)
	require.Equal(t, "sess-1", got.Session.SessionID)
	require.Equal(t, Version, got.Version)
	require.Len(t, got.Files, 1)
	require.Equal(t, "main.go", got.Files[0].Path)

	list, err := ListAttributed(repo)
	require.NoError(t, err)
	require.Contains(t, list, commitHash)
}

// Overwrite semantics: store(c, A1); store(c, A2); fetch(c) == A2.
func TestStoreOverwrites(t *testing.T) {
	repo, commitHash := newTestRepoWithCommit(t)

	a1 := sampleAttribution()
	_, _, err := Store(repo, commitHash, a1)
	require.NoError(t, err)

	a2 := sampleAttribution()
	a2.Session.SessionID = "sess-2"
	_, _, err = Store(repo, commitHash, a2)
	require.NoError(t, err)

	got, err := Fetch(repo, commitHash)
	require.NoError(t, err)
	require.Equal(t, "sess-2", got.Session.SessionID)
}

func TestFetchMissingReturnsNotFound(t *testing.T) {
	repo, commitHash := newTestRepoWithCommit(t)
	_, err := Fetch(repo, commitHash)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	repo, commitHash := newTestRepoWithCommit(t)
	_, _, err := Store(repo, commitHash, sampleAttribution())
	require.NoError(t, err)

	require.NoError(t, Remove(repo, commitHash))

	has, err := Has(repo, commitHash)
	require.NoError(t, err)
	require.False(t, has)
}

func TestCopyRefusesOverwrite(t *testing.T) {
	repo, commitHash := newTestRepoWithCommit(t)
	_, _, err := Store(repo, commitHash, sampleAttribution())
	require.NoError(t, err)

	other := plumbing.NewHash("1111111111111111111111111111111111111111")
	require.NoError(t, Copy(repo, commitHash, other))

	has, err := Has(repo, other)
	require.NoError(t, err)
	require.True(t, has)

	// Second copy onto the same target must fail (non-overwrite semantics).
	err = Copy(repo, commitHash, other)
	require.Error(t, err)
}

// Size guard: Store rejects payloads over MaxSize without mutating
// the repo.
func TestStoreRejectsOversizedPayload(t *testing.T) {
	repo, commitHash := newTestRepoWithCommit(t)

	huge := sampleAttribution()
	big := make([]analyzer.LineAttribution, 0, 1)
	filler := make([]byte, MaxSize+1)
	for i := range filler {
		filler[i] = 'x'
	}
	big = append(big, analyzer.LineAttribution{Content: string(filler)})
	huge.Files[0].Lines = big

	_, _, err := Store(repo, commitHash, huge)
	var tooLarge *ErrNoteTooLarge
	require.ErrorAs(t, err, &tooLarge)

	has, hErr := Has(repo, commitHash)
	require.NoError(t, hErr)
	require.False(t, has)
}
