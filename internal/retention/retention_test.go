package retention

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"

	"github.com/dotsetlabs/whogitit/internal/analyzer"
	"github.com/dotsetlabs/whogitit/internal/notes"
)

// buildRepo creates n empty commits on refs/heads/main, each committerTime
// apart, and attributes every one of them. Returns the repo and the commit
// hashes in commit order (oldest first).
func buildRepo(t *testing.T, n int, start time.Time, step time.Duration) (*git.Repository, []plumbing.Hash) {
	t.Helper()
	store := memory.NewStorage()
	repo, err := git.Init(store, nil)
	require.NoError(t, err)

	emptyTreeObj := repo.Storer.NewEncodedObject()
	emptyTreeObj.SetType(plumbing.TreeObject)
	require.NoError(t, (&object.Tree{}).Encode(emptyTreeObj))
	treeHash, err := repo.Storer.SetEncodedObject(emptyTreeObj)
	require.NoError(t, err)

	var hashes []plumbing.Hash
	var parent []plumbing.Hash
	for i := 0; i < n; i++ {
		sig := object.Signature{Name: "tester", Email: "tester@local", When: start.Add(time.Duration(i) * step)}
		commit := &object.Commit{Author: sig, Committer: sig, Message: "commit", TreeHash: treeHash, ParentHashes: parent}
		obj := repo.Storer.NewEncodedObject()
		obj.SetType(plumbing.CommitObject)
		require.NoError(t, commit.Encode(obj))
		h, err := repo.Storer.SetEncodedObject(obj)
		require.NoError(t, err)

		hashes = append(hashes, h)
		parent = []plumbing.Hash{h}

		_, _, err = notes.Store(repo, h, &notes.AIAttribution{
			Version: notes.Version,
			Session: notes.SessionMetadata{SessionID: "s"},
			Files:   []analyzer.FileAttributionResult{{Path: "f.go"}},
		})
		require.NoError(t, err)
	}

	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference("refs/heads/main", hashes[len(hashes)-1])))

	return repo, hashes
}

func TestComputeRetentionSets_AgeCutoff(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, hashes := buildRepo(t, 3, start, 40*24*time.Hour) // ~0, 40, 80 days apart
	now := start.Add(90 * 24 * time.Hour)

	sets, err := ComputeRetentionSets(repo, Policy{MaxAgeDays: 60, MinCommits: 0}, now)
	require.NoError(t, err)

	require.Contains(t, sets.ToDelete, hashes[0]) // 90 days old > 60
	require.Contains(t, sets.ToKeep, hashes[2])   // 10 days old < 60
}

// Retention floor: |to_keep| >= min(min_commits, total_commits), and
// to_delete and retained never overlap.
func TestComputeRetentionSets_MinCommitsFloor(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, hashes := buildRepo(t, 5, start, 100*24*time.Hour)
	now := start.Add(1000 * 24 * time.Hour) // every commit is "old"

	sets, err := ComputeRetentionSets(repo, Policy{MaxAgeDays: 1, MinCommits: 3}, now)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(sets.ToKeep), 3)
	require.Equal(t, len(hashes), len(sets.ToKeep)+len(sets.ToDelete))
}

func TestComputeRetentionSets_RetainedRefNeverDeleted(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, hashes := buildRepo(t, 2, start, 200*24*time.Hour)
	now := start.Add(1000 * 24 * time.Hour)

	sets, err := ComputeRetentionSets(repo, Policy{MaxAgeDays: 1, MinCommits: 0, RetainRefs: []string{"refs/heads/main"}}, now)
	require.NoError(t, err)

	require.Empty(t, sets.ToDelete)
	require.ElementsMatch(t, sets.ToKeep, hashes)
}

func TestApply_DryRunTouchesNothing(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, hashes := buildRepo(t, 1, start, 0)

	n, err := Apply(repo, Sets{ToDelete: []plumbing.Hash{hashes[0]}}, false, "test")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	has, err := notes.Has(repo, hashes[0])
	require.NoError(t, err)
	require.True(t, has)
}
