// Package retention implements the retention engine: it computes
// delete/keep sets for attributed commits by age, protected refs, and a
// minimum-keep floor, then applies deletions through the notes store.
package retention

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/dotsetlabs/whogitit/internal/audit"
	"github.com/dotsetlabs/whogitit/internal/notes"
)

// Policy configures one retention run.
type Policy struct {
	MaxAgeDays int      // 0 means "no age cutoff" (every commit is within policy)
	MinCommits int      // minimum number of attributed commits to always keep
	RetainRefs []string // refs whose history is always kept regardless of age
}

// Sets is the result of ComputeRetentionSets: a partition of every
// attributed commit into ToDelete and ToKeep.
type Sets struct {
	ToDelete []plumbing.Hash
	ToKeep   []plumbing.Hash
}

// ComputeRetentionSets partitions every attributed commit in the notes
// store by age and ref reachability, then rescues commits back into
// ToKeep (in insertion order, no age preference) until the min-commits
// floor is satisfied or ToDelete is exhausted.
func ComputeRetentionSets(repo *git.Repository, policy Policy, now time.Time) (Sets, error) {
	commits, err := notes.ListAttributed(repo)
	if err != nil {
		return Sets{}, fmt.Errorf("listing attributed commits: %w", err)
	}

	retained, err := reachableFromRefs(repo, policy.RetainRefs)
	if err != nil {
		return Sets{}, fmt.Errorf("walking retained refs: %w", err)
	}

	var cutoff time.Time
	hasCutoff := policy.MaxAgeDays > 0
	if hasCutoff {
		cutoff = now.AddDate(0, 0, -policy.MaxAgeDays)
	}

	var toDelete, toKeep []plumbing.Hash
	for _, h := range commits {
		if retained[h] {
			toKeep = append(toKeep, h)
			continue
		}
		if !hasCutoff {
			toKeep = append(toKeep, h)
			continue
		}
		commitTime, err := commitTimestamp(repo, h)
		if err != nil {
			// A commit the notes ref references but the repo no longer has
			// is treated as eligible for deletion; it's unreachable either way.
			toDelete = append(toDelete, h)
			continue
		}
		if commitTime.Before(cutoff) {
			toDelete = append(toDelete, h)
		} else {
			toKeep = append(toKeep, h)
		}
	}

	for len(toKeep) < policy.MinCommits && len(toDelete) > 0 {
		toKeep = append(toKeep, toDelete[0])
		toDelete = toDelete[1:]
	}

	return Sets{ToDelete: toDelete, ToKeep: toKeep}, nil
}

func commitTimestamp(repo *git.Repository, h plumbing.Hash) (time.Time, error) {
	c, err := object.GetCommit(repo.Storer, h)
	if err != nil {
		return time.Time{}, err
	}
	return c.Committer.When, nil
}

// reachableFromRefs returns the set of commit hashes reachable from the
// history of every named ref, walking parents via go-git's commit-log
// iterator.
func reachableFromRefs(repo *git.Repository, refs []string) (map[plumbing.Hash]bool, error) {
	out := make(map[plumbing.Hash]bool)
	for _, refName := range refs {
		ref, err := repo.Reference(plumbing.ReferenceName(refName), true)
		if err != nil {
			continue // an unresolvable retain-ref protects nothing, not an error
		}
		iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
		if err != nil {
			continue
		}
		err = iter.ForEach(func(c *object.Commit) error {
			out[c.Hash] = true
			return nil
		})
		iter.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Apply removes notes for sets.ToDelete when execute is true, emitting one
// retention_apply audit event with the count actually deleted. A dry run
// (execute=false) touches nothing and returns zero.
func Apply(repo *git.Repository, sets Sets, execute bool, reason string) (int, error) {
	if !execute {
		return 0, nil
	}

	deleted := 0
	for _, h := range sets.ToDelete {
		if err := notes.Remove(repo, h); err != nil {
			continue // per-commit removal is independent; tolerate partial progress
		}
		deleted++
	}

	if err := audit.Append(audit.EventRetentionApply, map[string]any{
		"commit_count": deleted,
		"reason":       reason,
	}); err != nil {
		return deleted, fmt.Errorf("recording retention audit event: %w", err)
	}

	return deleted, nil
}
