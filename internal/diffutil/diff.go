// Package diffutil implements the line-level diff primitives: an LCS
// line diff assembled into hunks, plus a content-addressed hunk hash used
// only for dedup heuristics.
//
// The LCS itself is computed with github.com/sergi/go-diff/diffmatchpatch
// via the standard "diff lines as characters" trick (DiffLinesToChars +
// DiffMain + DiffCharsToLines), which gives an LCS-optimal edit script
// without a hand-rolled O(n*m) table.
package diffutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dotsetlabs/whogitit/internal/snapshot"
)

// Hunk is a maximal run of inserted lines in a line diff.
type Hunk struct {
	NewStart int      `json:"new_start"` // 1-indexed first line in new
	NewCount int      `json:"new_count"`
	Content  []string `json:"content"`
}

// DiffResult is the output of computing a line diff between two texts.
type DiffResult struct {
	Hunks        []Hunk `json:"hunks"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// ComputeDiff diffs old and new at the line level and assembles hunks: a
// maximal run of inserted lines. Deletes advance only the old-side position
// and never terminate an in-progress hunk; equal lines flush and terminate
// the current hunk.
func ComputeDiff(oldText, newText string) DiffResult {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var result DiffResult
	var current *Hunk
	newPos := 0

	flush := func() {
		if current != nil {
			result.Hunks = append(result.Hunks, *current)
			current = nil
		}
	}

	for _, d := range diffs {
		lines := diffLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			newPos += len(lines)
		case diffmatchpatch.DiffDelete:
			result.LinesRemoved += len(lines)
		case diffmatchpatch.DiffInsert:
			for _, line := range lines {
				newPos++
				if current == nil {
					current = &Hunk{NewStart: newPos}
				}
				current.Content = append(current.Content, line)
				current.NewCount++
			}
			result.LinesAdded += len(lines)
		}
	}
	flush()

	return result
}

// ComputeCreateDiff returns the diff of an empty file to text: a single hunk
// starting at line 1.
func ComputeCreateDiff(text string) DiffResult {
	return ComputeDiff("", text)
}

// AlignedNewIndices diffs oldText against newText and returns the set of
// 0-indexed new-side lines covered by an Equal op: the line-alignment the
// three-way analyzer builds its MO and MA sets from.
func AlignedNewIndices(oldText, newText string) map[int]bool {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	aligned := make(map[int]bool)
	newIdx := 0
	for _, d := range diffs {
		lines := diffLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for range lines {
				aligned[newIdx] = true
				newIdx++
			}
		case diffmatchpatch.DiffInsert:
			newIdx += len(lines)
		case diffmatchpatch.DiffDelete:
			// old side only; newIdx unchanged
		}
	}
	return aligned
}

// ContentHash returns the first 8 hex bytes of SHA-256 over the hunk's
// content lines joined with "\n". Used only for dedup heuristics, never for
// semantic line equality.
func ContentHash(h Hunk) string {
	sum := sha256.Sum256([]byte(strings.Join(h.Content, "\n")))
	return hex.EncodeToString(sum[:8])
}

// diffLines splits a diffmatchpatch line-block back into individual lines,
// trimming exactly one trailing newline the way snapshot.Lines does.
func diffLines(text string) []string {
	if text == "" {
		return nil
	}
	return snapshot.Lines(text)
}
