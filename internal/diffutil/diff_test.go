package diffutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiff_SingleAppendHunk(t *testing.T) {
	result := ComputeDiff("line1\nline2\n", "line1\nline2\nline3\n")

	require.Len(t, result.Hunks, 1)
	assert.Equal(t, 3, result.Hunks[0].NewStart)
	assert.Equal(t, 1, result.Hunks[0].NewCount)
	assert.Equal(t, []string{"line3"}, result.Hunks[0].Content)
	assert.Equal(t, 1, result.LinesAdded)
	assert.Equal(t, 0, result.LinesRemoved)
}

func TestComputeDiff_DeleteDoesNotAdvanceNewStart(t *testing.T) {
	result := ComputeDiff("a\nb\nc\n", "a\nc\nnew\n")

	require.Len(t, result.Hunks, 1)
	// "new" is the only inserted line, at new-side line 3 (a, c, new).
	assert.Equal(t, 3, result.Hunks[0].NewStart)
	assert.Equal(t, 1, result.LinesRemoved)
}

func TestComputeDiff_EqualLinesFlushHunk(t *testing.T) {
	result := ComputeDiff("a\nb\nc\n", "x\nb\ny\n")

	require.Len(t, result.Hunks, 2)
	assert.Equal(t, 1, result.Hunks[0].NewStart)
	assert.Equal(t, 3, result.Hunks[1].NewStart)
}

func TestComputeCreateDiff_SingleHunkFromLineOne(t *testing.T) {
	result := ComputeCreateDiff("a\nb\n")

	require.Len(t, result.Hunks, 1)
	assert.Equal(t, 1, result.Hunks[0].NewStart)
	assert.Equal(t, 2, result.Hunks[0].NewCount)
	assert.Equal(t, 2, result.LinesAdded)
}

func TestAlignedNewIndices(t *testing.T) {
	aligned := AlignedNewIndices("a\nb\nc\n", "a\nx\nc\nd\n")

	// "a" and "c" are unchanged; "x" replaces "b" and "d" is new.
	assert.True(t, aligned[0])
	assert.False(t, aligned[1])
	assert.True(t, aligned[2])
	assert.False(t, aligned[3])
}

func TestAlignedNewIndices_EmptyOldSide(t *testing.T) {
	aligned := AlignedNewIndices("", "a\nb\n")
	assert.Empty(t, aligned)
}

func TestContentHash_StableAndDistinguishing(t *testing.T) {
	h1 := Hunk{Content: []string{"a", "b"}}
	h2 := Hunk{Content: []string{"a", "b"}}
	h3 := Hunk{Content: []string{"a", "c"}}

	assert.Equal(t, ContentHash(h1), ContentHash(h2))
	assert.NotEqual(t, ContentHash(h1), ContentHash(h3))
	assert.Len(t, ContentHash(h1), 16, "first 8 hex bytes")
}
