package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Similarity stays within [0,1] at the edges.
func TestSimilarity_Bounds(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("hello", "hello"), 1e-9)
	assert.Equal(t, 0.0, Similarity("hello", ""))
	assert.Equal(t, 0.0, Similarity("", "hello"))
	assert.Equal(t, 0.0, Similarity("", ""))

	s := Similarity("hello", "hxllo")
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestSimilarity_TrimsWhitespace(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("  hello  ", "hello"), 1e-9)
}

func TestSimilarity_RenameStyleTweak(t *testing.T) {
	// A small in-place edit keeps the length ratio above the prefilter cutoff.
	s := Similarity("the quick brown fox", "the quick brown fax")
	assert.GreaterOrEqual(t, s, DefaultThreshold)
}

func TestSimilarity_LengthPrefilterCanRejectSimilarShortExpansion(t *testing.T) {
	// The length prefilter rejects some genuinely similar lines of very
	// different length, e.g. a short line expanded well past the 0.5
	// length ratio. This is accepted behavior, not a bug.
	s := Similarity("hello", "hello, world")
	assert.Equal(t, 0.0, s)
}

func TestSimilarity_LengthPrefilterRejectsUnrelated(t *testing.T) {
	// "x" vs a much longer, wholly unrelated string: min/max < 0.5 short-circuits to 0.
	s := Similarity("x", "a completely unrelated long line of text")
	assert.Equal(t, 0.0, s)
}

func TestSimilarity_Symmetric(t *testing.T) {
	a, b := "foobar baz", "foobar qux"
	assert.InDelta(t, Similarity(a, b), Similarity(b, a), 1e-9)
}
