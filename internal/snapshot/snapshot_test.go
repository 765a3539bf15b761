package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Hashing is idempotent and content-only.
func TestNew_HashIdempotentAndStable(t *testing.T) {
	a := New("hello\nworld\n", fixedTime)
	b := New("hello\nworld\n", fixedTime.Add(time.Hour))

	assert.Equal(t, a.ContentHash, a.ContentHash)
	assert.Equal(t, a.ContentHash, b.ContentHash, "hash depends only on content, not timestamp")
	assert.Len(t, a.ContentHash, 32, "16-byte hex prefix of SHA-256")
}

func TestNew_DifferentContentDifferentHash(t *testing.T) {
	a := New("hello\n", fixedTime)
	b := New("world\n", fixedTime)
	assert.NotEqual(t, a.ContentHash, b.ContentHash)
}

func TestEmpty(t *testing.T) {
	e := Empty(fixedTime)
	assert.Equal(t, "", e.Content)
	assert.Equal(t, 0, e.LineCount)
	assert.Equal(t, New("", fixedTime).ContentHash, e.ContentHash)
}

func TestLines(t *testing.T) {
	assert.Nil(t, Lines(""))
	assert.Equal(t, []string{"a"}, Lines("a"))
	assert.Equal(t, []string{"a"}, Lines("a\n"))
	assert.Equal(t, []string{"a", "b"}, Lines("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, Lines("a\nb"))
	assert.Equal(t, []string{""}, Lines("\n"))
}

func TestNew_LineCount(t *testing.T) {
	assert.Equal(t, 2, New("a\nb\n", fixedTime).LineCount)
	assert.Equal(t, 1, New("a", fixedTime).LineCount)
	assert.Equal(t, 0, New("", fixedTime).LineCount)
}
