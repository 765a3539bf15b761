package pending

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestRecordEdit_NewFile(t *testing.T) {
	b := New("sess-1", "claude-x", fixedTime)

	e, err := b.RecordEdit("main.go", nil, "package main\n", "Write", "write a file", nil, nil, fixedTime)
	require.NoError(t, err)

	assert.Equal(t, 0, e.PromptIndex)
	hist := b.FileHistories["main.go"]
	assert.True(t, hist.WasNewFile)
	assert.Equal(t, "", hist.Original.Content)
	assert.Equal(t, 1, b.PromptCounter)
	assert.Equal(t, 1, b.Session.PromptCount)
}

// Prompt monotonicity: prompt_index strictly increases per edit and
// stays below prompt_counter.
func TestRecordEdit_PromptMonotonicity(t *testing.T) {
	b := New("sess-1", "claude-x", fixedTime)

	old := "a\n"
	_, err := b.RecordEdit("f.go", &old, "a\nb\n", "Edit", "p0", nil, nil, fixedTime)
	require.NoError(t, err)
	_, err = b.RecordEdit("f.go", nil, "a\nb\nc\n", "Edit", "p1", nil, nil, fixedTime)
	require.NoError(t, err)

	hist := b.FileHistories["f.go"]
	require.Len(t, hist.Edits, 2)
	assert.Less(t, hist.Edits[0].PromptIndex, hist.Edits[1].PromptIndex)
	assert.Less(t, hist.Edits[1].PromptIndex, b.PromptCounter)
}

// Edit chain: a subsequent edit with no explicit before
// content is anchored to the previous edit's after snapshot.
func TestRecordEdit_ChainsToPreviousAfter(t *testing.T) {
	b := New("sess-1", "claude-x", fixedTime)

	old := "a\n"
	_, err := b.RecordEdit("f.go", &old, "a\nb\n", "Edit", "p0", nil, nil, fixedTime)
	require.NoError(t, err)
	_, err = b.RecordEdit("f.go", nil, "a\nb\nc\n", "Edit", "p1", nil, nil, fixedTime)
	require.NoError(t, err)

	hist := b.FileHistories["f.go"]
	assert.Equal(t, hist.Edits[0].After.ContentHash, hist.Edits[1].Before.ContentHash)
}

func TestRecordEdit_RedactsPrompt(t *testing.T) {
	b := New("sess-1", "claude-x", fixedTime)

	redactor := redactorFunc(func(s string) string { return "[REDACTED]" })
	old := ""
	e, err := b.RecordEdit("f.go", &old, "x\n", "Edit", "api_key=sk-12345", redactor, nil, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", e.Prompt)
}

type redactorFunc func(string) string

func (f redactorFunc) Redact(s string) string { return f(s) }

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".ai-blame-pending.json")

	b := New("sess-1", "claude-x", fixedTime)
	old := ""
	_, err := b.RecordEdit("f.go", &old, "x\n", "Edit", "hello", nil, nil, fixedTime)
	require.NoError(t, err)

	require.NoError(t, SaveTo(path, b))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, b.Session.SessionID, loaded.Session.SessionID)
	assert.Equal(t, 1, loaded.PromptCounter)
}

func TestLoadFrom_Absent(t *testing.T) {
	dir := t.TempDir()
	loaded, err := LoadFrom(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadFrom_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.json")
	require.NoError(t, writeFile(path, "{not json"))

	_, err := LoadFrom(path)
	require.Error(t, err)
	var corrupt *ErrCorrupt
	assert.ErrorAs(t, err, &corrupt)
}

func TestStatus_StaleDetection(t *testing.T) {
	b := New("sess-1", "claude-x", fixedTime)
	status := b.Status(fixedTime.Add(48*time.Hour), 0)
	assert.True(t, status.Stale)

	status = b.Status(fixedTime.Add(1*time.Hour), 0)
	assert.False(t, status.Stale)
}

func TestLoadFrom_UnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "future.json")
	require.NoError(t, writeFile(path, `{"version": 99, "session": {}, "file_histories": {}}`))

	_, err := LoadFrom(path)
	require.Error(t, err)
	var corrupt *ErrCorrupt
	assert.ErrorAs(t, err, &corrupt)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
