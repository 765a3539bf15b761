package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetlabs/whogitit/internal/paths"
	"github.com/dotsetlabs/whogitit/internal/pending"
)

// chdirToTempRepo drops the test into a directory git recognizes as a
// repository (HEAD, objects/, and refs/ are all `git rev-parse
// --show-toplevel` needs).
func chdirToTempRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "refs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(old)
		paths.ClearRepoRootCache()
	})
	paths.ClearRepoRootCache()
	return dir
}

func TestReadHookInput_DecodesContextAndIgnoresUnknownFields(t *testing.T) {
	in, err := readHookInput(strings.NewReader(`{
		"tool": "Edit",
		"file_path": "main.go",
		"prompt": "add a main function",
		"old_content": null,
		"new_content": "package main\n",
		"context": {"plan_mode": true, "is_subagent": true, "agent_depth": 2, "subagent_id": "sub-1"},
		"some_future_field": 42
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Edit", in.Tool)
	require.NotNil(t, in.Context)
	assert.True(t, in.Context.PlanMode)
	assert.True(t, in.Context.IsSubagent)
	assert.Equal(t, uint8(2), in.Context.AgentDepth)
	assert.Equal(t, "sub-1", in.Context.SubagentID)
}

func TestReadHookInput_MalformedJSON(t *testing.T) {
	_, err := readHookInput(strings.NewReader("{not json"))
	require.Error(t, err)
}

func TestCaptureEdit_RoundTripsContextIntoBuffer(t *testing.T) {
	chdirToTempRepo(t)
	t.Setenv("WHOGITIT_SESSION_ID", "sess-hook-1")

	oldContent := ""
	in := &HookInput{
		Tool:       "Edit",
		FilePath:   "main.go",
		Prompt:     "add a main function",
		OldContent: &oldContent,
		NewContent: "package main\n",
		Context:    &hookContext{PlanMode: true, IsSubagent: true, AgentDepth: 2, SubagentID: "sub-1"},
	}
	require.NoError(t, captureEdit(in, time.Now()))

	buf, err := pending.Load()
	require.NoError(t, err)
	require.NotNil(t, buf)
	assert.Equal(t, "sess-hook-1", buf.Session.SessionID)

	hist, ok := buf.FileHistories["main.go"]
	require.True(t, ok)
	require.Len(t, hist.Edits, 1)

	ctx := hist.Edits[0].Context
	require.NotNil(t, ctx)
	assert.True(t, ctx.PlanMode)
	assert.Equal(t, uint8(2), ctx.AgentDepth)
	assert.Equal(t, "sub-1", ctx.SubagentID)
}

func TestCaptureEdit_NoContextLeavesNil(t *testing.T) {
	chdirToTempRepo(t)
	t.Setenv("WHOGITIT_SESSION_ID", "sess-hook-2")

	oldContent := "a\n"
	in := &HookInput{Tool: "Edit", FilePath: "f.go", OldContent: &oldContent, NewContent: "a\nb\n"}
	require.NoError(t, captureEdit(in, time.Now()))

	buf, err := pending.Load()
	require.NoError(t, err)
	require.NotNil(t, buf)
	assert.Nil(t, buf.FileHistories["f.go"].Edits[0].Context)
}

func TestCaptureEdit_DropsSubagentIDWhenNotSubagent(t *testing.T) {
	chdirToTempRepo(t)
	t.Setenv("WHOGITIT_SESSION_ID", "sess-hook-3")

	oldContent := ""
	in := &HookInput{
		Tool:       "Write",
		FilePath:   "g.go",
		OldContent: &oldContent,
		NewContent: "x\n",
		Context:    &hookContext{IsSubagent: false, SubagentID: "stale-id"},
	}
	require.NoError(t, captureEdit(in, time.Now()))

	buf, err := pending.Load()
	require.NoError(t, err)
	require.NotNil(t, buf)
	ctx := buf.FileHistories["g.go"].Edits[0].Context
	require.NotNil(t, ctx)
	assert.Empty(t, ctx.SubagentID)
}

func TestCaptureEdit_RejectsTraversalPath(t *testing.T) {
	chdirToTempRepo(t)

	in := &HookInput{Tool: "Edit", FilePath: "../escape.go", NewContent: "x\n"}
	require.Error(t, captureEdit(in, time.Now()))
}
