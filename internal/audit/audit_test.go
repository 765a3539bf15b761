package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempLogPath(t *testing.T) func() (string, error) {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "audit.jsonl")
	return func() (string, error) { return p, nil }
}

func TestAppendBuildsHashChain(t *testing.T) {
	logPath := tempLogPath(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, AppendAt(logPath, EventRedaction, map[string]any{"count": 1}, at))
	require.NoError(t, AppendAt(logPath, EventRetentionApply, map[string]any{"commit_count": 3}, at.Add(time.Minute)))
	require.NoError(t, AppendAt(logPath, EventExport, nil, at.Add(2*time.Minute)))

	p, err := logPath()
	require.NoError(t, err)
	events, err := ReadAll(p)
	require.NoError(t, err)
	require.Len(t, events, 3)

	require.Empty(t, events[0].PrevHash)
	require.Equal(t, events[0].EventHash, events[1].PrevHash)
	require.Equal(t, events[1].EventHash, events[2].PrevHash)

	require.NoError(t, VerifyChain(p))
}

// Audit chain: every prefix of the log validates.
func TestVerifyChain_EveryPrefixValidates(t *testing.T) {
	logPath := tempLogPath(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, AppendAt(logPath, EventDelete, map[string]any{"i": i}, at.Add(time.Duration(i)*time.Second)))
	}

	p, err := logPath()
	require.NoError(t, err)
	all, err := ReadAll(p)
	require.NoError(t, err)

	for i := 1; i <= len(all); i++ {
		require.NoError(t, VerifyEvents(all[:i]), "prefix of length %d should validate", i)
	}
}

func TestVerifyChain_DetectsTamper(t *testing.T) {
	logPath := tempLogPath(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, AppendAt(logPath, EventDelete, map[string]any{"n": 1}, at))
	require.NoError(t, AppendAt(logPath, EventDelete, map[string]any{"n": 2}, at.Add(time.Second)))

	p, err := logPath()
	require.NoError(t, err)
	events, err := ReadAll(p)
	require.NoError(t, err)
	events[0].Details["n"] = 999 // tamper with the first event in place

	err = VerifyEvents(events)
	var broken *ErrChainBroken
	require.ErrorAs(t, err, &broken)
	require.Equal(t, 0, broken.Index)
}

func TestVerifyChain_MissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, VerifyChain(filepath.Join(t.TempDir(), "absent.jsonl")))
}
