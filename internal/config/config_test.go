package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotsetlabs/whogitit/internal/paths"
)

func chdirToTempRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	// git only recognizes a directory as a repo when HEAD, objects/, and
	// refs/ are present, which is all `git rev-parse --show-toplevel` needs.
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

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	chdirToTempRepo(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.General.Enabled)
	require.Equal(t, "info", cfg.General.LogLevel)
	require.Equal(t, 24, cfg.General.MaxPendingAgeHours)
	require.InDelta(t, 0.6, cfg.Analyzer.SimilarityThreshold, 1e-9)
	require.Equal(t, 90, cfg.Retention.MaxAgeDays)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := chdirToTempRepo(t)
	toml := "[analyzer]\nsimilarity_threshold = 0.8\n\n[retention]\nmax_age_days = 30\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".whogitit.toml"), []byte(toml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.InDelta(t, 0.8, cfg.Analyzer.SimilarityThreshold, 1e-9)
	require.Equal(t, 30, cfg.Retention.MaxAgeDays)
}

func TestValidateRedactPatterns_SkipsInvalid(t *testing.T) {
	valid, invalid := ValidateRedactPatterns([]RedactPatternConfig{
		{Name: "GOOD", Pattern: `TICKET-\d+`},
		{Name: "BAD", Pattern: `(`},
	})
	require.Len(t, valid, 1)
	require.Equal(t, "GOOD", valid[0].Name)
	require.Equal(t, []string{"BAD"}, invalid)
}
