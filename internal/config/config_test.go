package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	path := writeTempConfig(t, `{
		"research": {
			"planner": {"main_llm": {"model": "claude-sonnet-4-5", "temperature": 0.3}},
			"searcher": {
				"main_llm": {"model": "claude-sonnet-4-5", "temperature": 0.2}
			}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "claude-sonnet-4-5", cfg.Planner.MainLLM.Model)
	require.Nil(t, cfg.Planner.WeakLLM)
	require.Equal(t, cfg.Planner.MainLLM, cfg.Planner.WeakOrMain())

	// omitted fields fall back to defaults()
	require.Equal(t, 800, cfg.Settings.MaxReportUpdateSize)
	require.Equal(t, 1800, cfg.Settings.TimeoutSeconds)
	require.Equal(t, "deep_research_sessions", cfg.Collections.ResearchCollection)
	require.Equal(t, 10, cfg.Searcher.MaxResultsPerQuery)
}

func TestLoadOverridesDefaultsWhenPresent(t *testing.T) {
	path := writeTempConfig(t, `{
		"research": {
			"settings": {"timeout_seconds": 60},
			"searcher": {
				"main_llm": {"model": "m"},
				"weak_llm": {"model": "weak-m", "temperature": 0.1},
				"max_results_per_query": 3
			}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 60, cfg.Settings.TimeoutSeconds)
	require.Equal(t, 800, cfg.Settings.MaxReportUpdateSize) // untouched default
	require.Equal(t, 3, cfg.Searcher.MaxResultsPerQuery)
	require.NotNil(t, cfg.Searcher.WeakLLM)
	require.Equal(t, "weak-m", cfg.Searcher.WeakOrMain().Model)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}
