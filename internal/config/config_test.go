package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Index.MaxTokens, cfg.Index.MaxTokens)
	require.Equal(t, "store", cfg.StorePath)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docseek.yaml")
	yamlDoc := "store_path: /data/store\nindex:\n  max_items: 50\nsearch:\n  bm25_weight: 0.7\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/store", cfg.StorePath)
	require.Equal(t, 50, cfg.Index.MaxItems)
	require.Equal(t, 0.7, cfg.Search.BM25Weight)
	// Untouched fields keep their defaults.
	require.Equal(t, Default().Index.MaxTokens, cfg.Index.MaxTokens)
}

func TestEnvOverridesTakePriorityOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docseek.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_path: /from/file\n"), 0o644))

	t.Setenv("DOCSEEK_STORE_PATH", "/from/env")
	t.Setenv("DOCSEEK_SEARCH_TIMEOUT", "5s")
	t.Setenv("DOCSEEK_BM25_WEIGHT", "0.9")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/from/env", cfg.StorePath)
	require.Equal(t, 5*time.Second, cfg.Search.VectorTimeout)
	require.Equal(t, 0.9, cfg.Search.BM25Weight)
}

func TestUnknownEnvVarsIgnored(t *testing.T) {
	t.Setenv("DOCSEEK_NOT_A_REAL_KEY", "whatever")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().StorePath, cfg.StorePath)
}

func TestInvalidConfigRejectsOverlapGreaterThanMaxTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docseek.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  max_tokens: 50\n  overlap: 80\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
