package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("STORE_PATH", "/tmp/from-env/state.json")
	t.Setenv("LINEAR_API_KEY", "lin_api_env")
	t.Setenv("CACHE_POLL_INTERVAL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-env/state.json", cfg.Store.Path)
	assert.Equal(t, "lin_api_env", cfg.Linear.APIKey.Value())
	assert.Equal(t, 90*time.Second, cfg.Cache.PollInterval.Duration())
}

func TestLoadWithFileUsesDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "granolad")
	require.NoError(t, os.MkdirAll(configDir, 0700))
	content := []byte("store:\n  path: /tmp/from-file/state.json\nlinear:\n  api_key: lin_api_file\n")
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), content, 0600))

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-file/state.json", cfg.Store.Path)
	assert.Equal(t, "lin_api_file", cfg.Linear.APIKey.Value())
}

func TestLoadWithFileMissingDefaultFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.Extraction.Provider)
}

func TestLoadWithFileEnvWinsOverFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STORE_PATH", "/tmp/from-env/state.json")

	configDir := filepath.Join(home, ".config", "granolad")
	require.NoError(t, os.MkdirAll(configDir, 0700))
	content := []byte("store:\n  path: /tmp/from-file/state.json\n")
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), content, 0600))

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env/state.json", cfg.Store.Path)
}

func TestLoadWithFileRejectsDisallowedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestLoadWithFileRejectsLoosePermissions(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "granolad")
	require.NoError(t, os.MkdirAll(configDir, 0700))
	path := filepath.Join(configDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}
