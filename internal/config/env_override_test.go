package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("VERITAS_BASE_URL replaces the configured address", func(t *testing.T) {
		t.Setenv("VERITAS_BASE_URL", "http://analysis.internal:8000")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://analysis.internal:8000", cfg.Backend.BaseURL)
	})

	t.Run("empty variables leave values alone", func(t *testing.T) {
		t.Setenv("VERITAS_BASE_URL", "")
		t.Setenv("VERITAS_THEME", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, DefaultBaseURL, cfg.Backend.BaseURL)
		assert.Equal(t, "auto", cfg.UI.Theme)
	})

	t.Run("logging and ui overrides", func(t *testing.T) {
		t.Setenv("VERITAS_LOG_LEVEL", "debug")
		t.Setenv("VERITAS_LOG_FILE", "/tmp/veritas.log")
		t.Setenv("VERITAS_THEME", "dark")
		t.Setenv("VERITAS_STUB_ADDR", ":9999")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "/tmp/veritas.log", cfg.Logging.File)
		assert.Equal(t, "dark", cfg.UI.Theme)
		assert.Equal(t, ":9999", cfg.StubServer.Addr)
	})
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  base_url: http://from-file:8000\n"), 0644))

	t.Setenv("VERITAS_BASE_URL", "http://from-env:8000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8000", cfg.Backend.BaseURL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VERITAS_DOTENV_CHECK=from-dotenv\n"), 0644))

	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("VERITAS_DOTENV_CHECK") })

	LoadDotEnv()
	assert.Equal(t, "from-dotenv", os.Getenv("VERITAS_DOTENV_CHECK"))
}
