package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 10*time.Second, cfg.GetTickInterval())
	assert.Equal(t, 5, cfg.Capture.WindowSize)
	assert.Equal(t, "conservative", cfg.Clarify.Sensitivity)
	assert.Equal(t, 2*time.Minute, cfg.GetClarifyTimeout())
	assert.Equal(t, 3, cfg.Enhance.MaxRounds)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Capture.WindowSize, cfg.Capture.WindowSize)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screendoc.yaml")
	content := `
llm:
  provider: gemini
  model: gemini-2.5-flash
capture:
  tick_interval: 30s
  window_size: 8
clarify:
  sensitivity: frequent
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.GetTickInterval())
	assert.Equal(t, 8, cfg.Capture.WindowSize)
	assert.Equal(t, "frequent", cfg.Clarify.Sensitivity)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Enhance.MaxRounds)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not: closed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gk-test")
	t.Setenv("SCREENDOC_SESSIONS", "/data/sessions")
	t.Setenv("SCREENDOC_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider, "a Gemini key switches the provider")
	assert.Equal(t, "gk-test", cfg.LLM.APIKey)
	assert.Equal(t, "/data/sessions", cfg.Session.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "openai"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Clarify.Sensitivity = "aggressive"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Capture.WindowSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Enhance.MaxRounds = 0
	assert.Error(t, cfg.Validate())
}

func TestDurationGettersFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.TickInterval = "not a duration"
	cfg.LLM.Timeout = ""
	cfg.Clarify.Timeout = "???"

	assert.Equal(t, 10*time.Second, cfg.GetTickInterval())
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 120*time.Second, cfg.GetClarifyTimeout())
}

func TestDatabasePathResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Dir = "/data/sessions"
	cfg.Session.DatabasePath = "screendoc.db"
	assert.Equal(t, filepath.Join("/data/sessions", "screendoc.db"), cfg.DatabasePath())

	cfg.Session.DatabasePath = "/var/lib/screendoc.db"
	assert.Equal(t, "/var/lib/screendoc.db", cfg.DatabasePath())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "screendoc.yaml")

	cfg := DefaultConfig()
	cfg.Capture.WindowSize = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Capture.WindowSize)
}
