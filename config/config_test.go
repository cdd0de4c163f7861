package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ParsesAllSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[store]
feedback_buffer = 8
subscriber_buffer = 2

[history]
max_entries = 50

[log]
level = " DEBUG "

[throttle]
window = "1s"

[persist]
codec = "yaml"
key = "counter"

[metrics]
namespace = "counter"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Store.FeedbackBuffer)
	assert.Equal(t, 2, cfg.Store.SubscriberBuffer)
	assert.Equal(t, 50, cfg.History.MaxEntries)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, time.Second, cfg.Throttle.Window)
	assert.Equal(t, "yaml", cfg.Persist.Codec)
	assert.Equal(t, "counter", cfg.Persist.Key)
	assert.Equal(t, "counter", cfg.Metrics.Namespace)
}

func TestParse_ZeroValuesKeepDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[store]
feedback_buffer = 0

[log]
level = "   "
`))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_InvalidInput(t *testing.T) {
	_, err := Parse([]byte(`store = [`))
	assert.ErrorContains(t, err, "parse config")

	_, err = Parse([]byte("[throttle]\nwindow = \"soon\"\n"))
	assert.ErrorContains(t, err, "throttle.window")
}

func TestExpandPath_ExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "a/b"), got)

	_, err = expandPath("   ")
	assert.Error(t, err)
}
