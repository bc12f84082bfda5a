package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WIFIWATCH_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.Capture.PollInterval)
	require.Equal(t, 10, cfg.Capture.PageSize)
	require.Equal(t, 10*time.Second, cfg.Scan.Duration)
	require.Equal(t, 500*time.Millisecond, cfg.Scan.ProgressInterval)
	require.True(t, cfg.Capture.Promiscuous)
	require.Equal(t, "wlan0", cfg.Scan.Interface)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wifiwatch.toml")
	content := `
[scan]
interface = "wlxmon0"
duration = "4s"

[capture]
interface = "eth1"
poll_interval = "1s"
page_size = 25

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "wlxmon0", cfg.Scan.Interface)
	require.Equal(t, 4*time.Second, cfg.Scan.Duration)
	require.Equal(t, "eth1", cfg.Capture.Interface)
	require.Equal(t, time.Second, cfg.Capture.PollInterval)
	require.Equal(t, 25, cfg.Capture.PageSize)
	require.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	require.Equal(t, 65535, cfg.Capture.SnapLen)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WIFIWATCH_CONFIG", "")
	t.Setenv("WIFIWATCH_CAPTURE_PAGE_SIZE", "50")
	t.Setenv("WIFIWATCH_METRICS_LISTEN", ":9108")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Capture.PageSize)
	require.Equal(t, ":9108", cfg.Metrics.Listen)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.Capture.PageSize = 0
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Capture.PollInterval = 0
	require.Error(t, cfg.Validate())
}
