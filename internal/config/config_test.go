package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("DELIVERYDESK_CONFIG", "")
	t.Setenv("DELIVERYDESK_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:5000/api", cfg.API.BaseURL)
	require.Equal(t, 20*time.Second, cfg.API.Timeout)
	require.Equal(t, 1500*time.Millisecond, cfg.Workflow.CloseDelay)
	require.EqualValues(t, 16<<20, cfg.Upload.MaxBytes)
	require.Equal(t, []string{"pdf", "jpg", "jpeg", "png", "gif"}, cfg.Upload.AllowedExtensions)
	require.Equal(t, "R$", cfg.UI.CurrencySymbol)
	require.Equal(t, filepath.Join(dir, ".local", "share", "deliverydesk", "deliverydesk.db"), cfg.Database.Path)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
base_url = "http://api.example.test/api/"
timeout = "5s"

[workflow]
close_delay = "250ms"
`), 0o600))
	t.Setenv("HOME", dir)
	t.Setenv("DELIVERYDESK_CONFIG", path)
	t.Setenv("DELIVERYDESK_UI_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://api.example.test/api", cfg.API.BaseURL)
	require.Equal(t, 5*time.Second, cfg.API.Timeout)
	require.Equal(t, 250*time.Millisecond, cfg.Workflow.CloseDelay)
	require.Equal(t, "UTC", cfg.UI.Timezone)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)
}

func TestResolveToken(t *testing.T) {
	t.Setenv("CUSTOM_TOKEN", "")
	cfg := Config{API: APIConfig{TokenEnv: "CUSTOM_TOKEN", Token: " fallback "}}
	require.Equal(t, "fallback", cfg.ResolveToken())

	t.Setenv("CUSTOM_TOKEN", "from-env")
	require.Equal(t, "from-env", cfg.ResolveToken())
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	t.Setenv("HOME", dir)
	t.Setenv("DELIVERYDESK_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	cfg.API.BaseURL = "http://saved.test/api"
	cfg.Workflow.CloseDelay = 2 * time.Second
	require.NoError(t, Save(cfg))

	again, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://saved.test/api", again.API.BaseURL)
	require.Equal(t, 2*time.Second, again.Workflow.CloseDelay)
}
