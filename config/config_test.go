package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROVAS_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 3, cfg.Extraction.FailureThreshold)
	assert.Equal(t, "rawles", cfg.Extraction.Sentinel)
	assert.Equal(t, "/images/questoes", cfg.Images.ServePrefix)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Navigation)
	assert.Equal(t, "127.0.0.1:8090", cfg.Preview.Addr())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provas.yaml")
	yaml := `
site:
  base_url: https://app.example.com/
  banco_path: /bank
timeouts:
  navigation: 45s
images:
  concurrency: 2
preview:
  api_keys: [k1, k2]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("PROVAS_IMAGES_CONCURRENCY", "9")
	t.Setenv("PROVAS_POST_LOGIN_PREFIXES", " /a , ,/b")
	t.Setenv("PROVAS_HEADLESS", "not-a-bool")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com/bank", cfg.Site.BancoURL())
	assert.Equal(t, "https://app.example.com/login", cfg.Site.LoginURL())
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Navigation)
	assert.Equal(t, 9, cfg.Images.Concurrency)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Site.PostLoginPrefixes)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Preview.APIKeys)
	assert.True(t, cfg.Browser.Headless, "unparseable env keeps the previous value")
	// Untouched sections keep their defaults.
	assert.Equal(t, "Abrir prova", cfg.Site.OpenExamText)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate(), "base URL is required")

	cfg.Site.BaseURL = "https://app.example.com"
	cfg.Images.Concurrency = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Images.Concurrency)

	cfg.Extraction.FailureThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Site.BaseURL = "https://app.example.com"
	cfg.Site.PostLoginPrefixes = nil
	assert.Error(t, cfg.Validate())
}
