package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/config"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func TestLoadRejectsMissingProviderToken(t *testing.T) {
	withEnv(t, "AGORA_ANTHROPIC_API_KEY", "")
	withEnv(t, "AGORA_DEV_BYPASS_AUTH", "true")
	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoadFillsDefaults(t *testing.T) {
	withEnv(t, "AGORA_ANTHROPIC_API_KEY", "sk-test")
	withEnv(t, "AGORA_DEV_BYPASS_AUTH", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "./reports", cfg.Reports.OutputDir)
	require.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadAppliesYAMLOverride(t *testing.T) {
	withEnv(t, "AGORA_ANTHROPIC_API_KEY", "sk-test")
	withEnv(t, "AGORA_DEV_BYPASS_AUTH", "true")
	withEnv(t, "CORS_ORIGIN_OVERRIDE", "https://example.com")

	dir := t.TempDir()
	path := filepath.Join(dir, "agora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: postgres
  postgres_dsn: "postgres://localhost/agora"
server:
  cors_origin: "${CORS_ORIGIN_OVERRIDE}"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Storage.Driver)
	require.Equal(t, "https://example.com", cfg.Server.CORSOrigin)
}
