package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFile writes a temporary config file.
func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

// chdir changes the working directory and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
env: "prod"
api:
  base_url: "https://shop.example.com/api"
  timeout: "3s"
  refresh_timeout: "2s"
  user_agent: "test-agent"
  login_path: "/login"
store:
  backend: "redis"
  redis:
    addr: "10.0.0.5:6379"
    db: 2
    prefix: "s:"
`

const minimalYAML = `
env: "stage"
`

const brokenYAML = `
env: [unclosed
`

func TestLoad_WithExplicitPath_OK(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "https://shop.example.com/api", cfg.API.BaseURL)
	require.Equal(t, 3*time.Second, cfg.API.Timeout)
	require.Equal(t, 2*time.Second, cfg.API.RefreshTimeout)
	require.Equal(t, "test-agent", cfg.API.UserAgent)
	require.Equal(t, "/login", cfg.API.LoginPath)
	require.Equal(t, BackendRedis, cfg.Store.Backend)
	require.Equal(t, "10.0.0.5:6379", cfg.Store.Redis.Addr)
	require.Equal(t, 2, cfg.Store.Redis.DB)
	require.Equal(t, "s:", cfg.Store.Redis.Prefix)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", minimalYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "stage", cfg.Env)
	require.Equal(t, "http://localhost:5000/api", cfg.API.BaseURL)
	require.Equal(t, 10*time.Second, cfg.API.Timeout)
	require.Equal(t, BackendFile, cfg.Store.Backend)
	require.Equal(t, ".storefront/session.json", cfg.Store.Path)
}

func TestLoad_WithExplicitPath_BrokenYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "broken.yaml", brokenYAML)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_WithCONFIG_PATH_OK(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "from_env_path.yaml", minimalYAML)
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "stage", cfg.Env)
}

func TestLoad_WithLocalYAML_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, ".", "local.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "https://shop.example.com/api", cfg.API.BaseURL)
}

func TestLoad_EnvOverlay_OverridesValuesFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", sampleYAML)

	t.Setenv("API_BASE_URL", "http://127.0.0.1:9999/api")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("REDIS_DB", "7")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "http://127.0.0.1:9999/api", cfg.API.BaseURL)
	require.Equal(t, 5*time.Second, cfg.API.Timeout)
	require.Equal(t, 7, cfg.Store.Redis.DB)
}

func TestLoad_EnvOnly_OK(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "dev")
	t.Setenv("API_BASE_URL", "http://api.internal/api")
	t.Setenv("TOKEN_STORE", BackendMemory)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "http://api.internal/api", cfg.API.BaseURL)
	require.Equal(t, BackendMemory, cfg.Store.Backend)
}

func TestLoad_UnknownBackend(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "store:\n  backend: \"etcd\"\n")

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown token store backend")
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "store:\n  backend: \"postgres\"\n")
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "dsn is required")
}
