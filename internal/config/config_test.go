package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	want := Default()
	want.Archive.Path = filepath.Join(dir, "adqueue.db")
	assert.Equal(t, want, *cfg)
	assert.False(t, cfg.HasAPIKey())
}

func TestLoad_FileOverrides(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	dir := t.TempDir()
	writeFile(t, dir, "adqueue.yml", `
server:
  addr: 0.0.0.0:9000
log:
  level: debug
  format: console
reasoning:
  model: gemini-2.5-pro
  timeout: 45s
  variations: 3
build:
  merge_timeout: 2m
  defaults_dir: defaults
archive:
  driver: memory
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "gemini-2.5-pro", cfg.Reasoning.Model)
	assert.Equal(t, "gemini-2.5-flash-image", cfg.Reasoning.ImageModel, "unset fields keep defaults")
	assert.Equal(t, 45*time.Second, cfg.Reasoning.Timeout)
	assert.Equal(t, 3, cfg.Reasoning.Variations)
	assert.Equal(t, 2*time.Minute, cfg.Build.MergeTimeout)
	assert.Equal(t, filepath.Join(dir, "defaults"), cfg.Build.DefaultsDir)
	assert.Equal(t, "memory", cfg.Archive.Driver)
}

func TestLoad_YAMLExtension(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	dir := t.TempDir()
	writeFile(t, dir, "adqueue.yaml", "reasoning:\n  rate_per_minute: 5\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Reasoning.RatePerMinute)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "adqueue.yml", "reasoning:\n  rate_per_minute: 5\n")
	t.Setenv("ADQUEUE_REASONING_RATE_PER_MINUTE", "12")
	t.Setenv("ADQUEUE_SERVER_ADDR", "localhost:7000")
	t.Setenv(APIKeyEnv, "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Reasoning.RatePerMinute)
	assert.Equal(t, "localhost:7000", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Reasoning.APIKey)
	assert.True(t, cfg.HasAPIKey())
}

func TestLoad_DotEnvSuppliesAPIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	os.Unsetenv(APIKeyEnv)
	dir := t.TempDir()
	writeFile(t, dir, ".env", APIKeyEnv+"=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv(APIKeyEnv) })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Reasoning.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad driver":      "archive:\n  driver: postgres\n",
		"sqlite no path":  "archive:\n  driver: sqlite\n  path: \"\"\n",
		"variations":      "reasoning:\n  variations: 9\n",
		"negative rate":   "reasoning:\n  rate_per_minute: -1\n",
		"bad log level":   "log:\n  level: loud\n",
		"malformed yaml":  "server: [\n",
		"bad addr":        "server:\n  addr: nowhere\n",
		"zero merge time": "build:\n  merge_timeout: 0s\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(APIKeyEnv, "")
			dir := t.TempDir()
			writeFile(t, dir, "adqueue.yml", content)

			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "reasoning.rate_per_minute", envKey("ADQUEUE_REASONING_RATE_PER_MINUTE"))
	assert.Equal(t, "server.addr", envKey("ADQUEUE_SERVER_ADDR"))
	assert.Equal(t, "debug", envKey("ADQUEUE_DEBUG"))
}
