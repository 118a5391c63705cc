package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http://localhost:1879/", cfg.Renderer.Page)
	assert.Equal(t, "localhost:1879", cfg.Host.Listen)
	assert.NotNil(t, cfg.Sources)
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "STUDIO_LATEST_VERSION", EnvName("latest-version"))
	assert.Equal(t, "STUDIO_CONFIG", EnvName("config"))
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
renderer:
  page: http://file.example/
  title: From File
host:
  listen: 0.0.0.0:9000
  latest_version: 1.0.0
`)
	t.Setenv("STUDIO_TITLE", "From Env")
	t.Setenv("STUDIO_LATEST_VERSION", "2.0.0")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, "log-level", "page", "title", "listen", "latest-version")
	require.NoError(t, fs.Parse([]string{"--config", path, "--latest-version", "3.0.0"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://file.example/", cfg.Renderer.Page)
	assert.Equal(t, "From Env", cfg.Renderer.Title)
	assert.Equal(t, "0.0.0.0:9000", cfg.Host.Listen)
	assert.Equal(t, "3.0.0", cfg.Host.LatestVersion)
	assert.Equal(t, "studio.db", cfg.Host.DB)

	assert.Equal(t, SourceFile, cfg.Sources["page"])
	assert.Equal(t, SourceEnv, cfg.Sources["title"])
	assert.Equal(t, SourceFlag, cfg.Sources["latest-version"])
	assert.Equal(t, SourceDefault, cfg.Sources["db"])
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STUDIO_CONFIG", writeConfig(t, "host:\n  db: other.db\n"))
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.Host.DB)
}

func TestLoadErrors(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
	_, err := Load(fs)
	assert.ErrorContains(t, err, "failed to read config")

	t.Setenv("STUDIO_CONFIG", writeConfig(t, "renderer: [nope"))
	_, err = Load(nil)
	assert.ErrorContains(t, err, "failed to parse config")

	t.Setenv("STUDIO_CONFIG", "")
	t.Setenv("STUDIO_LOG_LEVEL", "loud")
	_, err = Load(nil)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestRegisterFlagsOnlyNamed(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, "listen", "unknown")
	assert.NotNil(t, fs.Lookup("config"))
	assert.NotNil(t, fs.Lookup("listen"))
	assert.Nil(t, fs.Lookup("page"))
	assert.Equal(t, "localhost:1879", fs.Lookup("listen").DefValue)
}
