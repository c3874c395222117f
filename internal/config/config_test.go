package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetforge.yml"), []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "content"), cfg.ContentRoot)
	assert.Equal(t, filepath.Join(dir, ".assetforge/compiled"), cfg.CompiledRoot)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, filepath.Join(dir, ".assetforge/assets.db"), cfg.Database.DSN)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
	assert.Equal(t, 128, cfg.Preview.Size)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, []string{"*.swp", "*~", "*.tmp-*"}, cfg.Watch.Ignore)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, Exists(dir))
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
content_root: /srv/game/content
database:
  driver: pgx
  dsn: postgres://localhost/assets
cache:
  backend: redis
  ttl: 10m
  redis:
    addr: cache:6379
compile:
  workers: 3
watch:
  debounce: 250ms
  ignore: ["*.bak"]
http:
  token_secret: s3cret
log:
  level: debug
  development: true
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.True(t, Exists(dir))

	assert.Equal(t, "/srv/game/content", cfg.ContentRoot)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/assets", cfg.Database.DSN)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 3, cfg.Compile.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, []string{"*.bak"}, cfg.Watch.Ignore)
	assert.Equal(t, "s3cret", cfg.HTTP.TokenSecret)
	assert.True(t, cfg.Log.Development)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "compile:\n  workers: 3\n")
	t.Setenv("ASSETFORGE_COMPILE_WORKERS", "7")
	t.Setenv("ASSETFORGE_HTTP_LISTEN", ":9000")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Compile.Workers)
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"driver", "database:\n  driver: mysql\n", "database.driver must be sqlite3 or pgx"},
		{"backend", "cache:\n  backend: memcached\n", "cache.backend must be memory or redis"},
		{"workers", "compile:\n  workers: -1\n", "compile.workers must not be negative"},
		{"preview size", "preview:\n  size: 4096\n", "preview.size must be between 1 and 1024"},
		{"log level", "log:\n  level: loud\n", "log.level is invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := LoadFrom(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "content_root: [unterminated")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "content", cfg.ContentRoot)
	assert.Equal(t, 2, cfg.Preview.Workers)
}
