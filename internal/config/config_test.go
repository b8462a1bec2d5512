package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Schema)
	assert.Equal(t, int64(1<<20), cfg.BlockSize)
	assert.Equal(t, 400, cfg.LRUCapacity)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(1<<30), cfg.Cache.MaxBytes)
	assert.Equal(t, "bolt", cfg.Cache.Backend)
	assert.False(t, cfg.Fetch.TLSInsecure)
	assert.Equal(t, "", cfg.Metrics.Address)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schema: s3
blockSize: 65536
cache:
  backend: postgres
  postgresDSN: postgres://localhost/httpfs
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Schema)
	assert.Equal(t, int64(65536), cfg.BlockSize)
	assert.Equal(t, "postgres", cfg.Cache.Backend)
	assert.Equal(t, "postgres://localhost/httpfs", cfg.Cache.PostgresDSN)
	// Keys not present in the file keep their defaults.
	assert.Equal(t, 400, cfg.LRUCapacity)
	assert.Equal(t, int64(1<<30), cfg.Cache.MaxBytes)
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpfs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema":"ftp","lruCapacity":16}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ftp", cfg.Schema)
	assert.Equal(t, 16, cfg.LRUCapacity)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HTTPFS_CONFIG_JSON", `{"logLevel":"debug","fetch":{"tlsInsecure":true}}`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Fetch.TLSInsecure)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpfs.toml")
	require.NoError(t, os.WriteFile(path, []byte("schema = 's3'"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestCacheDir(t *testing.T) {
	cfg := Config{Cache: CacheConfig{Dir: "/tmp/blocks"}}
	dir, err := cfg.CacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/blocks", dir)

	cfg.Cache.Dir = ""
	dir, err = cfg.CacheDir()
	require.NoError(t, err)
	assert.Contains(t, dir, "httpfs")
}
