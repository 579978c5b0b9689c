package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.MetaStore)
	assert.Equal(t, 8192, cfg.Scan.BatchSize)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icescan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: "9000"
disk:
  root: /data
scan:
  batch_size: 1024
  target_partitions: 16
`), 0o644))
	t.Setenv("SCAN_POOL_SIZE", "3")
	t.Setenv("SCAN_TARGET_PARTITIONS", "2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTP.Port)
	assert.Equal(t, "/data", cfg.Disk.Root)
	assert.Equal(t, 1024, cfg.Scan.BatchSize)
	assert.Equal(t, 2, cfg.Scan.TargetPartitions, "env wins over the file")
	assert.Equal(t, 3, cfg.Scan.PoolSize)
}

func TestLoadInvalid(t *testing.T) {
	t.Run("crdb without dsn", func(t *testing.T) {
		t.Setenv("METASTORE", "crdb")
		t.Setenv("CRDB_DSN", "")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})
	t.Run("bad number", func(t *testing.T) {
		t.Setenv("SCAN_BATCH_SIZE", "lots")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})
	t.Run("unknown metastore", func(t *testing.T) {
		t.Setenv("METASTORE", "redis")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
