package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sderrors "github.com/sitdown/sitdown/internal/errors"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Minute, cfg.Session.IdleThreshold)
	assert.Equal(t, 1, cfg.Session.Workers)
	assert.Equal(t, 15, cfg.Hasher.KeepLen)
	assert.Equal(t, "listing", cfg.Source.Tables["listing"])
	assert.Equal(t, "url", cfg.Source.Attributes["pageview"])
	assert.Equal(t, filepath.Join("./data/sitdown", "catalog.db"), cfg.CatalogPath)
	assert.Equal(t, filepath.Join("./data/sitdown", "results"), cfg.Output.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero idle threshold", func(c *Config) { c.Session.IdleThreshold = 0 }},
		{"sub-second idle threshold", func(c *Config) { c.Session.IdleThreshold = 45 }},
		{"no workers", func(c *Config) { c.Session.Workers = 0 }},
		{"keep_len too small", func(c *Config) { c.Hasher.KeepLen = 2 }},
		{"keep_len too large", func(c *Config) { c.Hasher.KeepLen = 65 }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown event type", func(c *Config) { c.Source.Attributes["click"] = "x" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, sderrors.ErrCategoryConfig, sderrors.GetCategory(err))
		})
	}
}

func TestValidate_KeepLenIgnoredWithoutTruncation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hasher.Truncate = false
	cfg.Hasher.KeepLen = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitdown.yaml")
	content := `
data_dir: /tmp/sitdown
source:
  path: /tmp/events.db
  align_latest: true
session:
  idle_threshold: 45m
  workers: 4
hasher:
  enabled: true
  keep_len: 20
storage:
  type: s3
  s3:
    bucket: analytics
    use_path_style: true
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/sitdown", cfg.DataDir)
	assert.Equal(t, "/tmp/events.db", cfg.Source.Path)
	assert.True(t, cfg.Source.AlignLatest)
	assert.Equal(t, 45*time.Minute, cfg.Session.IdleThreshold)
	assert.Equal(t, 4, cfg.Session.Workers)
	assert.True(t, cfg.Hasher.Enabled)
	assert.True(t, cfg.Hasher.Truncate, "defaults survive partial files")
	assert.Equal(t, 20, cfg.Hasher.KeepLen)
	assert.Equal(t, "analytics", cfg.Storage.S3.Bucket)
	assert.True(t, cfg.Storage.S3.UsePathStyle)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/sitdown/catalog.db", cfg.CatalogPath)
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitdown.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "/srv/sitdown", "session": {"workers": 2}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/sitdown", cfg.DataDir)
	assert.Equal(t, 2, cfg.Session.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleThreshold)
}

func TestLoadFromFile_JSONIdleThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitdown.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"session": {"idle_threshold": "45m"}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.Session.IdleThreshold)
	assert.Equal(t, 1, cfg.Session.Workers, "absent workers keeps the default")
	cfg.Resolve()
	assert.NoError(t, cfg.Validate())

	// A bare number would otherwise be read as nanoseconds.
	require.NoError(t, os.WriteFile(path, []byte(`{"session": {"idle_threshold": 45}}`), 0644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
	assert.Equal(t, sderrors.CodeInvalidConfig, sderrors.GetCode(err))

	require.NoError(t, os.WriteFile(path, []byte(`{"session": {"idle_threshold": "soon"}}`), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSessionConfig_JSONRoundTrip(t *testing.T) {
	in := SessionConfig{IdleThreshold: 90 * time.Second, Workers: 3}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"idle_threshold": "1m30s", "workers": 3}`, string(data))

	var out SessionConfig
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, sderrors.ErrCategoryConfig, sderrors.GetCategory(err))

	path := filepath.Join(t.TempDir(), "sitdown.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0644))
	_, err = LoadFromFile(path)
	assert.Equal(t, sderrors.CodeInvalidConfig, sderrors.GetCode(err))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("session: [unclosed"), 0644))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SITDOWN_DATA_DIR", "/env/data")
	t.Setenv("SITDOWN_IDLE_THRESHOLD", "10m")
	t.Setenv("SITDOWN_WORKERS", "8")
	t.Setenv("SITDOWN_HASHER_ENABLED", "1")
	t.Setenv("SITDOWN_STORAGE_TYPE", "s3")
	t.Setenv("SITDOWN_S3_BUCKET", "bucket")
	t.Setenv("SITDOWN_LOG_FORMAT", "json")
	t.Setenv("SITDOWN_HASHER_KEEP_LEN", "not-a-number")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleThreshold)
	assert.Equal(t, 8, cfg.Session.Workers)
	assert.True(t, cfg.Hasher.Enabled)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "bucket", cfg.Storage.S3.Bucket)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 15, cfg.Hasher.KeepLen, "malformed values are ignored")
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()
	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.DataDir, cfg.Output.Path, cfg.Storage.Path} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}
