// Package config provides configuration for sitdown runs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/internal/unify"
	"github.com/sitdown/sitdown/pkg/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SITDOWN_"

// Config holds the configuration of one sitdown run.
type Config struct {
	// DataDir is the base directory for all local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Source describes where the event tables are read from
	Source SourceConfig `json:"source" yaml:"source"`

	// Session configures segmentation
	Session SessionConfig `json:"session" yaml:"session"`

	// Hasher configures user-id hashing
	Hasher HasherConfig `json:"hasher" yaml:"hasher"`

	// Output configures the results database
	Output OutputConfig `json:"output" yaml:"output"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// CatalogPath is the run catalog database
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`
}

// SourceConfig describes the source database.
type SourceConfig struct {
	// Path is the SQLite database holding the event tables
	Path string `json:"path" yaml:"path"`

	// Tables maps event type to table name. Missing entries default to the
	// event type itself.
	Tables map[string]string `json:"tables" yaml:"tables"`

	// Attributes maps event type to its primary attribute column. An empty
	// string means the type has no salient attribute.
	Attributes map[string]string `json:"attributes" yaml:"attributes"`

	// AlignLatest trims every table to the earliest of the per-table latest
	// timestamps
	AlignLatest bool `json:"align_latest" yaml:"align_latest"`
}

// SessionConfig configures the segmenter.
type SessionConfig struct {
	// IdleThreshold is the largest gap that keeps a session open (inclusive)
	IdleThreshold time.Duration `json:"idle_threshold" yaml:"idle_threshold"`

	// Workers is the number of segmentation shards (1 = sequential)
	Workers int `json:"workers" yaml:"workers"`
}

// MinIdleThreshold is the smallest idle threshold Validate accepts.
const MinIdleThreshold = time.Second

// sessionConfigJSON is the JSON form of SessionConfig. The idle threshold is
// a duration string ("45m"), as in YAML.
type sessionConfigJSON struct {
	IdleThreshold json.RawMessage `json:"idle_threshold,omitempty"`
	Workers       *int            `json:"workers,omitempty"`
}

// UnmarshalJSON reads idle_threshold as a duration string. Bare numbers are
// rejected rather than read as nanoseconds. Absent fields keep their values.
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	var raw sessionConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Workers != nil {
		s.Workers = *raw.Workers
	}
	if len(raw.IdleThreshold) == 0 || string(raw.IdleThreshold) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw.IdleThreshold, &text); err != nil {
		return fmt.Errorf("session.idle_threshold must be a duration string such as \"30m\", got %s", raw.IdleThreshold)
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("session.idle_threshold: %w", err)
	}
	s.IdleThreshold = d
	return nil
}

// MarshalJSON writes idle_threshold as a duration string.
func (s SessionConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IdleThreshold string `json:"idle_threshold"`
		Workers       int    `json:"workers"`
	}{s.IdleThreshold.String(), s.Workers})
}

// HasherConfig configures user-id hashing.
type HasherConfig struct {
	// Enabled replaces user ids with their hashes before analysis
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MapPath is the local hash map snapshot. When storage is s3 the
	// snapshot is kept in the bucket instead.
	MapPath string `json:"map_path" yaml:"map_path"`

	// Truncate shortens hashes to KeepLen characters
	Truncate bool `json:"truncate" yaml:"truncate"`

	// KeepLen is the truncated hash length (4–64, default 15)
	KeepLen int `json:"keep_len" yaml:"keep_len"`
}

// OutputConfig configures the results database.
type OutputConfig struct {
	// Path is the local directory results databases are built in
	Path string `json:"path" yaml:"path"`

	// ObjectPrefix is the object storage prefix results are uploaded under
	ObjectPrefix string `json:"object_prefix" yaml:"object_prefix"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Format is json or console
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	// TextfilePath, when set, receives the run metrics in the Prometheus
	// text format
	TextfilePath string `json:"textfile_path" yaml:"textfile_path"`
}

// DefaultConfig returns the default configuration for local runs.
func DefaultConfig() *Config {
	tables := make(map[string]string, len(types.StandardEventTypes))
	for _, et := range types.StandardEventTypes {
		tables[et] = et
	}

	return &Config{
		DataDir: "./data/sitdown",
		Source: SourceConfig{
			Tables:     tables,
			Attributes: unify.DefaultAttributes(),
		},
		Session: SessionConfig{
			IdleThreshold: 30 * time.Minute,
			Workers:       1,
		},
		Hasher: HasherConfig{
			Enabled:  false,
			Truncate: true,
			KeepLen:  15,
		},
		Output: OutputConfig{
			ObjectPrefix: "sitdown",
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/sitdown"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Output.Path == "" {
		c.Output.Path = filepath.Join(c.DataDir, "results")
	}
	if c.Hasher.MapPath == "" {
		c.Hasher.MapPath = filepath.Join(c.DataDir, "hashmap.snappy")
	}
	if c.CatalogPath == "" {
		c.CatalogPath = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Source.Tables == nil {
		c.Source.Tables = make(map[string]string)
	}
	for _, et := range types.StandardEventTypes {
		if c.Source.Tables[et] == "" {
			c.Source.Tables[et] = et
		}
	}
	if c.Source.Attributes == nil {
		c.Source.Attributes = unify.DefaultAttributes()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return sderrors.NewConfigError("data_dir is required")
	}

	if c.Session.IdleThreshold < MinIdleThreshold {
		return sderrors.NewConfigError(fmt.Sprintf("session.idle_threshold must be at least %s, got %s", MinIdleThreshold, c.Session.IdleThreshold))
	}

	if c.Session.Workers < 1 {
		return sderrors.NewConfigError(fmt.Sprintf("session.workers must be at least 1, got %d", c.Session.Workers))
	}

	if c.Hasher.Truncate && (c.Hasher.KeepLen < 4 || c.Hasher.KeepLen > 64) {
		return sderrors.NewConfigError(fmt.Sprintf("hasher.keep_len must be between 4 and 64, got %d", c.Hasher.KeepLen))
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return sderrors.NewConfigError(fmt.Sprintf("invalid storage type: %s (must be local or s3)", c.Storage.Type))
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return sderrors.NewConfigError("s3.bucket is required when storage type is s3")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return sderrors.NewConfigError(fmt.Sprintf("invalid log format: %s (must be json or console)", c.Log.Format))
	}

	for et := range c.Source.Attributes {
		if !isStandardEventType(et) {
			return sderrors.NewConfigError(fmt.Sprintf("source.attributes names unknown event type %q", et))
		}
	}

	return nil
}

func isStandardEventType(et string) bool {
	for _, s := range types.StandardEventTypes {
		if s == et {
			return true
		}
	}
	return false
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sderrors.Wrap(sderrors.ErrCategoryConfig, sderrors.CodeInvalidConfig, "read config file", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, sderrors.Wrap(sderrors.ErrCategoryConfig, sderrors.CodeInvalidConfig, "parse YAML config", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, sderrors.Wrap(sderrors.ErrCategoryConfig, sderrors.CodeInvalidConfig, "parse JSON config", err)
		}
	default:
		return nil, sderrors.NewConfigError(fmt.Sprintf("unsupported config file format: %s", ext))
	}

	return cfg, nil
}

// LoadFromEnv applies SITDOWN_ environment overrides to cfg. Malformed
// numeric and duration values are ignored.
func LoadFromEnv(cfg *Config) {
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	if v := env("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := env("CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}

	// Source configuration
	if v := env("SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := env("SOURCE_ALIGN_LATEST"); v != "" {
		cfg.Source.AlignLatest = parseBool(v)
	}

	// Session configuration
	if v := env("IDLE_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.IdleThreshold = d
		}
	}
	if v := env("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.Workers = n
		}
	}

	// Hasher configuration
	if v := env("HASHER_ENABLED"); v != "" {
		cfg.Hasher.Enabled = parseBool(v)
	}
	if v := env("HASHER_MAP_PATH"); v != "" {
		cfg.Hasher.MapPath = v
	}
	if v := env("HASHER_KEEP_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Hasher.KeepLen = n
		}
	}

	// Output configuration
	if v := env("OUTPUT_PATH"); v != "" {
		cfg.Output.Path = v
	}
	if v := env("OUTPUT_OBJECT_PREFIX"); v != "" {
		cfg.Output.ObjectPrefix = v
	}

	// Storage configuration
	if v := env("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := env("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := env("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := env("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := env("S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := env("S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = parseBool(v)
	}

	// Logging and metrics
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := env("METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Output.Path,
		filepath.Dir(c.CatalogPath),
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.Hasher.Enabled && c.Hasher.MapPath != "" {
		dirs = append(dirs, filepath.Dir(c.Hasher.MapPath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return sderrors.Wrap(sderrors.ErrCategoryConfig, sderrors.CodeInvalidConfig,
				fmt.Sprintf("create directory %s", dir), err)
		}
	}
	return nil
}
