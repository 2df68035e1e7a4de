// Package app builds the shared resources of a sitdown invocation from
// configuration and manages their lifecycle.
package app

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sitdown/sitdown/internal/config"
	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/internal/export"
	"github.com/sitdown/sitdown/internal/idhash"
	"github.com/sitdown/sitdown/internal/logging"
	"github.com/sitdown/sitdown/internal/manifest"
	"github.com/sitdown/sitdown/internal/observability"
	"github.com/sitdown/sitdown/internal/pipeline"
	"github.com/sitdown/sitdown/internal/source"
	"github.com/sitdown/sitdown/internal/storage"
)

// App owns storage, the run catalog, the hash map and metrics.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Shared resources
	storage   storage.ObjectStorage
	catalog   *manifest.SQLiteCatalog
	hasher    *idhash.Hasher
	hashStore idhash.Store
	metrics   *observability.Metrics
	registry  *prometheus.Registry

	mu     sync.Mutex
	opened bool
}

// New resolves and validates cfg and creates the local directories.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return &App{cfg: cfg, logger: logging.OrNop(logger)}, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Open initializes storage, the catalog, the hasher and metrics.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	if err := a.initStorage(ctx); err != nil {
		return err
	}

	catalog, err := manifest.NewCatalog(a.cfg.CatalogPath)
	if err != nil {
		return err
	}
	a.catalog = catalog
	a.logger.Debug("run catalog opened", zap.String("path", a.cfg.CatalogPath))

	a.hasher = idhash.NewHasher(idhash.Options{
		Truncate: a.cfg.Hasher.Truncate,
		KeepLen:  a.cfg.Hasher.KeepLen,
	}, a.logger)
	a.hashStore = a.newHashStore()

	a.registry = prometheus.NewRegistry()
	a.metrics = observability.NewMetrics()
	if err := a.metrics.Register(a.registry); err != nil {
		a.catalog.Close()
		return sderrors.NewInternalError("register metrics", err)
	}

	a.opened = true
	return nil
}

func (a *App) initStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return sderrors.NewConfigError("unsupported storage type: " + a.cfg.Storage.Type)
	}
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.String("type", a.cfg.Storage.Type)}
	if a.cfg.Storage.Type == "s3" {
		fields = append(fields,
			zap.String("bucket", a.cfg.Storage.S3.Bucket),
			zap.String("region", a.cfg.Storage.S3.Region),
			zap.String("endpoint", a.cfg.Storage.S3.Endpoint))
	} else {
		fields = append(fields, zap.String("path", a.cfg.Storage.Path))
	}
	a.logger.Debug("storage initialized", fields...)
	return nil
}

// newHashStore keeps the hash map next to the results: in the bucket for
// s3 storage, in a local file otherwise.
func (a *App) newHashStore() idhash.Store {
	if a.cfg.Storage.Type == "s3" {
		return idhash.NewObjectStore(a.storage, storage.HashMapObjectPath(a.cfg.Output.ObjectPrefix), a.cfg.DataDir)
	}
	return idhash.NewFileStore(a.cfg.Hasher.MapPath)
}

// Run executes one analysis run and writes the metrics textfile when one is
// configured.
func (a *App) Run(ctx context.Context) (*pipeline.Result, error) {
	if err := a.Open(ctx); err != nil {
		return nil, err
	}

	loader, err := source.NewSQLiteLoader(a.cfg.Source.Path, a.logger)
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	opts := []pipeline.RunnerOption{
		pipeline.WithStorage(a.storage),
		pipeline.WithCatalog(a.catalog),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(a.logger),
	}
	if a.cfg.Hasher.Enabled {
		opts = append(opts, pipeline.WithHasher(a.hasher, a.hashStore))
	}

	runner := pipeline.NewRunner(pipeline.Config{
		Options: pipeline.Options{
			IdleThreshold: a.cfg.Session.IdleThreshold,
			Workers:       a.cfg.Session.Workers,
		},
		SourcePath:   a.cfg.Source.Path,
		Tables:       a.cfg.Source.Tables,
		Attributes:   a.cfg.Source.Attributes,
		AlignLatest:  a.cfg.Source.AlignLatest,
		ObjectPrefix: a.cfg.Output.ObjectPrefix,
	}, loader, export.NewWriter(a.cfg.Output.Path, a.logger), opts...)

	res, runErr := runner.Run(ctx)

	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := observability.WriteTextfile(path, a.registry); err != nil {
			a.logger.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	return res, runErr
}

// TranslateSessionID maps a hashed session id back to the original user's
// session id, or the reverse when reverse is set.
func (a *App) TranslateSessionID(ctx context.Context, sessionID string, reverse bool) (string, error) {
	if err := a.Open(ctx); err != nil {
		return "", err
	}
	if err := a.hasher.Load(ctx, a.hashStore); err != nil {
		return "", err
	}
	if reverse {
		return a.hasher.HashSessionID(sessionID)
	}
	return a.hasher.OriginalSessionID(sessionID)
}

// ListRuns returns the most recent runs.
func (a *App) ListRuns(ctx context.Context, limit int) ([]*manifest.RunRecord, error) {
	if err := a.Open(ctx); err != nil {
		return nil, err
	}
	return a.catalog.ListRuns(ctx, limit)
}

// Close releases the catalog.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return nil
	}
	a.opened = false
	return a.catalog.Close()
}
