package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitdown/sitdown/internal/export"
	"github.com/sitdown/sitdown/internal/idhash"
	"github.com/sitdown/sitdown/internal/logging"
	"github.com/sitdown/sitdown/internal/manifest"
	"github.com/sitdown/sitdown/internal/observability"
	"github.com/sitdown/sitdown/internal/storage"
	"github.com/sitdown/sitdown/internal/unify"
	"github.com/sitdown/sitdown/pkg/types"
)

// Stage names used for timing and metrics.
const (
	StageLoad    = "load"
	StageAlign   = "align"
	StageUnify   = "unify"
	StageHash    = "hash"
	StageAnalyze = "analyze"
	StageExport  = "export"
	StageUpload  = "upload"
	StageCatalog = "catalog"
)

// Loader materializes the source tables, parallel to
// types.StandardEventTypes.
type Loader interface {
	LoadAll(ctx context.Context, tables map[string]string) ([]*types.Table, error)
}

// Config describes one run.
type Config struct {
	Options

	// SourcePath is recorded in the catalog and results
	SourcePath string
	// Tables maps event type to source table name
	Tables map[string]string
	// Attributes maps event type to primary attribute column
	Attributes map[string]string
	// AlignLatest trims sources to a common latest timestamp
	AlignLatest bool
	// ObjectPrefix is the storage prefix results are uploaded under
	ObjectPrefix string
}

// Result describes a finished run.
type Result struct {
	*Analysis

	RunID          string
	AlignCutoff    time.Time
	File           *export.FileInfo
	ObjectPath     string
	HashCollisions int
	Stages         []observability.StageTiming
}

// Runner executes runs. Storage, catalog, hashing and metrics are optional.
type Runner struct {
	cfg       Config
	loader    Loader
	writer    *export.Writer
	storage   storage.ObjectStorage
	catalog   manifest.Catalog
	hasher    *idhash.Hasher
	hashStore idhash.Store
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStorage uploads results to store.
func WithStorage(store storage.ObjectStorage) RunnerOption {
	return func(r *Runner) { r.storage = store }
}

// WithCatalog records runs in c.
func WithCatalog(c manifest.Catalog) RunnerOption {
	return func(r *Runner) { r.catalog = c }
}

// WithHasher replaces user ids with hashes. When store is non-nil the hash
// map is loaded before and saved after hashing.
func WithHasher(h *idhash.Hasher, store idhash.Store) RunnerOption {
	return func(r *Runner) {
		r.hasher = h
		r.hashStore = store
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logging.OrNop(l) }
}

// NewRunner creates a runner.
func NewRunner(cfg Config, loader Loader, writer *export.Writer, opts ...RunnerOption) *Runner {
	if cfg.Attributes == nil {
		cfg.Attributes = unify.DefaultAttributes()
	}
	r := &Runner{
		cfg:    cfg,
		loader: loader,
		writer: writer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one analysis run. The run is registered in the catalog
// before any work starts and marked failed if a stage returns an error.
func (r *Runner) Run(ctx context.Context) (res *Result, err error) {
	runID, err := r.register(ctx)
	if err != nil {
		return nil, err
	}
	logger := logging.WithRun(r.logger, runID)
	stages := observability.NewStageStats()

	// uploaded is set once the results object exists, so a later failure
	// can remove it.
	var uploaded string

	defer func() {
		if err == nil {
			return
		}
		logger.Error("run failed", zap.Error(err))
		if r.metrics != nil {
			r.metrics.IncRuns(observability.StatusFailure)
		}
		cleanupCtx := context.WithoutCancel(ctx)
		if uploaded != "" {
			if derr := r.storage.Delete(cleanupCtx, uploaded); derr != nil {
				logger.Warn("failed to remove results of failed run", zap.String("object", uploaded), zap.Error(derr))
			}
		}
		if r.catalog != nil {
			if ferr := r.catalog.FailRun(cleanupCtx, runID, err); ferr != nil {
				logger.Warn("failed to record run failure", zap.Error(ferr))
			}
		}
	}()

	logger.Info("run started",
		zap.String("source", r.cfg.SourcePath),
		zap.Duration("idle_threshold", r.cfg.IdleThreshold),
		zap.Int("workers", r.cfg.Workers))

	res = &Result{RunID: runID}

	var tables []*types.Table
	if err := stages.Time(StageLoad, func() error {
		var lerr error
		tables, lerr = r.loader.LoadAll(ctx, r.cfg.Tables)
		return lerr
	}); err != nil {
		return nil, err
	}

	if r.cfg.AlignLatest {
		if err := stages.Time(StageAlign, func() error {
			var aerr error
			tables, res.AlignCutoff, aerr = unify.AlignLatest(tables)
			return aerr
		}); err != nil {
			return nil, err
		}
		logger.Info("aligned sources", zap.Time("cutoff", res.AlignCutoff))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []types.Event
	if err := stages.Time(StageUnify, func() error {
		var uerr error
		events, uerr = unify.Unify(r.sources(tables))
		return uerr
	}); err != nil {
		return nil, err
	}

	if r.hasher != nil {
		if err := stages.Time(StageHash, func() error {
			var herr error
			res.HashCollisions, herr = r.hashUsers(ctx, events)
			return herr
		}); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := stages.Time(StageAnalyze, func() error {
		var aerr error
		res.Analysis, aerr = AnalyzeEvents(events, Options{
			IdleThreshold: r.cfg.IdleThreshold,
			Workers:       r.cfg.Workers,
			Logger:        logger,
		})
		return aerr
	}); err != nil {
		return nil, err
	}
	logger.Info("analysis complete",
		zap.Int("events", res.Events),
		zap.Int("users", res.Users),
		zap.Int("sessions", res.Sessions.Len()))

	if err := stages.Time(StageExport, func() error {
		var eerr error
		res.File, eerr = r.writer.Write(ctx, &export.Results{
			RunID:         runID,
			IdleThreshold: res.Timeline.IdleThreshold,
			Timeline:      res.Timeline,
			Sessions:      res.Sessions,
			Timings:       res.Timings.Tables(),
			Info:          r.runInfo(res),
		})
		return eerr
	}); err != nil {
		return nil, err
	}

	if r.storage != nil {
		res.ObjectPath = storage.ResultsObjectPath(r.cfg.ObjectPrefix, runID)
		if err := stages.Time(StageUpload, func() error {
			return r.storage.Upload(ctx, res.File.Path, res.ObjectPath)
		}); err != nil {
			return nil, err
		}
		uploaded = res.ObjectPath
		logger.Info("results uploaded", zap.String("object", res.ObjectPath))
	}

	if r.catalog != nil {
		if err := stages.Time(StageCatalog, func() error {
			return r.catalog.CompleteRun(ctx, runID, manifest.RunStats{
				EventCount:   int64(res.Events),
				TimelineRows: int64(res.Timeline.Len()),
				SessionCount: int64(res.Sessions.Len()),
				UserCount:    int64(res.Users),
				ObjectPath:   res.ObjectPath,
				SizeBytes:    res.File.SizeBytes,
			})
		}); err != nil {
			return nil, err
		}
	}

	res.Stages = stages.Stages()
	r.recordMetrics(res)

	fields := []zap.Field{zap.Duration("elapsed", stages.Total())}
	if slowest := stages.Slowest(1); len(slowest) > 0 {
		fields = append(fields,
			zap.String("slowest_stage", slowest[0].Stage),
			zap.Duration("slowest_elapsed", slowest[0].Total))
	}
	logger.Info("run completed", fields...)
	return res, nil
}

func (r *Runner) register(ctx context.Context) (string, error) {
	if r.catalog == nil {
		return uuid.New().String(), nil
	}
	return r.catalog.RegisterRun(ctx, r.cfg.SourcePath, r.cfg.IdleThreshold)
}

// sources pairs each loaded table with its event type and attribute.
func (r *Runner) sources(tables []*types.Table) []unify.Source {
	sources := make([]unify.Source, 0, len(tables))
	for i, tbl := range tables {
		if i >= len(types.StandardEventTypes) {
			break
		}
		et := types.StandardEventTypes[i]
		sources = append(sources, unify.Source{
			EventType:        et,
			Table:            tbl,
			PrimaryAttribute: r.cfg.Attributes[et],
		})
	}
	return sources
}

// hashUsers replaces every user id in events with its hash and returns the
// number of new collisions.
func (r *Runner) hashUsers(ctx context.Context, events []types.Event) (int, error) {
	if r.hashStore != nil {
		if err := r.hasher.Load(ctx, r.hashStore); err != nil {
			return 0, err
		}
	}

	before := r.hasher.Collisions()
	for i := range events {
		events[i].UserID = r.hasher.HashUserID(events[i].UserID)
	}

	if r.hashStore != nil {
		if err := r.hasher.Save(ctx, r.hashStore); err != nil {
			return 0, err
		}
	}
	return r.hasher.Collisions() - before, nil
}

func (r *Runner) runInfo(res *Result) map[string]string {
	info := map[string]string{
		"source_path": r.cfg.SourcePath,
		"hashed":      "false",
	}
	if r.hasher != nil {
		info["hashed"] = "true"
	}
	if !res.AlignCutoff.IsZero() {
		info["align_cutoff"] = res.AlignCutoff.UTC().Format(time.RFC3339Nano)
	}
	return info
}

func (r *Runner) recordMetrics(res *Result) {
	if r.metrics == nil {
		return
	}
	for et, n := range res.EventCounts {
		r.metrics.AddEvents(et, n)
	}
	r.metrics.AddSessions(res.Sessions.Len())
	r.metrics.AddHashCollisions(res.HashCollisions)
	for _, st := range res.Stages {
		r.metrics.ObserveStage(st.Stage, st.Total.Seconds())
	}
	r.metrics.IncRuns(observability.StatusSuccess)
}
