package batch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/MeKo-Tech/marisma/internal/config"
	"github.com/MeKo-Tech/marisma/internal/observability"
	"github.com/MeKo-Tech/marisma/internal/pipeline"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/raster/gdal"
	"github.com/MeKo-Tech/marisma/internal/store"
)

// Deps are the collaborators of a pipeline built from configuration. Zero
// values select GDAL I/O, the sinks named by the store config, no metrics
// and the real clock.
type Deps struct {
	Reader    raster.Reader
	Writer    raster.Writer
	Sink      store.Sink
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
	RunID     string
	Ancillary bool
}

// BuildPipeline creates a scene pipeline from the application configuration.
func BuildPipeline(cfg *config.Config, deps Deps) (*pipeline.Pipeline, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Reader == nil || deps.Writer == nil {
		g := gdal.New(cfg.Output.Compress, deps.Logger)
		if deps.Reader == nil {
			deps.Reader = g
		}
		if deps.Writer == nil {
			deps.Writer = g
		}
	}
	sink := deps.Sink
	if sink == nil {
		var err error
		if sink, err = OpenSink(cfg.Store); err != nil {
			return nil, err
		}
	}

	b := pipeline.NewBuilder(cfg.ToPipelineConfig()).
		WithIO(deps.Reader, deps.Writer).
		WithLogger(deps.Logger)
	if sink != nil {
		b = b.WithSink(sink)
	}
	if deps.Metrics != nil {
		b = b.WithMetrics(deps.Metrics)
	}
	if deps.Clock != nil {
		b = b.WithClock(deps.Clock)
	}
	if deps.RunID != "" {
		b = b.WithRunID(deps.RunID)
	}
	if !deps.Ancillary {
		b = b.WithoutAncillary()
	}

	pl, err := b.Build()
	if err != nil {
		if sink != nil && deps.Sink == nil {
			err = errors.Join(err, sink.Close())
		}
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return pl, nil
}

// OpenSink opens the configured parameter sinks. It returns nil when none is
// configured.
func OpenSink(cfg config.StoreConfig) (store.Sink, error) {
	var sinks store.Multi
	if cfg.SQLitePath != "" {
		db, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, db)
	}
	if cfg.CSVDir != "" {
		log, err := store.NewCSVLog(cfg.CSVDir)
		if err != nil {
			return nil, errors.Join(err, sinks.Close())
		}
		sinks = append(sinks, log)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}
