package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/MeKo-Tech/marisma/internal/flood"
	"github.com/MeKo-Tech/marisma/internal/normalize"
	"github.com/MeKo-Tech/marisma/internal/observability"
	"github.com/MeKo-Tech/marisma/internal/pif"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/store"
)

// Config holds the static inputs and the parameters of every stage.
type Config struct {
	// ReferenceDir holds one reference raster per reflective band, named <band>.tif.
	ReferenceDir string
	// Masks maps each zone mask variant to its raster.
	Masks map[normalize.MaskVariant]string
	// AncillaryDir holds the static flood inputs, named <name>.tif.
	AncillaryDir string

	Criteria    pif.Criteria
	Escalation  []normalize.Attempt
	BandWorkers int

	Thresholds    flood.Thresholds
	InvalidPolicy flood.InvalidPolicy

	OutputDir     string
	WriteIndices  bool
	Quicklooks    bool
	QuicklookSize int
	// Scatter keeps calibration samples and plots one scatter per accepted band.
	Scatter bool
}

// DefaultConfig returns the Doñana defaults with no paths set.
func DefaultConfig() Config {
	return Config{
		Masks:         map[normalize.MaskVariant]string{},
		Criteria:      pif.DefaultCriteria(),
		Escalation:    normalize.DefaultEscalation(),
		Thresholds:    flood.DefaultThresholds(),
		InvalidPolicy: flood.InvalidAsNoData,
		OutputDir:     "output",
		WriteIndices:  true,
		Quicklooks:    true,
		QuicklookSize: 1024,
	}
}

// ReferencePath is the reference raster of a band.
func (c Config) ReferencePath(band string) string {
	return filepath.Join(c.ReferenceDir, band+".tif")
}

// AncillaryPath is the static raster with the given name.
func (c Config) AncillaryPath(name string) string {
	return filepath.Join(c.AncillaryDir, name+".tif")
}

// Validate checks the parts of the configuration every run needs.
func (c Config) Validate() error {
	if c.ReferenceDir == "" {
		return errors.New("reference directory is required")
	}
	for _, v := range normalize.Variants(c.steps()) {
		if c.Masks[v] == "" {
			return fmt.Errorf("%w: no path for %s", normalize.ErrMissingMask, v)
		}
	}
	if c.Criteria.MinR < 0 || c.Criteria.MinR >= 1 {
		return fmt.Errorf("min_r must be within [0,1), got %v", c.Criteria.MinR)
	}
	if c.Criteria.MinZonePixels < 1 {
		return fmt.Errorf("min_zone_pixels must be positive, got %d", c.Criteria.MinZonePixels)
	}
	for i, a := range c.Escalation {
		if a.Mask != normalize.Balanced && a.Mask != normalize.Unbalanced {
			return fmt.Errorf("escalation step %d: unknown mask %q", i+1, a.Mask)
		}
		if a.Coef <= 0 {
			return fmt.Errorf("escalation step %d: coef must be positive, got %v", i+1, a.Coef)
		}
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if _, err := flood.ParseInvalidPolicy(string(c.InvalidPolicy)); err != nil {
		return err
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	return nil
}

func (c Config) steps() []normalize.Attempt {
	if len(c.Escalation) == 0 {
		return normalize.DefaultEscalation()
	}
	return c.Escalation
}

// Pipeline processes scenes against shared, read-only resources.
type Pipeline struct {
	cfg        Config
	res        *Resources
	reader     raster.Reader
	writer     raster.Writer
	controller *normalize.Controller
	classifier *flood.Classifier
	sink       store.Sink
	metrics    *observability.Metrics
	clock      clockwork.Clock
	runID      string
	logger     *slog.Logger
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg       Config
	reader    raster.Reader
	writer    raster.Writer
	sink      store.Sink
	metrics   *observability.Metrics
	clock     clockwork.Clock
	runID     string
	logger    *slog.Logger
	ancillary bool
	resources *Resources
}

// NewBuilder creates a new pipeline builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, ancillary: true}
}

// WithIO sets the raster reader and writer.
func (b *Builder) WithIO(r raster.Reader, w raster.Writer) *Builder {
	b.reader, b.writer = r, w
	return b
}

// WithSink persists parameters and areas.
func (b *Builder) WithSink(s store.Sink) *Builder {
	b.sink = s
	return b
}

// WithMetrics records per-scene metrics.
func (b *Builder) WithMetrics(m *observability.Metrics) *Builder {
	b.metrics = m
	return b
}

// WithClock sets the clock used for timestamps and stage timing.
func (b *Builder) WithClock(c clockwork.Clock) *Builder {
	b.clock = c
	return b
}

// WithRunID sets the identifier stamped on stored records.
func (b *Builder) WithRunID(id string) *Builder {
	b.runID = id
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithoutAncillary skips loading the flood inputs; Flood then fails.
func (b *Builder) WithoutAncillary() *Builder {
	b.ancillary = false
	return b
}

// WithResources uses already loaded resources instead of reading them.
func (b *Builder) WithResources(res *Resources) *Builder {
	b.resources = res
	return b
}

// Build validates the configuration and loads the shared resources once.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if b.reader == nil || b.writer == nil {
		return nil, errors.New("raster reader and writer are required")
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.clock == nil {
		b.clock = clockwork.NewRealClock()
	}
	if b.runID == "" {
		b.runID = uuid.NewString()
	}
	if b.cfg.InvalidPolicy == "" {
		b.cfg.InvalidPolicy = flood.InvalidAsNoData
	}

	res := b.resources
	if res == nil {
		var err error
		res, err = LoadResources(b.reader, b.cfg, b.ancillary)
		if err != nil {
			return nil, err
		}
	}

	ctrl := normalize.NewController(pif.NewEngine(b.cfg.Criteria), b.logger)
	ctrl.Escalation = b.cfg.steps()
	ctrl.Workers = b.cfg.BandWorkers

	return &Pipeline{
		cfg:        b.cfg,
		res:        res,
		reader:     b.reader,
		writer:     b.writer,
		controller: ctrl,
		classifier: flood.NewClassifier(b.cfg.Thresholds, b.logger),
		sink:       b.sink,
		metrics:    b.metrics,
		clock:      b.clock,
		runID:      b.runID,
		logger:     b.logger.With("run_id", b.runID),
	}, nil
}

// RunID identifies this pipeline's records.
func (p *Pipeline) RunID() string { return p.runID }

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// Close releases the parameter sink.
func (p *Pipeline) Close() error {
	if p.sink == nil {
		return nil
	}
	return p.sink.Close()
}
