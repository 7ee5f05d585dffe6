package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/marisma/internal/common"
	"github.com/MeKo-Tech/marisma/internal/flood"
	"github.com/MeKo-Tech/marisma/internal/indices"
	"github.com/MeKo-Tech/marisma/internal/normalize"
	"github.com/MeKo-Tech/marisma/internal/quicklook"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/scene"
	"github.com/MeKo-Tech/marisma/internal/store"
)

// ErrBandUnavailable is returned when flood classification needs a band that
// was not normalized.
var ErrBandUnavailable = fmt.Errorf("%w: not normalized", scene.ErrMissingBand)

const scatterSize = 800

// floodBands are the normalized bands the indices and the cascade read.
var floodBands = []scene.BandName{scene.Green, scene.Red, scene.NIR, scene.SWIR1}

// Mode selects the stages of a run.
type Mode int

const (
	ModeNormalize Mode = 1 << iota
	ModeFlood
	ModeFull = ModeNormalize | ModeFlood
)

// SceneDir is the output directory of a scene.
func (p *Pipeline) SceneDir(name string) string { return filepath.Join(p.cfg.OutputDir, name) }

// NormalizedPath is where a normalized band is written.
func (p *Pipeline) NormalizedPath(name string, band scene.BandName) string {
	return filepath.Join(p.SceneDir(name), fmt.Sprintf("%s_%s_norm.tif", name, band))
}

// FloodPath is where the flood mask is written.
func (p *Pipeline) FloodPath(name string) string {
	return filepath.Join(p.SceneDir(name), name+"_flood.tif")
}

func (p *Pipeline) scatterPath(name string, band scene.BandName) string {
	return filepath.Join(p.SceneDir(name), fmt.Sprintf("%s_%s_scatter.png", name, band))
}

func (p *Pipeline) indexPath(name, index string) string {
	return filepath.Join(p.SceneDir(name), fmt.Sprintf("%s_%s.tif", name, index))
}

// ProcessScene normalizes a scene and classifies its flood mask.
func (p *Pipeline) ProcessScene(ctx context.Context, dir string) (*SceneResult, error) {
	return p.Run(ctx, dir, ModeFull)
}

// Run processes the scene in dir through the stages selected by mode. With
// ModeFlood alone the normalized bands are read back from the output
// directory. The returned result is never nil; on error it carries the error.
func (p *Pipeline) Run(ctx context.Context, dir string, mode Mode) (res *SceneResult, err error) {
	res = &SceneResult{Dir: dir}
	stages := common.NewStages(p.clock)
	if p.metrics != nil {
		p.metrics.ScenesInProgress.Inc()
	}
	defer func() {
		stages.End()
		res.Stages = stages.Durations()
		res.Duration = stages.Total()
		p.observe(res)
		if err != nil {
			p.logger.Error("scene failed", "scene", res.name(), "error", err)
			return
		}
		p.logger.Info("scene processed", "scene", res.Scene, "stages", stages.String(),
			"normalized", len(res.Normalized), "not_normalized", len(res.NotNormalized))
	}()

	if err := ctx.Err(); err != nil {
		return res, res.fail(err)
	}

	stages.Begin("load")
	sc, err := scene.Open(dir)
	if err != nil {
		return res, res.fail(err)
	}
	name := sc.Name()
	res.Scene, res.Sensor, res.Date = name, sc.ID.Sensor, sc.ID.Date
	rasters, err := sc.Load(p.reader)
	if err != nil {
		return res, res.fail(err)
	}
	res.Footprint = rasters.QA.Bound()
	if g := p.res.Grid(); !g.Matches(rasters.QA.Grid) {
		return res, res.fail(fmt.Errorf("scene %s against reference: %w", name, raster.ErrGridMismatch))
	}
	codes := sc.ID.Sensor.ClearCodes()

	var bands map[scene.BandName]*raster.Band
	if mode&ModeNormalize != 0 {
		stages.Begin("normalize")
		nr, err := p.controller.NormalizeScene(ctx, normalize.SceneInput{
			Scene:       name,
			Bands:       rasters.Bands,
			Reference:   p.res.Reference,
			QA:          rasters.QA,
			Masks:       p.res.Masks,
			Clear:       codes,
			Template:    rasters.Band(scene.NIR),
			KeepSamples: p.cfg.Scatter,
		})
		if err != nil {
			return res, res.fail(err)
		}
		res.setNormalization(nr)

		stages.Begin("write")
		if err := p.writeNormalized(ctx, res, nr); err != nil {
			return res, res.fail(err)
		}
		bands = nr.Output
	} else {
		if bands, err = p.readNormalized(name); err != nil {
			return res, res.fail(err)
		}
	}

	if mode&ModeFlood == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, res.fail(err)
	}

	stages.Begin("flood")
	fr, err := p.classify(bands, rasters.QA, codes)
	if err != nil {
		return res, res.fail(fmt.Errorf("scene %s flood: %w", name, err))
	}
	area := indices.FloodedArea(fr.Mask)
	res.setFlood(fr.Result, area)

	stages.Begin("write")
	if err := p.writeFlood(ctx, res, fr); err != nil {
		return res, res.fail(err)
	}
	return res, nil
}

func (p *Pipeline) writeNormalized(ctx context.Context, res *SceneResult, nr *normalize.Result) error {
	name := res.Scene
	for _, band := range nr.Normalized {
		path := p.NormalizedPath(name, band)
		if err := p.writer.WriteBand(path, nr.Output[band], raster.Float32); err != nil {
			return fmt.Errorf("write %s: %w", band, err)
		}
		res.Outputs = append(res.Outputs, path)
	}
	// An exhausted band is unavailable; a product left by an earlier run must
	// not be read back as current.
	for _, band := range nr.NotNormalized {
		if err := p.writer.Remove(p.NormalizedPath(name, band)); err != nil {
			return fmt.Errorf("remove stale %s: %w", band, err)
		}
		if err := os.Remove(p.scatterPath(name, band)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale %s scatter plot: %w", band, err)
		}
	}

	if p.sink != nil && len(nr.Normalized) > 0 {
		at := p.clock.Now()
		recs := make([]store.Record, 0, len(nr.Normalized))
		for _, band := range nr.Normalized {
			recs = append(recs, store.FromParams(p.runID, name, nr.Params[band], at))
		}
		if err := p.sink.SaveParams(ctx, recs); err != nil {
			return fmt.Errorf("save parameters of %s: %w", name, err)
		}
	}

	if !p.cfg.Scatter {
		return nil
	}
	for _, band := range nr.Normalized {
		path := p.scatterPath(name, band)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		title := fmt.Sprintf("%s %s", name, band)
		if err := quicklook.WriteScatterPNG(path, nr.Outcomes[band].Accepted, title, scatterSize); err != nil {
			p.logger.Warn("scatter plot skipped", "scene", name, "band", band, "error", err)
			continue
		}
		res.Outputs = append(res.Outputs, path)
	}
	return nil
}

// readNormalized loads the bands needed by the cascade from a previous run.
func (p *Pipeline) readNormalized(name string) (map[scene.BandName]*raster.Band, error) {
	out := make(map[scene.BandName]*raster.Band, len(floodBands))
	for _, band := range floodBands {
		b, err := p.reader.ReadBand(p.NormalizedPath(name, band))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBandUnavailable, band, err)
		}
		out[band] = b
	}
	return out, nil
}

// classify derives the indices from the normalized bands and runs the cascade.
func (p *Pipeline) classify(bands map[scene.BandName]*raster.Band, qa *raster.Band, codes scene.ClearCodes) (*classified, error) {
	var missing []string
	for _, band := range floodBands {
		if bands[band] == nil {
			missing = append(missing, string(band))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrBandUnavailable, strings.Join(missing, ", "))
	}

	set, err := indices.Compute(bands[scene.Green], bands[scene.Red], bands[scene.NIR], bands[scene.SWIR1])
	if err != nil {
		return nil, err
	}
	fr, err := p.classifier.Classify(flood.SceneInputs{
		SWIR1: bands[scene.SWIR1],
		NDVI:  set.NDVI,
		NDWI:  set.NDWI,
		MNDWI: set.MNDWI,
		QA:    qa,
		Clear: codes,
	}, p.res.Ancillary)
	if err != nil {
		return nil, err
	}
	return &classified{Result: fr, Indices: set}, nil
}

type classified struct {
	*flood.Result
	Indices *indices.Set
}

func (p *Pipeline) writeFlood(ctx context.Context, res *SceneResult, c *classified) error {
	name := res.Scene
	final := flood.Finalize(c.Mask, p.cfg.InvalidPolicy)

	path := p.FloodPath(name)
	if err := p.writer.WriteMask(path, final); err != nil {
		return fmt.Errorf("write flood mask: %w", err)
	}
	res.Outputs = append(res.Outputs, path)

	if p.cfg.WriteIndices {
		for _, idx := range []struct {
			name string
			band *raster.Band
		}{{"ndvi", c.Indices.NDVI}, {"ndwi", c.Indices.NDWI}, {"mndwi", c.Indices.MNDWI}} {
			ip := p.indexPath(name, idx.name)
			if err := p.writer.WriteBand(ip, idx.band, raster.Float32); err != nil {
				return fmt.Errorf("write %s: %w", idx.name, err)
			}
			res.Outputs = append(res.Outputs, ip)
		}
	}

	if p.sink != nil {
		rec := store.AreaRecord{RunID: p.runID, Scene: name, Area: *res.Area, ProcessedAt: p.clock.Now().UTC()}
		if err := p.sink.SaveArea(ctx, rec); err != nil {
			return fmt.Errorf("save area of %s: %w", name, err)
		}
	}

	if p.cfg.Quicklooks {
		png := filepath.Join(p.SceneDir(name), name+"_flood.png")
		if err := os.MkdirAll(filepath.Dir(png), 0o750); err != nil {
			return err
		}
		if err := quicklook.WriteFloodPNG(png, final, name, p.cfg.QuicklookSize); err != nil {
			return fmt.Errorf("flood quicklook: %w", err)
		}
		res.Outputs = append(res.Outputs, png)
	}
	return nil
}

func (p *Pipeline) observe(res *SceneResult) {
	m := p.metrics
	if m == nil {
		return
	}
	m.ScenesInProgress.Dec()
	status := "ok"
	if res.Err != nil {
		status = "error"
	}
	m.ScenesProcessed.WithLabelValues(status).Inc()
	for stage, d := range res.Stages {
		m.SceneDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
	m.SceneDuration.WithLabelValues("total").Observe(res.Duration.Seconds())
	for _, band := range res.Normalized {
		m.BandsNormalized.WithLabelValues(string(band), "normalized").Inc()
		if prm := res.Params[band]; prm != nil {
			m.AcceptedAttempt.WithLabelValues(string(band)).Observe(float64(prm.Iteration))
		}
	}
	for _, band := range res.NotNormalized {
		m.BandsNormalized.WithLabelValues(string(band), "not_normalized").Inc()
	}
	if res.Area != nil {
		m.FloodedHectares.Observe(res.Area.FloodedHa)
	}
}
