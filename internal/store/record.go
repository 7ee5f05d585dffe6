// Package store persists accepted normalization parameters and flood area
// summaries, to SQLite and to a CSV log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MeKo-Tech/marisma/internal/indices"
	"github.com/MeKo-Tech/marisma/internal/normalize"
	"github.com/MeKo-Tech/marisma/internal/pif"
)

// Record is one accepted (scene, band) normalization.
type Record struct {
	RunID        string    `csv:"run_id" json:"run_id"`
	Scene        string    `csv:"scene" json:"scene"`
	Band         string    `csv:"band" json:"band"`
	Slope        float64   `csv:"slope" json:"slope"`
	Intercept    float64   `csv:"intercept" json:"intercept"`
	StdThreshold float64   `csv:"std_threshold" json:"std_threshold"`
	R            float64   `csv:"r" json:"r"`
	N            int       `csv:"n" json:"n"`
	Iteration    int       `csv:"iteration" json:"iteration"`
	Mask         string    `csv:"mask" json:"mask"`
	Coef         float64   `csv:"coef" json:"coef"`
	Sea          int       `csv:"n_sea" json:"n_sea"`
	Reservoirs   int       `csv:"n_reservoirs" json:"n_reservoirs"`
	PineForest   int       `csv:"n_pine_forest" json:"n_pine_forest"`
	Urban1       int       `csv:"n_urban_1" json:"n_urban_1"`
	Urban2       int       `csv:"n_urban_2" json:"n_urban_2"`
	Airports     int       `csv:"n_airports" json:"n_airports"`
	Sand         int       `csv:"n_sand" json:"n_sand"`
	Grassland    int       `csv:"n_grassland" json:"n_grassland"`
	Mining       int       `csv:"n_mining" json:"n_mining"`
	ProcessedAt  time.Time `csv:"processed_at" json:"processed_at"`
}

// FromParams flattens accepted parameters into a record.
func FromParams(runID, scene string, p *normalize.Params, at time.Time) Record {
	z := p.ZoneCounts
	return Record{
		RunID:        runID,
		Scene:        scene,
		Band:         string(p.Band),
		Slope:        p.Slope,
		Intercept:    p.Intercept,
		StdThreshold: p.StdThreshold,
		R:            p.R,
		N:            p.N,
		Iteration:    p.Iteration,
		Mask:         string(p.Mask),
		Coef:         p.Coef,
		Sea:          z.Of(pif.Sea),
		Reservoirs:   z.Of(pif.Reservoirs),
		PineForest:   z.Of(pif.PineForest),
		Urban1:       z.Of(pif.Urban1),
		Urban2:       z.Of(pif.Urban2),
		Airports:     z.Of(pif.Airports),
		Sand:         z.Of(pif.Sand),
		Grassland:    z.Of(pif.Grassland),
		Mining:       z.Of(pif.Mining),
		ProcessedAt:  at.UTC(),
	}
}

// ZoneCounts rebuilds the per-class counts of the record.
func (r Record) ZoneCounts() pif.ZoneCounts {
	return pif.ZoneCounts{r.Sea, r.Reservoirs, r.PineForest, r.Urban1, r.Urban2,
		r.Airports, r.Sand, r.Grassland, r.Mining}
}

// AreaRecord is the flood area summary of one scene.
type AreaRecord struct {
	RunID string `csv:"run_id" json:"run_id"`
	Scene string `csv:"scene" json:"scene"`
	indices.Area
	ProcessedAt time.Time `csv:"processed_at" json:"processed_at"`
}

// Sink receives the records of a processed scene.
type Sink interface {
	SaveParams(ctx context.Context, recs []Record) error
	SaveArea(ctx context.Context, rec AreaRecord) error
	Close() error
}

// Multi fans records out to several sinks. Every sink is attempted.
type Multi []Sink

func (m Multi) SaveParams(ctx context.Context, recs []Record) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SaveParams(ctx, recs))
	}
	return errors.Join(errs...)
}

func (m Multi) SaveArea(ctx context.Context, rec AreaRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SaveArea(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
