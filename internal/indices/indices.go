// Package indices derives normalized-difference spectral indices and simple
// area summaries from reflectance bands and flood masks.
package indices

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// NormalizedDifference computes (a-b)/(a+b) per pixel. Pixels where either input
// is invalid, the denominator is zero or the result is not finite are nodata.
func NormalizedDifference(a, b *raster.Band) (*raster.Band, error) {
	if err := raster.CheckGrids(map[string]*raster.Band{"a": a, "b": b}); err != nil {
		return nil, err
	}
	out := raster.NewBand(a.Grid)
	for i := range out.Data {
		if !a.Valid(i) || !b.Valid(i) {
			continue
		}
		x, y := float64(a.Data[i]), float64(b.Data[i])
		den := x + y
		if den == 0 {
			continue
		}
		v := (x - y) / den
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Data[i] = float32(v)
	}
	return out, nil
}

// NDVI is (nir-red)/(nir+red).
func NDVI(red, nir *raster.Band) (*raster.Band, error) { return NormalizedDifference(nir, red) }

// NDWI is the McFeeters water index (green-nir)/(green+nir).
func NDWI(green, nir *raster.Band) (*raster.Band, error) { return NormalizedDifference(green, nir) }

// MNDWI is the modified water index (green-swir1)/(green+swir1).
func MNDWI(green, swir1 *raster.Band) (*raster.Band, error) {
	return NormalizedDifference(green, swir1)
}

// Set holds the scene indices consumed by flood classification.
type Set struct {
	NDVI  *raster.Band
	NDWI  *raster.Band
	MNDWI *raster.Band
}

// Compute derives NDVI, NDWI and MNDWI from normalized bands.
func Compute(green, red, nir, swir1 *raster.Band) (*Set, error) {
	if green == nil || red == nil || nir == nil || swir1 == nil {
		return nil, fmt.Errorf("indices need green, red, nir and swir1")
	}
	var (
		s   Set
		err error
	)
	if s.NDVI, err = NDVI(red, nir); err != nil {
		return nil, fmt.Errorf("ndvi: %w", err)
	}
	if s.NDWI, err = NDWI(green, nir); err != nil {
		return nil, fmt.Errorf("ndwi: %w", err)
	}
	if s.MNDWI, err = MNDWI(green, swir1); err != nil {
		return nil, fmt.Errorf("mndwi: %w", err)
	}
	return &s, nil
}
