package normalize

import (
	"math"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// Apply maps every pixel of band through v*slope+intercept and clips the result
// to the closed interval [0, 1], so saturated pixels are exactly 1. Pixels that
// are invalid in band or in template are nodata. A nil template only propagates
// the band's own nodata.
func Apply(band *raster.Band, slope, intercept float64, template *raster.Band) (*raster.Band, error) {
	if template != nil {
		if err := raster.CheckGrids(map[string]*raster.Band{"band": band, "template": template}); err != nil {
			return nil, err
		}
	}
	out := raster.NewBand(band.Grid)
	for i, v := range band.Data {
		if !band.Valid(i) || (template != nil && !template.Valid(i)) {
			continue
		}
		x := float64(v)*slope + intercept
		if math.IsNaN(x) {
			continue
		}
		out.Data[i] = float32(min(max(x, 0), 1))
	}
	return out, nil
}
