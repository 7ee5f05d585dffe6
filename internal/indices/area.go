package indices

import "github.com/MeKo-Tech/marisma/internal/raster"

const sqmPerHectare = 10000.0

// Area summarizes a flood mask.
type Area struct {
	FloodedPixels int     `json:"flooded_pixels" yaml:"flooded_pixels" csv:"flooded_pixels"`
	DryPixels     int     `json:"dry_pixels" yaml:"dry_pixels" csv:"dry_pixels"`
	InvalidPixels int     `json:"invalid_pixels" yaml:"invalid_pixels" csv:"invalid_pixels"`
	NoDataPixels  int     `json:"nodata_pixels" yaml:"nodata_pixels" csv:"nodata_pixels"`
	FloodedHa     float64 `json:"flooded_ha" yaml:"flooded_ha" csv:"flooded_ha"`
	DryHa         float64 `json:"dry_ha" yaml:"dry_ha" csv:"dry_ha"`
}

// FloodedArea counts mask codes and converts flooded and dry pixels to hectares
// using the pixel size of the mask's geotransform (metres assumed).
func FloodedArea(m *raster.Mask) Area {
	var a Area
	for _, v := range m.Data {
		switch v {
		case 1:
			a.FloodedPixels++
		case 0:
			a.DryPixels++
		case 2:
			a.InvalidPixels++
		default:
			a.NoDataPixels++
		}
	}
	px := m.PixelArea()
	a.FloodedHa = float64(a.FloodedPixels) * px / sqmPerHectare
	a.DryHa = float64(a.DryPixels) * px / sqmPerHectare
	return a
}
