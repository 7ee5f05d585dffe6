package flood

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/scene"
)

// ErrMissingAncillary is returned when one of the eight ancillary rasters is absent.
var ErrMissingAncillary = errors.New("missing ancillary raster")

// Ancillary are the static rasters of the study area. They are read once and
// shared read-only by every scene.
type Ancillary struct {
	DTM            *raster.Band
	Slope          *raster.Band
	Hillshade      *raster.Band
	NDWIComposite  *raster.Band
	MNDWIComposite *raster.Band
	NDVIP10        *raster.Band
	NDVIMean       *raster.Band
	CobVeg         *raster.Band
}

// Named returns the rasters keyed by their configuration name.
func (a *Ancillary) Named() map[string]*raster.Band {
	return map[string]*raster.Band{
		"dtm":             a.DTM,
		"slope":           a.Slope,
		"hillshade":       a.Hillshade,
		"ndwi_composite":  a.NDWIComposite,
		"mndwi_composite": a.MNDWIComposite,
		"ndvi_p10":        a.NDVIP10,
		"ndvi_mean":       a.NDVIMean,
		"cobveg":          a.CobVeg,
	}
}

// AncillaryNames lists the configuration names of the ancillary rasters.
var AncillaryNames = []string{
	"dtm", "slope", "hillshade", "ndwi_composite", "mndwi_composite", "ndvi_p10", "ndvi_mean", "cobveg",
}

// Validate fails with ErrMissingAncillary naming every absent raster.
func (a *Ancillary) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: %s", ErrMissingAncillary, strings.Join(AncillaryNames, ", "))
	}
	named := a.Named()
	var missing []string
	for _, n := range AncillaryNames {
		if named[n] == nil {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingAncillary, strings.Join(missing, ", "))
	}
	return nil
}

// Set assigns a raster by configuration name.
func (a *Ancillary) Set(name string, b *raster.Band) error {
	switch name {
	case "dtm":
		a.DTM = b
	case "slope":
		a.Slope = b
	case "hillshade":
		a.Hillshade = b
	case "ndwi_composite":
		a.NDWIComposite = b
	case "mndwi_composite":
		a.MNDWIComposite = b
	case "ndvi_p10":
		a.NDVIP10 = b
	case "ndvi_mean":
		a.NDVIMean = b
	case "cobveg":
		a.CobVeg = b
	default:
		return fmt.Errorf("unknown ancillary raster %q", name)
	}
	return nil
}

// SceneInputs are the per-scene rasters of the classifier.
type SceneInputs struct {
	SWIR1 *raster.Band
	NDVI  *raster.Band
	NDWI  *raster.Band
	MNDWI *raster.Band
	QA    *raster.Band
	Clear scene.ClearCodes
}

func (s *SceneInputs) validate() error {
	var missing []string
	for name, b := range map[string]*raster.Band{
		"swir1": s.SWIR1, "ndvi": s.NDVI, "ndwi": s.NDWI, "mndwi": s.MNDWI, "qa": s.QA,
	} {
		if b == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", scene.ErrMissingBand, strings.Join(missing, ", "))
	}
	// Zero codes would count every fill pixel (QA 0) as clear.
	if s.Clear == (scene.ClearCodes{}) {
		return fmt.Errorf("%w: clear QA codes unset", scene.ErrUnknownSensor)
	}
	return nil
}
