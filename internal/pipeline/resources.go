package pipeline

import (
	"fmt"

	"github.com/MeKo-Tech/marisma/internal/flood"
	"github.com/MeKo-Tech/marisma/internal/normalize"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/scene"
)

// Resources are the rasters shared by every scene of a run. They are loaded
// once and never written afterwards, so workers may read them concurrently.
type Resources struct {
	Reference map[scene.BandName]*raster.Band
	Masks     map[normalize.MaskVariant]*raster.Band
	// Ancillary is nil when the run only normalizes.
	Ancillary *flood.Ancillary
}

// Grid is the common grid of the resources.
func (r *Resources) Grid() raster.Grid {
	for _, name := range scene.Reflective {
		if b := r.Reference[name]; b != nil {
			return b.Grid
		}
	}
	return raster.Grid{}
}

// LoadResources reads the reference bands, the zone masks named by the
// escalation and, if ancillary is set, the eight flood inputs. All of them
// must share one grid.
func LoadResources(r raster.Reader, cfg Config, ancillary bool) (*Resources, error) {
	res := &Resources{
		Reference: make(map[scene.BandName]*raster.Band, len(scene.Reflective)),
		Masks:     make(map[normalize.MaskVariant]*raster.Band, 2),
	}
	check := make(map[string]*raster.Band)

	for _, name := range scene.Reflective {
		path := cfg.ReferencePath(string(name))
		b, err := r.ReadBand(path)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", name, err)
		}
		res.Reference[name] = b
		check["reference_"+string(name)] = b
	}

	for _, v := range normalize.Variants(cfg.steps()) {
		path, ok := cfg.Masks[v]
		if !ok || path == "" {
			return nil, fmt.Errorf("%w: %s", normalize.ErrMissingMask, v)
		}
		b, err := r.ReadBand(path)
		if err != nil {
			return nil, fmt.Errorf("zone mask %s: %w", v, err)
		}
		res.Masks[v] = b
		check["mask_"+string(v)] = b
	}

	if ancillary {
		anc := &flood.Ancillary{}
		for _, name := range flood.AncillaryNames {
			b, err := r.ReadBand(cfg.AncillaryPath(name))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", flood.ErrMissingAncillary, name, err)
			}
			if err := anc.Set(name, b); err != nil {
				return nil, err
			}
			check[name] = b
		}
		res.Ancillary = anc
	}

	if err := raster.CheckGrids(check); err != nil {
		return nil, fmt.Errorf("shared resources: %w", err)
	}
	return res, nil
}
