// Package flood classifies scene pixels into dry, flooded and invalid through an
// ordered cascade of overrides followed by an index-agreement vote.
package flood

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// Mask codes.
const (
	Dry     int16 = 0
	Flooded int16 = 1
	Invalid int16 = 2
	NoData  int16 = raster.NoData
)

// Thresholds parameterize the cascade.
type Thresholds struct {
	SWIR1Water          float64 `mapstructure:"swir1_water" yaml:"swir1_water" json:"swir1_water"`
	SlopeMax            float64 `mapstructure:"slope_max" yaml:"slope_max" json:"slope_max"`
	SlopeNDWIConfirm    float64 `mapstructure:"slope_ndwi_confirm" yaml:"slope_ndwi_confirm" json:"slope_ndwi_confirm"`
	SlopeMNDWIConfirm   float64 `mapstructure:"slope_mndwi_confirm" yaml:"slope_mndwi_confirm" json:"slope_mndwi_confirm"`
	HillshadePercentile float64 `mapstructure:"hillshade_percentile" yaml:"hillshade_percentile" json:"hillshade_percentile"`
	NDVIP10Max          float64 `mapstructure:"ndvi_p10_max" yaml:"ndvi_p10_max" json:"ndvi_p10_max"`
	NDVIMeanMax         float64 `mapstructure:"ndvi_mean_max" yaml:"ndvi_mean_max" json:"ndvi_mean_max"`
	CobVegMax           float64 `mapstructure:"cobveg_max" yaml:"cobveg_max" json:"cobveg_max"`
	SceneNDVIMax        float64 `mapstructure:"scene_ndvi_max" yaml:"scene_ndvi_max" json:"scene_ndvi_max"`
	DTMMax              float64 `mapstructure:"dtm_max" yaml:"dtm_max" json:"dtm_max"`
	VoteMin             int     `mapstructure:"vote_min" yaml:"vote_min" json:"vote_min"`
}

// DefaultThresholds returns the Doñana calibration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SWIR1Water:          0.12,
		SlopeMax:            8,
		SlopeNDWIConfirm:    0.25,
		SlopeMNDWIConfirm:   0.8,
		HillshadePercentile: 30,
		NDVIP10Max:          0.3,
		NDVIMeanMax:         0.5,
		CobVegMax:           75,
		SceneNDVIMax:        0.60,
		DTMMax:              2.5,
		VoteMin:             2,
	}
}

// Validate checks that percentile and vote bounds make sense.
func (t Thresholds) Validate() error {
	if t.HillshadePercentile < 0 || t.HillshadePercentile > 100 {
		return fmt.Errorf("hillshade_percentile must be within [0,100], got %v", t.HillshadePercentile)
	}
	if t.VoteMin < 1 || t.VoteMin > 3 {
		return fmt.Errorf("vote_min must be within [1,3], got %d", t.VoteMin)
	}
	return nil
}

// Stage names one step of the cascade in application order.
type Stage string

const (
	StageWater      Stage = "water"
	StageSlope      Stage = "slope"
	StageShadow     Stage = "shadow"
	StageVegetation Stage = "vegetation"
	StageCobVeg     Stage = "cobveg"
	StageHighNDVI   Stage = "high_ndvi"
	StageCloud      Stage = "cloud"
	StageVote       Stage = "vote"
	StageNoData     Stage = "nodata"
)

// Result carries the provisional mask and cascade diagnostics.
type Result struct {
	// Mask holds codes in {-9999, 0, 1, 2}.
	Mask *raster.Mask
	// ShadowThreshold is the hillshade percentile of this scene, NaN when the
	// hillshade has no valid pixels.
	ShadowThreshold float64
	// Hits counts the pixels each stage assigned, in application order.
	Hits []StageHits
}

// StageHits is the number of pixels a stage wrote.
type StageHits struct {
	Stage  Stage `json:"stage"`
	Pixels int   `json:"pixels"`
}

// Classifier runs the cascade with fixed thresholds.
type Classifier struct {
	Thresholds Thresholds
	Logger     *slog.Logger
}

// NewClassifier returns a classifier.
func NewClassifier(t Thresholds, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{Thresholds: t, Logger: logger}
}

// above reports b[i] > t for a valid pixel, compared at raster precision.
// Invalid ancillary pixels never trigger an override.
func above(b *raster.Band, i int, t float64) bool {
	return b.Valid(i) && b.Data[i] > float32(t)
}

// Percentile returns the p-th percentile (0..100) of the valid pixels of b,
// interpolating linearly between closest ranks at p/100*(n-1), or NaN when
// there are no valid pixels.
func Percentile(b *raster.Band, p float64) float64 {
	vals := b.ValidValues()
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	h := p / 100 * float64(len(vals)-1)
	lo := int(math.Floor(h))
	if lo >= len(vals)-1 {
		return vals[len(vals)-1]
	}
	return vals[lo] + (h-float64(lo))*(vals[lo+1]-vals[lo])
}

type rule struct {
	stage Stage
	code  int16
	when  func(i int) bool
}

// Classify runs the cascade. Each stage sweeps the whole raster and overwrites
// the pixels it matches, so later stages take precedence:
// nodata > vote > cloud > terrain and vegetation overrides > water threshold.
func (c *Classifier) Classify(in SceneInputs, anc *Ancillary) (*Result, error) {
	if err := anc.Validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	grids := anc.Named()
	grids["swir1"] = in.SWIR1
	grids["ndvi"] = in.NDVI
	grids["ndwi"] = in.NDWI
	grids["mndwi"] = in.MNDWI
	grids["qa"] = in.QA
	if err := raster.CheckGrids(grids); err != nil {
		return nil, err
	}

	t := c.Thresholds
	shadow := Percentile(anc.Hillshade, t.HillshadePercentile)

	qaCode := func(i int) (int, bool) {
		if !in.QA.Valid(i) {
			return 0, false
		}
		return int(in.QA.Data[i]), true
	}

	rules := []rule{
		{StageWater, Flooded, func(i int) bool {
			return in.SWIR1.Valid(i) && in.SWIR1.Data[i] < float32(t.SWIR1Water)
		}},
		{StageSlope, Dry, func(i int) bool {
			confirmed := above(anc.NDWIComposite, i, t.SlopeNDWIConfirm) ||
				above(anc.MNDWIComposite, i, t.SlopeMNDWIConfirm)
			return above(anc.Slope, i, t.SlopeMax) && !confirmed
		}},
		{StageShadow, Dry, func(i int) bool {
			return anc.Hillshade.Valid(i) && float64(anc.Hillshade.Data[i]) < shadow
		}},
		{StageVegetation, Dry, func(i int) bool {
			return above(anc.NDVIP10, i, t.NDVIP10Max) && above(anc.NDVIMean, i, t.NDVIMeanMax)
		}},
		{StageCobVeg, Dry, func(i int) bool {
			return above(anc.CobVeg, i, t.CobVegMax)
		}},
		{StageHighNDVI, Dry, func(i int) bool {
			return above(in.NDVI, i, t.SceneNDVIMax) && above(anc.DTM, i, t.DTMMax)
		}},
		{StageCloud, Invalid, func(i int) bool {
			v, ok := qaCode(i)
			return !ok || !in.Clear.IsClear(v)
		}},
		{StageVote, Flooded, func(i int) bool {
			votes := 0
			if above(in.MNDWI, i, 0) {
				votes++
			}
			if above(in.NDWI, i, 0) {
				votes++
			}
			if v, ok := qaCode(i); ok && v == in.Clear.Water {
				votes++
			}
			return votes >= t.VoteMin
		}},
		{StageNoData, NoData, func(i int) bool {
			return !in.SWIR1.Valid(i)
		}},
	}

	mask := raster.NewMask(in.SWIR1.Grid)
	for i := range mask.Data {
		mask.Data[i] = Dry
	}
	res := &Result{Mask: mask, ShadowThreshold: shadow, Hits: make([]StageHits, 0, len(rules))}
	for _, r := range rules {
		n := 0
		for i := range mask.Data {
			if r.when(i) {
				mask.Data[i] = r.code
				n++
			}
		}
		res.Hits = append(res.Hits, StageHits{Stage: r.stage, Pixels: n})
	}

	c.Logger.Debug("flood cascade", "shadow_threshold", shadow, "hits", res.Hits)
	return res, nil
}
