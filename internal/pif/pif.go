// Package pif fits the linear mapping from a scene band onto the reference band
// over pseudo-invariant features, with one pass of residual outlier rejection
// and a per-zone quality gate.
package pif

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/MeKo-Tech/marisma/internal/mempool"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/scene"
)

// ErrInvalidInput is returned for missing rasters or a non-positive coefficient.
var ErrInvalidInput = errors.New("invalid regression input")

// Reason explains the outcome of a fit.
type Reason string

const (
	Accepted       Reason = "accepted"
	Degenerate     Reason = "degenerate"
	LowCorrelation Reason = "low correlation"
	ZoneShortfall  Reason = "zone count below minimum"
)

// Criteria is the acceptance gate.
type Criteria struct {
	// MinR must be strictly exceeded by the second-pass correlation.
	MinR float64 `mapstructure:"min_r" yaml:"min_r" json:"min_r"`
	// MinZonePixels must be reached by every one of the nine classes.
	MinZonePixels int `mapstructure:"min_zone_pixels" yaml:"min_zone_pixels" json:"min_zone_pixels"`
}

// DefaultCriteria returns r > 0.85 and at least 10 pixels per class.
func DefaultCriteria() Criteria {
	return Criteria{MinR: 0.85, MinZonePixels: 10}
}

// Judge applies the gate to a correlation and a set of zone counts.
func (c Criteria) Judge(r float64, counts ZoneCounts) Reason {
	if math.IsNaN(r) || !(r > c.MinR) {
		return LowCorrelation
	}
	if counts.Min() < c.MinZonePixels {
		return ZoneShortfall
	}
	return Accepted
}

// Input bundles the rasters of one regression.
type Input struct {
	Current   *raster.Band
	Reference *raster.Band
	QA        *raster.Band
	Zones     *raster.Band
	Clear     scene.ClearCodes
	// Coef scales the residual standard deviation used as rejection threshold.
	Coef float64
	// KeepSamples copies the retained calibration pairs into the result.
	KeepSamples bool
}

// Pass is one OLS fit of reference on current.
type Pass struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R         float64 `json:"r"`
	N         int     `json:"n"`
}

// Samples are retained calibration pairs, for plotting.
type Samples struct {
	Current   []float64
	Reference []float64
	Zones     []ZoneClass
}

// Fit is the diagnostic record of one regression. Rejected fits are returned
// as values with Accepted false.
type Fit struct {
	Pass
	FirstPass    Pass       `json:"first_pass"`
	StdThreshold float64    `json:"std_threshold"`
	ZoneCounts   ZoneCounts `json:"zone_counts"`
	Accepted     bool       `json:"accepted"`
	Reason       Reason     `json:"reason"`
	Samples      *Samples   `json:"-"`
}

// Engine runs regressions against a fixed gate.
type Engine struct {
	Criteria Criteria
}

// NewEngine returns an engine with the given gate.
func NewEngine(c Criteria) *Engine { return &Engine{Criteria: c} }

func (in Input) check() error {
	if in.Current == nil || in.Reference == nil || in.QA == nil || in.Zones == nil {
		return fmt.Errorf("%w: current, reference, qa and zone rasters are required", ErrInvalidInput)
	}
	if !(in.Coef > 0) {
		return fmt.Errorf("%w: coefficient must be positive, got %v", ErrInvalidInput, in.Coef)
	}
	return raster.CheckGrids(map[string]*raster.Band{
		"current": in.Current, "reference": in.Reference, "qa": in.QA, "zones": in.Zones,
	})
}

// zoneAt returns the class of pixel i or 0 if outside every named zone.
func zoneAt(z *raster.Band, i int) ZoneClass {
	if !z.Valid(i) {
		return 0
	}
	v := z.Data[i]
	c := ZoneClass(int(v))
	if float32(c) != v || !c.Valid() {
		return 0
	}
	return c
}

// Fit selects calibration pixels (valid in both bands, inside a named zone,
// clear in QA), fits OLS, drops pixels whose absolute residual reaches
// std(residuals)*Coef, refits and applies the gate.
func (e *Engine) Fit(in Input) (*Fit, error) {
	if err := in.check(); err != nil {
		return nil, err
	}

	n := in.Current.Len()
	idx := mempool.GetInt32(n)
	defer mempool.PutInt32(idx)

	sel := idx[:0]
	for i := range n {
		if !in.Current.Valid(i) || !in.Reference.Valid(i) || !in.QA.Valid(i) {
			continue
		}
		if !in.Clear.IsClear(int(in.QA.Data[i])) {
			continue
		}
		if zoneAt(in.Zones, i) == 0 {
			continue
		}
		sel = append(sel, int32(i))
	}

	xs := mempool.GetFloat64(len(sel))
	ys := mempool.GetFloat64(len(sel))
	defer mempool.PutFloat64(xs)
	defer mempool.PutFloat64(ys)
	for k, i := range sel {
		xs[k] = float64(in.Current.Data[i])
		ys[k] = float64(in.Reference.Data[i])
	}

	res := &Fit{}
	first, ok := ols(xs, ys)
	res.FirstPass = first
	if !ok {
		res.Reason = Degenerate
		res.Pass = first
		return res, nil
	}

	resid := mempool.GetFloat64(len(sel))
	defer mempool.PutFloat64(resid)
	for k := range sel {
		resid[k] = ys[k] - (first.Slope*xs[k] + first.Intercept)
	}
	sigma := stat.PopStdDev(resid, nil) * in.Coef
	res.StdThreshold = sigma

	// A perfect first fit leaves nothing to reject.
	kept := 0
	for k, i := range sel {
		if sigma > 0 && math.Abs(resid[k]) >= sigma {
			continue
		}
		sel[kept] = i
		xs[kept] = xs[k]
		ys[kept] = ys[k]
		kept++
	}
	sel, xs2, ys2 := sel[:kept], xs[:kept], ys[:kept]

	for _, i := range sel {
		res.ZoneCounts[zoneAt(in.Zones, int(i))-1]++
	}

	second, ok := ols(xs2, ys2)
	res.Pass = second
	if !ok {
		res.Reason = Degenerate
		return res, nil
	}

	res.Reason = e.Criteria.Judge(second.R, res.ZoneCounts)
	res.Accepted = res.Reason == Accepted

	if in.KeepSamples {
		s := &Samples{
			Current:   append([]float64(nil), xs2...),
			Reference: append([]float64(nil), ys2...),
			Zones:     make([]ZoneClass, kept),
		}
		for k, i := range sel {
			s.Zones[k] = zoneAt(in.Zones, int(i))
		}
		res.Samples = s
	}
	return res, nil
}

// ols regresses y on x. It reports false when fewer than two samples exist or
// either variable has no variance, in which case the pass carries only N.
func ols(x, y []float64) (Pass, bool) {
	p := Pass{N: len(x)}
	if len(x) < 2 {
		return p, false
	}
	if floats.Min(x) == floats.Max(x) || floats.Min(y) == floats.Max(y) {
		return p, false
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r := stat.Correlation(x, y, nil)
	if anyNonFinite(alpha, beta, r) {
		return p, false
	}
	p.Slope, p.Intercept, p.R = beta, alpha, r
	return p, true
}

func anyNonFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
