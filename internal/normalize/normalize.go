// Package normalize drives the PIF regression through an escalating list of
// configurations per band and applies the first accepted model.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/marisma/internal/pif"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/scene"
)

var (
	// ErrMissingReference is returned when the reference dataset lacks a band being normalized.
	ErrMissingReference = errors.New("missing reference band")
	// ErrMissingMask is returned when a zone mask variant named by the escalation is not loaded.
	ErrMissingMask = errors.New("missing zone mask")
)

// Regressor fits one band against the reference.
type Regressor interface {
	Fit(in pif.Input) (*pif.Fit, error)
}

// Params are the accepted normalization parameters of one band.
type Params struct {
	Band         scene.BandName `json:"band" yaml:"band"`
	Slope        float64        `json:"slope" yaml:"slope"`
	Intercept    float64        `json:"intercept" yaml:"intercept"`
	StdThreshold float64        `json:"std_threshold" yaml:"std_threshold"`
	R            float64        `json:"r" yaml:"r"`
	N            int            `json:"n" yaml:"n"`
	// Iteration is the 1-based position of the accepted attempt.
	Iteration  int            `json:"iteration" yaml:"iteration"`
	Mask       MaskVariant    `json:"mask" yaml:"mask"`
	Coef       float64        `json:"coef" yaml:"coef"`
	ZoneCounts pif.ZoneCounts `json:"zone_counts" yaml:"zone_counts"`
}

// Trial records one attempt and its fit.
type Trial struct {
	Attempt Attempt
	Fit     *pif.Fit
}

// BandOutcome is the result of escalating one band. Params is nil when every
// attempt was rejected.
type BandOutcome struct {
	Band   scene.BandName
	Params *Params
	Trials []Trial
	// Accepted holds the accepted fit, including samples when requested.
	Accepted *pif.Fit
}

// BandInput holds the rasters needed to normalize one band.
type BandInput struct {
	Name        scene.BandName
	Current     *raster.Band
	Reference   *raster.Band
	QA          *raster.Band
	Masks       map[MaskVariant]*raster.Band
	Clear       scene.ClearCodes
	KeepSamples bool
}

// Controller tries attempts in order and stops at the first acceptance.
type Controller struct {
	Regressor  Regressor
	Escalation []Attempt
	// Workers bounds the number of bands normalized at once; 0 means NumCPU.
	Workers int
	Logger  *slog.Logger
}

// NewController returns a controller with the default escalation.
func NewController(r Regressor, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{Regressor: r, Escalation: DefaultEscalation(), Logger: logger}
}

func (c *Controller) steps() []Attempt {
	if len(c.Escalation) == 0 {
		return DefaultEscalation()
	}
	return c.Escalation
}

// NormalizeBand runs the escalation for one band. Attempts are strictly
// sequential; rejection moves to the next, acceptance ends the loop.
func (c *Controller) NormalizeBand(ctx context.Context, in BandInput) (*BandOutcome, error) {
	if in.Reference == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingReference, in.Name)
	}
	out := &BandOutcome{Band: in.Name}
	for i, step := range c.steps() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		zones, ok := in.Masks[step.Mask]
		if !ok || zones == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingMask, step.Mask)
		}
		fit, err := c.Regressor.Fit(pif.Input{
			Current:     in.Current,
			Reference:   in.Reference,
			QA:          in.QA,
			Zones:       zones,
			Clear:       in.Clear,
			Coef:        step.Coef,
			KeepSamples: in.KeepSamples,
		})
		if err != nil {
			return nil, fmt.Errorf("band %s attempt %d (%s): %w", in.Name, i+1, step, err)
		}
		out.Trials = append(out.Trials, Trial{Attempt: step, Fit: fit})

		c.Logger.Debug("normalization attempt",
			"band", in.Name, "iteration", i+1, "mask", step.Mask, "coef", step.Coef,
			"first_r", fit.FirstPass.R, "first_n", fit.FirstPass.N,
			"r", fit.R, "n", fit.N, "min_zone", fit.ZoneCounts.Min(), "reason", fit.Reason)

		if !fit.Accepted {
			continue
		}
		out.Accepted = fit
		out.Params = &Params{
			Band:         in.Name,
			Slope:        fit.Slope,
			Intercept:    fit.Intercept,
			StdThreshold: fit.StdThreshold,
			R:            fit.R,
			N:            fit.N,
			Iteration:    i + 1,
			Mask:         step.Mask,
			Coef:         step.Coef,
			ZoneCounts:   fit.ZoneCounts,
		}
		return out, nil
	}
	return out, nil
}

// SceneInput holds one scene's bands plus the shared reference data.
type SceneInput struct {
	Scene     string
	Bands     map[scene.BandName]*raster.Band
	Reference map[scene.BandName]*raster.Band
	QA        *raster.Band
	Masks     map[MaskVariant]*raster.Band
	Clear     scene.ClearCodes
	// Template supplies the nodata footprint of every output, normally the scene's NIR band.
	Template    *raster.Band
	KeepSamples bool
}

// Result is the normalization of one scene. A band appears in Params and
// Output only when accepted.
type Result struct {
	Scene         string
	Params        map[scene.BandName]*Params
	Output        map[scene.BandName]*raster.Band
	Outcomes      map[scene.BandName]*BandOutcome
	Normalized    []scene.BandName
	NotNormalized []scene.BandName
}

// NormalizeScene normalizes every reflective band present in in.Bands. Bands
// are independent and run concurrently; an exhausted band is listed in
// NotNormalized and does not stop the others.
func (c *Controller) NormalizeScene(ctx context.Context, in SceneInput) (*Result, error) {
	for _, v := range Variants(c.steps()) {
		if in.Masks[v] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingMask, v)
		}
	}
	if in.QA == nil {
		return nil, fmt.Errorf("%w: qa", scene.ErrMissingBand)
	}

	var names []scene.BandName
	for _, name := range scene.Reflective {
		if in.Bands[name] == nil {
			continue
		}
		if in.Reference[name] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingReference, name)
		}
		names = append(names, name)
	}

	outcomes := make([]*BandOutcome, len(names))
	outputs := make([]*raster.Band, len(names))

	g, gctx := errgroup.WithContext(ctx)
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			o, err := c.NormalizeBand(gctx, BandInput{
				Name:        name,
				Current:     in.Bands[name],
				Reference:   in.Reference[name],
				QA:          in.QA,
				Masks:       in.Masks,
				Clear:       in.Clear,
				KeepSamples: in.KeepSamples,
			})
			if err != nil {
				return err
			}
			outcomes[i] = o
			if o.Params == nil {
				return nil
			}
			nb, err := Apply(in.Bands[name], o.Params.Slope, o.Params.Intercept, in.Template)
			if err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
			outputs[i] = nb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("normalize scene %s: %w", in.Scene, err)
	}

	res := &Result{
		Scene:    in.Scene,
		Params:   make(map[scene.BandName]*Params),
		Output:   make(map[scene.BandName]*raster.Band),
		Outcomes: make(map[scene.BandName]*BandOutcome, len(names)),
	}
	for i, name := range names {
		o := outcomes[i]
		res.Outcomes[name] = o
		if o.Params == nil {
			res.NotNormalized = append(res.NotNormalized, name)
			c.Logger.Warn("band not normalized", "scene", in.Scene, "band", name, "attempts", len(o.Trials))
			continue
		}
		res.Params[name] = o.Params
		res.Output[name] = outputs[i]
		res.Normalized = append(res.Normalized, name)
		c.Logger.Info("band normalized", "scene", in.Scene, "band", name,
			"iteration", o.Params.Iteration, "slope", o.Params.Slope, "intercept", o.Params.Intercept,
			"r", o.Params.R, "n", o.Params.N)
	}
	return res, nil
}
