package normalize

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marisma/internal/pif"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/scene"
)

// scripted accepts or rejects per attempt and records every call.
type scripted struct {
	mu     sync.Mutex
	calls  []Attempt
	decide func(in pif.Input, a Attempt) *pif.Fit
	masks  map[*raster.Band]MaskVariant
}

func (s *scripted) Fit(in pif.Input) (*pif.Fit, error) {
	a := Attempt{Mask: s.masks[in.Zones], Coef: in.Coef}
	s.mu.Lock()
	s.calls = append(s.calls, a)
	s.mu.Unlock()
	return s.decide(in, a), nil
}

func accepted(slope, intercept float64, minZone int) *pif.Fit {
	f := &pif.Fit{Accepted: true, Reason: pif.Accepted}
	f.Slope, f.Intercept, f.R, f.N = slope, intercept, 0.95, 500
	for i := range f.ZoneCounts {
		f.ZoneCounts[i] = minZone
	}
	return f
}

func rejected() *pif.Fit { return &pif.Fit{Reason: pif.LowCorrelation} }

func fixture() (BandInput, map[*raster.Band]MaskVariant) {
	ub := raster.FromValues(2, 1, []float32{1, 2})
	b := raster.FromValues(2, 1, []float32{1, 2})
	in := BandInput{
		Name:      scene.Red,
		Current:   raster.FromValues(2, 1, []float32{0.1, 0.2}),
		Reference: raster.FromValues(2, 1, []float32{0.1, 0.2}),
		QA:        raster.FromValues(2, 1, []float32{21824, 21824}),
		Masks:     map[MaskVariant]*raster.Band{Unbalanced: ub, Balanced: b},
		Clear:     scene.OLI.ClearCodes(),
	}
	return in, map[*raster.Band]MaskVariant{ub: Unbalanced, b: Balanced}
}

func TestNormalizeBand_SecondAttemptWins(t *testing.T) {
	in, masks := fixture()
	r := &scripted{masks: masks, decide: func(_ pif.Input, a Attempt) *pif.Fit {
		if a == (Attempt{Mask: Unbalanced, Coef: 2}) {
			return accepted(1.1, -0.01, 12)
		}
		return rejected()
	}}
	c := NewController(r, nil)

	out, err := c.NormalizeBand(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, out.Params)
	assert.Equal(t, 2, out.Params.Iteration)
	assert.Equal(t, Unbalanced, out.Params.Mask)
	assert.InDelta(t, 2.0, out.Params.Coef, 0)
	assert.InDelta(t, 1.1, out.Params.Slope, 0)
	assert.Equal(t, DefaultEscalation()[:2], r.calls, "attempts 3-6 are never tried")
	assert.Len(t, out.Trials, 2)
}

func TestNormalizeBand_ExhaustsInOrder(t *testing.T) {
	in, masks := fixture()
	r := &scripted{masks: masks, decide: func(pif.Input, Attempt) *pif.Fit { return rejected() }}

	out, err := NewController(r, nil).NormalizeBand(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, out.Params)
	assert.Nil(t, out.Accepted)
	assert.Equal(t, DefaultEscalation(), r.calls)
}

func TestNormalizeBand_FirstAcceptanceIsNotCompared(t *testing.T) {
	in, masks := fixture()
	r := &scripted{masks: masks, decide: func(_ pif.Input, a Attempt) *pif.Fit {
		if a.Coef == 1 && a.Mask == Unbalanced {
			return accepted(1, 0, 10)
		}
		// Later configurations would yield larger zone counts.
		return accepted(2, 0, 400)
	}}

	out, err := NewController(r, nil).NormalizeBand(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Params.Iteration)
	assert.Equal(t, 10, out.Params.ZoneCounts.Min())
	assert.Len(t, r.calls, 1)
}

func TestNormalizeBand_Errors(t *testing.T) {
	in, masks := fixture()
	r := &scripted{masks: masks, decide: func(pif.Input, Attempt) *pif.Fit { return rejected() }}
	c := NewController(r, nil)

	noRef := in
	noRef.Reference = nil
	_, err := c.NormalizeBand(context.Background(), noRef)
	assert.ErrorIs(t, err, ErrMissingReference)

	noMask := in
	noMask.Masks = map[MaskVariant]*raster.Band{Unbalanced: in.Masks[Unbalanced]}
	_, err = c.NormalizeBand(context.Background(), noMask)
	assert.ErrorIs(t, err, ErrMissingMask)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.NormalizeBand(ctx, in)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNormalizeScene_PartialSuccess(t *testing.T) {
	base, masks := fixture()
	bands := map[scene.BandName]*raster.Band{}
	ref := map[scene.BandName]*raster.Band{}
	owner := map[*raster.Band]scene.BandName{}
	for _, name := range scene.Reflective {
		b := raster.FromValues(2, 1, []float32{0.2, 0.4})
		bands[name] = b
		ref[name] = raster.FromValues(2, 1, []float32{0.2, 0.4})
		owner[b] = name
	}
	template := raster.FromValues(2, 1, []float32{0.3, raster.NoData})

	r := &scripted{masks: masks, decide: func(in pif.Input, _ Attempt) *pif.Fit {
		if owner[in.Current] == scene.SWIR2 {
			return rejected()
		}
		return accepted(2, 0.1, 20)
	}}
	c := NewController(r, nil)
	c.Workers = 3

	res, err := c.NormalizeScene(context.Background(), SceneInput{
		Scene:     "20230115l8oli202_34",
		Bands:     bands,
		Reference: ref,
		QA:        base.QA,
		Masks:     base.Masks,
		Clear:     base.Clear,
		Template:  template,
	})
	require.NoError(t, err)
	assert.Equal(t, []scene.BandName{scene.Blue, scene.Green, scene.Red, scene.NIR, scene.SWIR1}, res.Normalized)
	assert.Equal(t, []scene.BandName{scene.SWIR2}, res.NotNormalized)
	assert.NotContains(t, res.Output, scene.SWIR2)
	assert.NotContains(t, res.Params, scene.SWIR2)
	assert.Len(t, res.Outcomes[scene.SWIR2].Trials, 6)

	red := res.Output[scene.Red]
	require.NotNil(t, red)
	assert.InDelta(t, 0.5, red.Data[0], 1e-6)
	assert.Equal(t, float32(raster.NoData), red.Data[1], "template nodata wins over clip")
}

func TestNormalizeScene_Preconditions(t *testing.T) {
	base, masks := fixture()
	r := &scripted{masks: masks, decide: func(pif.Input, Attempt) *pif.Fit { return rejected() }}
	c := NewController(r, nil)

	_, err := c.NormalizeScene(context.Background(), SceneInput{
		Bands: map[scene.BandName]*raster.Band{scene.Red: base.Current},
		QA:    base.QA,
		Masks: map[MaskVariant]*raster.Band{Balanced: base.Masks[Balanced]},
	})
	assert.ErrorIs(t, err, ErrMissingMask)

	_, err = c.NormalizeScene(context.Background(), SceneInput{
		Bands:     map[scene.BandName]*raster.Band{scene.Red: base.Current},
		Reference: map[scene.BandName]*raster.Band{},
		QA:        base.QA,
		Masks:     base.Masks,
	})
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestNormalizeScene_WithEngine(t *testing.T) {
	const perZone = 20
	n := perZone * pif.NumZones
	cur := make([]float32, n)
	ref := make([]float32, n)
	qa := make([]float32, n)
	zones := make([]float32, n)
	for k := range n {
		c := 0.05 + 0.001*float64(k)
		cur[k] = float32(c)
		ref[k] = float32(0.9*c + 0.02 + 0.002*float64((k*7)%5-2))
		qa[k] = 21824
		zones[k] = float32(k/perZone + 1)
	}
	mask := raster.FromValues(n, 1, zones)

	c := NewController(pif.NewEngine(pif.DefaultCriteria()), nil)
	res, err := c.NormalizeScene(context.Background(), SceneInput{
		Bands:     map[scene.BandName]*raster.Band{scene.NIR: raster.FromValues(n, 1, cur)},
		Reference: map[scene.BandName]*raster.Band{scene.NIR: raster.FromValues(n, 1, ref)},
		QA:        raster.FromValues(n, 1, qa),
		Masks:     map[MaskVariant]*raster.Band{Unbalanced: mask, Balanced: mask},
		Clear:     scene.OLI.ClearCodes(),
	})
	require.NoError(t, err)
	require.Equal(t, []scene.BandName{scene.NIR}, res.Normalized)
	assert.Equal(t, 1, res.Params[scene.NIR].Iteration)
	assert.InDelta(t, 0.9, res.Params[scene.NIR].Slope, 0.01)
}

func TestApply_ClipsAndPropagatesNoData(t *testing.T) {
	band := raster.FromValues(5, 1, []float32{-0.5, 0.25, 2, raster.NoData, 0.3})
	template := raster.FromValues(5, 1, []float32{1, 1, 1, 1, raster.NoData})

	out, err := Apply(band, 1, 0, template)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.25, 1, raster.NoData, raster.NoData}, out.Data)

	_, err = Apply(band, 1, 0, raster.FromValues(1, 1, []float32{1}))
	assert.ErrorIs(t, err, raster.ErrGridMismatch)
}

// TestApply_OutputRange verifies every output is in [0,1] or exactly nodata.
func TestApply_OutputRange(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("normalized values are clipped or nodata", prop.ForAll(
		func(vals []float32, slope, intercept float64, holes []bool) bool {
			if len(vals) == 0 {
				return true
			}
			tmpl := make([]float32, len(vals))
			for i := range tmpl {
				tmpl[i] = 1
				if i < len(holes) && holes[i] {
					tmpl[i] = raster.NoData
				}
			}
			out, err := Apply(raster.FromValues(len(vals), 1, vals), slope, intercept,
				raster.FromValues(len(vals), 1, tmpl))
			if err != nil {
				return false
			}
			for i, v := range out.Data {
				if tmpl[i] == raster.NoData || vals[i] == raster.NoData {
					if v != raster.NoData {
						return false
					}
					continue
				}
				if math.IsNaN(float64(v)) || v < 0 || v > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneGenOf(gen.Float32Range(-1, 2), gen.Const(float32(raster.NoData)))),
		gen.Float64Range(-3, 3),
		gen.Float64Range(-1, 1),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestVariants(t *testing.T) {
	assert.Equal(t, []MaskVariant{Unbalanced, Balanced}, Variants(DefaultEscalation()))
	assert.Equal(t, "balanced/3", DefaultEscalation()[5].String())
}
