package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandValid(t *testing.T) {
	b := FromValues(4, 1, []float32{0.1, NoData, float32(math.NaN()), float32(math.Inf(1))})
	assert.True(t, b.Valid(0))
	assert.False(t, b.Valid(1))
	assert.False(t, b.Valid(2))
	assert.False(t, b.Valid(3))
	assert.Equal(t, []float64{float64(float32(0.1))}, b.ValidValues())
}

func TestNewBandAndMaskFilledWithNoData(t *testing.T) {
	g := Grid{Width: 3, Height: 2}
	b := NewBand(g)
	m := NewMask(g)
	require.Len(t, b.Data, 6)
	require.Len(t, m.Data, 6)
	for i := range b.Data {
		assert.Equal(t, float32(NoData), b.Data[i])
		assert.Equal(t, int16(NoData), m.Data[i])
	}
	assert.Equal(t, 6, m.Count(NoData))
}

func TestClone_IsDeep(t *testing.T) {
	b := FromValues(2, 1, []float32{1, 2})
	c := b.Clone()
	c.Data[0] = 9
	assert.Equal(t, float32(1), b.Data[0])
}

func TestGridPixelAreaAndBound(t *testing.T) {
	g := Grid{Width: 10, Height: 5, GeoTransform: [6]float64{700000, 30, 0, 4100000, 0, -30}}
	assert.InDelta(t, 900, g.PixelArea(), 1e-9)

	b := g.Bound()
	assert.InDelta(t, 700000, b.Min.X(), 1e-9)
	assert.InDelta(t, 700300, b.Max.X(), 1e-9)
	assert.InDelta(t, 4099850, b.Min.Y(), 1e-9)
	assert.InDelta(t, 4100000, b.Max.Y(), 1e-9)
}

func TestGridMatches(t *testing.T) {
	a := Grid{Width: 2, Height: 2, GeoTransform: [6]float64{0, 30, 0, 0, 0, -30}, CRS: "EPSG:32629"}
	b := a
	assert.True(t, a.Matches(b))

	b.CRS = ""
	assert.True(t, a.Matches(b), "unknown CRS is not compared")

	b.CRS = "EPSG:25830"
	assert.False(t, a.Matches(b))

	c := a
	c.GeoTransform[0] = 15
	assert.False(t, a.Matches(c))

	d := a
	d.Width = 3
	assert.False(t, a.Matches(d))
}

func TestCheckGrids(t *testing.T) {
	ok := map[string]*Band{
		"a": FromValues(2, 2, make([]float32, 4)),
		"b": FromValues(2, 2, make([]float32, 4)),
		"c": nil,
	}
	require.NoError(t, CheckGrids(ok))

	bad := map[string]*Band{
		"a": FromValues(2, 2, make([]float32, 4)),
		"b": FromValues(4, 1, make([]float32, 4)),
	}
	assert.ErrorIs(t, CheckGrids(bad), ErrGridMismatch)

	short := map[string]*Band{"a": FromValues(2, 2, make([]float32, 3))}
	assert.ErrorIs(t, CheckGrids(short), ErrGridMismatch)
}

func TestBandToMask(t *testing.T) {
	b := FromValues(5, 1, []float32{0, 1, 2, NoData, float32(math.NaN())})
	m := b.ToMask()
	assert.Equal(t, b.Grid, m.Grid)
	assert.Equal(t, []int16{0, 1, 2, NoData, NoData}, m.Data)
}
