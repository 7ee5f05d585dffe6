// Package raster holds the in-memory band model shared by the normalization and
// flood engines and the Reader/Writer interfaces used at the edges. The GDAL
// implementation lives in raster/gdal.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// NoData is the sentinel written to every product for pixels without valid data.
const NoData = -9999

// ErrGridMismatch is returned when rasters taking part in one computation do not
// share shape, transform and CRS.
var ErrGridMismatch = errors.New("raster grids do not match")

// Grid describes the georeferencing shared by co-registered rasters.
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	CRS          string
}

// Len returns the number of pixels.
func (g Grid) Len() int { return g.Width * g.Height }

// PixelArea returns the area of one pixel in CRS units squared.
func (g Grid) PixelArea() float64 {
	return math.Abs(g.GeoTransform[1]*g.GeoTransform[5] - g.GeoTransform[2]*g.GeoTransform[4])
}

// Bound returns the footprint of the grid in CRS coordinates.
func (g Grid) Bound() orb.Bound {
	gt := g.GeoTransform
	corner := func(px, py float64) orb.Point {
		return orb.Point{gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]}
	}
	b := orb.MultiPoint{
		corner(0, 0),
		corner(float64(g.Width), 0),
		corner(0, float64(g.Height)),
		corner(float64(g.Width), float64(g.Height)),
	}.Bound()
	return b
}

// Matches reports whether two grids are interchangeable pixel for pixel.
// An empty CRS on either side is treated as unknown and not compared.
func (g Grid) Matches(o Grid) bool {
	if g.Width != o.Width || g.Height != o.Height || g.GeoTransform != o.GeoTransform {
		return false
	}
	if g.CRS != "" && o.CRS != "" && g.CRS != o.CRS {
		return false
	}
	return true
}

// Band is a single float32 raster band.
type Band struct {
	Grid
	Data   []float32
	NoData float64
}

// NewBand allocates a band on the given grid filled with the nodata sentinel.
func NewBand(g Grid) *Band {
	b := &Band{Grid: g, Data: make([]float32, g.Len()), NoData: NoData}
	for i := range b.Data {
		b.Data[i] = NoData
	}
	return b
}

// FromValues wraps data in a band on a north-up unit grid. Mostly useful for tests
// and for products derived from other bands.
func FromValues(width, height int, data []float32) *Band {
	return &Band{
		Grid:   Grid{Width: width, Height: height, GeoTransform: [6]float64{0, 1, 0, 0, 0, -1}},
		Data:   data,
		NoData: NoData,
	}
}

// Valid reports whether pixel i holds a usable value.
func (b *Band) Valid(i int) bool {
	v := b.Data[i]
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return false
	}
	return float64(v) != b.NoData
}

// Clone returns a deep copy of the band.
func (b *Band) Clone() *Band {
	c := &Band{Grid: b.Grid, Data: make([]float32, len(b.Data)), NoData: b.NoData}
	copy(c.Data, b.Data)
	return c
}

// ValidValues returns the valid pixels of the band as float64.
func (b *Band) ValidValues() []float64 {
	out := make([]float64, 0, len(b.Data))
	for i, v := range b.Data {
		if b.Valid(i) {
			out = append(out, float64(v))
		}
	}
	return out
}

// Mask is an int16 classification raster such as a flood mask.
type Mask struct {
	Grid
	Data []int16
}

// NewMask allocates a mask on the given grid filled with the nodata sentinel.
func NewMask(g Grid) *Mask {
	m := &Mask{Grid: g, Data: make([]int16, g.Len())}
	for i := range m.Data {
		m.Data[i] = NoData
	}
	return m
}

// Count returns how many pixels hold the given code.
func (m *Mask) Count(code int16) int {
	n := 0
	for _, v := range m.Data {
		if v == code {
			n++
		}
	}
	return n
}

// ToMask converts a band read from an integer mask file back to mask codes.
// Invalid pixels become nodata.
func (b *Band) ToMask() *Mask {
	m := NewMask(b.Grid)
	for i, v := range b.Data {
		if b.Valid(i) {
			m.Data[i] = int16(math.Round(float64(v)))
		}
	}
	return m
}

// CheckGrids verifies that every named band shares the grid of the first one.
// Nil bands are skipped; callers check presence separately.
func CheckGrids(bands map[string]*Band) error {
	var (
		refName string
		ref     *Grid
	)
	for name, b := range bands {
		if b == nil {
			continue
		}
		if len(b.Data) != b.Len() {
			return fmt.Errorf("%w: %s has %d values for a %dx%d grid", ErrGridMismatch, name, len(b.Data), b.Width, b.Height)
		}
		if ref == nil {
			g := b.Grid
			ref, refName = &g, name
			continue
		}
		if !ref.Matches(b.Grid) {
			return fmt.Errorf("%w: %s (%dx%d) vs %s (%dx%d)", ErrGridMismatch,
				refName, ref.Width, ref.Height, name, b.Width, b.Height)
		}
	}
	return nil
}
