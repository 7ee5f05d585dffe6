package gdal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

var (
	_ raster.Reader = (*Store)(nil)
	_ raster.Writer = (*Store)(nil)
)

func testGrid() raster.Grid {
	return raster.Grid{
		Width:        3,
		Height:       2,
		GeoTransform: [6]float64{725000, 30, 0, 4110000, 0, -30},
	}
}

func TestStore_BandRoundTrip(t *testing.T) {
	g := New(true, nil)
	path := filepath.Join(t.TempDir(), "scene", "b.tif")

	in := raster.NewBand(testGrid())
	copy(in.Data, []float32{0.1, 0.2, raster.NoData, 0.4, 0.5, 0.6})
	require.NoError(t, g.WriteBand(path, in, raster.Float32))

	out, err := g.ReadBand(path)
	require.NoError(t, err)
	assert.Equal(t, in.Width, out.Width)
	assert.Equal(t, in.Height, out.Height)
	assert.Equal(t, in.GeoTransform, out.GeoTransform)
	assert.InDeltaSlice(t, in.Data, out.Data, 1e-6)
	assert.False(t, out.Valid(2))
}

func TestStore_MaskRoundTrip(t *testing.T) {
	g := New(false, nil)
	path := filepath.Join(t.TempDir(), "m_flood.tif")

	m := raster.NewMask(testGrid())
	copy(m.Data, []int16{0, 1, 2, raster.NoData, 1, 0})
	require.NoError(t, g.WriteMask(path, m))

	b, err := g.ReadBand(path)
	require.NoError(t, err)
	assert.Equal(t, m.Data, b.ToMask().Data)
}

func TestStore_Remove(t *testing.T) {
	g := New(false, nil)
	path := filepath.Join(t.TempDir(), "b.tif")
	require.NoError(t, g.WriteBand(path, raster.NewBand(testGrid()), raster.Float32))
	require.NoError(t, os.WriteFile(path+".aux.xml", []byte("<PAMDataset/>"), 0o600))

	require.NoError(t, g.Remove(path))
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".aux.xml")
	require.NoError(t, g.Remove(path), "removing a missing product is not an error")

	_, err := g.ReadBand(path)
	var ioErr *raster.IOError
	assert.ErrorAs(t, err, &ioErr)
}
