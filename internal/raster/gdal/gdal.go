// Package gdal reads and writes GeoTIFF rasters through GDAL.
package gdal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

var registerOnce sync.Once

// Store reads and writes GeoTIFFs through godal. It implements raster.Reader
// and raster.Writer.
type Store struct {
	// Compress enables LZW compression on written files.
	Compress bool
	Logger   *slog.Logger
}

// New registers the GDAL drivers once and returns a store.
func New(compress bool, logger *slog.Logger) *Store {
	registerOnce.Do(godal.RegisterAll)
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Compress: compress, Logger: logger}
}

func (g *Store) errLogger() godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			g.Logger.Debug("gdal warning", "code", code, "msg", msg)
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}
}

// ReadBand reads the first band of the dataset at path. A 1xHxW source
// therefore reads the same as a plain 2-D raster.
func (g *Store) ReadBand(path string) (*raster.Band, error) {
	ds, err := godal.Open(path, godal.ErrLogger(g.errLogger()))
	if err != nil {
		return nil, &raster.IOError{Op: "open", Path: path, Err: err}
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, &raster.IOError{Op: "read", Path: path, Err: fmt.Errorf("dataset has no bands")}
	}
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		// Ungeoreferenced inputs still get an identity north-up transform.
		gt = [6]float64{0, 1, 0, 0, 0, -1}
	}

	out := &raster.Band{
		Grid: raster.Grid{
			Width:        st.SizeX,
			Height:       st.SizeY,
			GeoTransform: gt,
			CRS:          ds.Projection(),
		},
		Data:   make([]float32, st.SizeX*st.SizeY),
		NoData: raster.NoData,
	}
	if nd, ok := bands[0].NoData(); ok {
		out.NoData = nd
	}
	if err := bands[0].Read(0, 0, out.Data, st.SizeX, st.SizeY); err != nil {
		return nil, &raster.IOError{Op: "read", Path: path, Err: err}
	}

	// Normalize the source sentinel to the project-wide one.
	if out.NoData != raster.NoData {
		for i := range out.Data {
			if float64(out.Data[i]) == out.NoData {
				out.Data[i] = raster.NoData
			}
		}
		out.NoData = raster.NoData
	}
	return out, nil
}

func (g *Store) create(path string, grid raster.Grid, dt godal.DataType) (*godal.Dataset, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, &raster.IOError{Op: "mkdir", Path: path, Err: err}
	}
	opts := []string{"TILED=YES"}
	if g.Compress {
		opts = append(opts, "COMPRESS=LZW")
	}
	ds, err := godal.Create(godal.GTiff, path, 1, dt, grid.Width, grid.Height,
		godal.CreationOption(opts...), godal.ErrLogger(g.errLogger()))
	if err != nil {
		return nil, &raster.IOError{Op: "create", Path: path, Err: err}
	}
	if err := ds.SetGeoTransform(grid.GeoTransform); err != nil {
		_ = ds.Close()
		return nil, &raster.IOError{Op: "georeference", Path: path, Err: err}
	}
	if grid.CRS != "" {
		if err := ds.SetProjection(grid.CRS); err != nil {
			_ = ds.Close()
			return nil, &raster.IOError{Op: "georeference", Path: path, Err: err}
		}
	}
	if err := ds.Bands()[0].SetNoData(raster.NoData); err != nil {
		_ = ds.Close()
		return nil, &raster.IOError{Op: "nodata", Path: path, Err: err}
	}
	return ds, nil
}

// WriteBand writes b as a single-band GeoTIFF.
func (g *Store) WriteBand(path string, b *raster.Band, dt raster.DataType) error {
	gdt := godal.Float32
	if dt == raster.Int16 {
		gdt = godal.Int16
	}
	ds, err := g.create(path, b.Grid, gdt)
	if err != nil {
		return err
	}
	if err := ds.Bands()[0].Write(0, 0, b.Data, b.Width, b.Height); err != nil {
		_ = ds.Close()
		return &raster.IOError{Op: "write", Path: path, Err: err}
	}
	if err := ds.Close(); err != nil {
		return &raster.IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// WriteMask writes m as a single-band Int16 GeoTIFF.
func (g *Store) WriteMask(path string, m *raster.Mask) error {
	ds, err := g.create(path, m.Grid, godal.Int16)
	if err != nil {
		return err
	}
	if err := ds.Bands()[0].Write(0, 0, m.Data, m.Width, m.Height); err != nil {
		_ = ds.Close()
		return &raster.IOError{Op: "write", Path: path, Err: err}
	}
	if err := ds.Close(); err != nil {
		return &raster.IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// Remove deletes the GeoTIFF at path together with its .aux.xml sidecar.
func (g *Store) Remove(path string) error {
	for _, p := range []string{path, path + ".aux.xml"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &raster.IOError{Op: "remove", Path: p, Err: err}
		}
	}
	return nil
}
