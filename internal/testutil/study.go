package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marisma/internal/flood"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/scene"
)

// Product names of the synthetic scenes.
const (
	OLIProduct = "LC08_L2SP_202034_20230115_20230131_02_T1"
	TMProduct  = "LT05_L2SP_202034_20050310_20200902_02_T1"
)

// QA_PIXEL codes used by the fixtures.
const (
	QAClearLandOLI = 21824
	QACloudOLI     = 22280
	QAClearLandTM  = 5440
)

// StudyWidth and StudyHeight size the synthetic study area. Every zone class
// gets 64 pixels.
const (
	StudyWidth  = 24
	StudyHeight = 24
)

// StudyGrid is a 30 m grid in UTM 29N over the marshes.
func StudyGrid() raster.Grid {
	return raster.Grid{
		Width:        StudyWidth,
		Height:       StudyHeight,
		GeoTransform: [6]float64{725000, 30, 0, 4110000, 0, -30},
		CRS:          "EPSG:32629",
	}
}

// ReferenceValue is the reference reflectance of band index b at pixel i.
func ReferenceValue(b, i int) float32 {
	return float32(0.05 + 0.4*float64((i*37)%101)/100 + 0.01*float64(b))
}

// rawValue is a scene value whose regression on the reference has slope 0.9,
// intercept 0.02 and a small structured residual.
func rawValue(b, i int) float32 {
	ref := float64(ReferenceValue(b, i))
	return float32((ref-0.02)/0.9 + float64((i*7)%5-2)*0.002)
}

// noiseValue does not correlate with the reference.
func noiseValue(b, i int) float32 {
	return float32(0.05 + 0.4*float64((i*53+17*b)%89)/88)
}

// Study is a synthetic study area whose static rasters live in a MemStore.
type Study struct {
	Root         string
	Store        *MemStore
	Grid         raster.Grid
	ReferenceDir string
	AncillaryDir string
	// MaskPaths maps "unbalanced" and "balanced" to their zone rasters.
	MaskPaths map[string]string
}

// NewStudy registers reference bands, zone masks and neutral ancillary
// rasters. Neutral means no override of the cascade fires.
func NewStudy(t *testing.T) *Study {
	t.Helper()
	root := t.TempDir()
	s := &Study{
		Root:         root,
		Store:        NewMemStore(),
		Grid:         StudyGrid(),
		ReferenceDir: filepath.Join(root, "reference"),
		AncillaryDir: filepath.Join(root, "ancillary"),
		MaskPaths: map[string]string{
			"unbalanced": filepath.Join(root, "masks", "pif_unbalanced.tif"),
			"balanced":   filepath.Join(root, "masks", "pif_balanced.tif"),
		},
	}

	for bi, name := range scene.Reflective {
		b := raster.NewBand(s.Grid)
		for i := range b.Data {
			b.Data[i] = ReferenceValue(bi, i)
		}
		s.Store.Put(filepath.Join(s.ReferenceDir, string(name)+".tif"), b)
	}

	zones := s.fill(func(i int) float32 { return float32(i%9 + 1) })
	for _, p := range s.MaskPaths {
		s.Store.Put(p, zones)
	}

	neutral := map[string]float32{
		"dtm": 1, "slope": 0, "hillshade": 200, "ndwi_composite": 0, "mndwi_composite": 0,
		"ndvi_p10": 0, "ndvi_mean": 0, "cobveg": 0,
	}
	for _, name := range flood.AncillaryNames {
		v := neutral[name]
		s.Store.Put(s.AncillaryPath(name), s.fill(func(int) float32 { return v }))
	}
	return s
}

// AncillaryPath is the store key of an ancillary raster.
func (s *Study) AncillaryPath(name string) string {
	return filepath.Join(s.AncillaryDir, name+".tif")
}

func (s *Study) fill(f func(i int) float32) *raster.Band {
	b := raster.NewBand(s.Grid)
	for i := range b.Data {
		b.Data[i] = f(i)
	}
	return b
}

// SceneOptions alter a synthetic scene.
type SceneOptions struct {
	// Cloudy pixels get a cloud QA code.
	Cloudy []int
	// NoData pixels are nodata in every band.
	NoData []int
	// Uncorrelated bands do not follow the reference, so no attempt is accepted.
	Uncorrelated []scene.BandName
	// Width overrides the grid width to produce a mismatching scene.
	Width int
}

// sceneFiles maps band names to file suffixes per sensor.
var sceneFiles = map[scene.Sensor]map[scene.BandName]string{
	scene.OLI: {
		scene.Blue: "SR_B2", scene.Green: "SR_B3", scene.Red: "SR_B4", scene.NIR: "SR_B5",
		scene.SWIR1: "SR_B6", scene.SWIR2: "SR_B7", scene.Thermal: "ST_B10",
	},
	scene.TM: {
		scene.Blue: "SR_B1", scene.Green: "SR_B2", scene.Red: "SR_B3", scene.NIR: "SR_B4",
		scene.SWIR1: "SR_B5", scene.SWIR2: "SR_B7", scene.Thermal: "ST_B6",
	},
}

// AddScene creates an on-disk scene directory with empty band files under
// Root/scenes and registers its rasters in the store. It returns the directory.
func (s *Study) AddScene(t *testing.T, product string, opts SceneOptions) string {
	t.Helper()
	id, err := scene.ParseProductID(product)
	require.NoError(t, err)
	files, ok := sceneFiles[id.Sensor]
	require.True(t, ok, "no fixture files for sensor %s", id.Sensor)

	dir := filepath.Join(s.Root, "scenes", product)
	require.NoError(t, EnsureDir(dir))

	grid := s.Grid
	if opts.Width > 0 {
		grid.Width = opts.Width
	}
	nodata := make(map[int]bool, len(opts.NoData))
	for _, i := range opts.NoData {
		nodata[i] = true
	}
	uncorrelated := make(map[scene.BandName]bool, len(opts.Uncorrelated))
	for _, b := range opts.Uncorrelated {
		uncorrelated[b] = true
	}

	touch := func(suffix string) string {
		p := filepath.Join(dir, fmt.Sprintf("%s_%s.TIF", product, suffix))
		require.NoError(t, os.WriteFile(p, nil, 0o600))
		return p
	}

	for bi, name := range scene.Reflective {
		b := raster.NewBand(grid)
		for i := range b.Data {
			switch {
			case nodata[i]:
			case uncorrelated[name]:
				b.Data[i] = noiseValue(bi, i)
			default:
				b.Data[i] = rawValue(bi, i)
			}
		}
		s.Store.Put(touch(files[name]), b)
	}

	thermal := raster.NewBand(grid)
	for i := range thermal.Data {
		thermal.Data[i] = 290
	}
	s.Store.Put(touch(files[scene.Thermal]), thermal)

	clearCode := float32(QAClearLandOLI)
	if id.Sensor != scene.OLI {
		clearCode = QAClearLandTM
	}
	qa := raster.NewBand(grid)
	for i := range qa.Data {
		qa.Data[i] = clearCode
	}
	for _, i := range opts.Cloudy {
		qa.Data[i] = QACloudOLI
	}
	s.Store.Put(touch("QA_PIXEL"), qa)

	// Stray files must be ignored by scene discovery.
	require.NoError(t, os.WriteFile(filepath.Join(dir, strings.ToLower(product)+"_MTL.txt"), nil, 0o600))
	return dir
}
