package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// BandName names a spectral band independently of the sensor numbering.
type BandName string

const (
	Blue    BandName = "blue"
	Green   BandName = "green"
	Red     BandName = "red"
	NIR     BandName = "nir"
	SWIR1   BandName = "swir1"
	SWIR2   BandName = "swir2"
	Thermal BandName = "thermal"
)

// Reflective lists the bands that are normalized, in processing order.
var Reflective = []BandName{Blue, Green, Red, NIR, SWIR1, SWIR2}

// bandNumbers maps sensor band numbers to names.
var bandNumbers = map[Sensor]map[int]BandName{
	OLI: {2: Blue, 3: Green, 4: Red, 5: NIR, 6: SWIR1, 7: SWIR2, 10: Thermal},
	ETM: {1: Blue, 2: Green, 3: Red, 4: NIR, 5: SWIR1, 7: SWIR2, 6: Thermal},
	TM:  {1: Blue, 2: Green, 3: Red, 4: NIR, 5: SWIR1, 7: SWIR2, 6: Thermal},
}

// Bands holds the file paths of one scene, one field per band.
type Bands struct {
	Blue    string `json:"blue"`
	Green   string `json:"green"`
	Red     string `json:"red"`
	NIR     string `json:"nir"`
	SWIR1   string `json:"swir1"`
	SWIR2   string `json:"swir2"`
	QA      string `json:"qa"`
	Thermal string `json:"thermal,omitempty"`
}

// Path returns the file of the named band, or "" if unknown.
func (b *Bands) Path(name BandName) string {
	if p := b.field(name); p != nil {
		return *p
	}
	return ""
}

func (b *Bands) field(name BandName) *string {
	switch name {
	case Blue:
		return &b.Blue
	case Green:
		return &b.Green
	case Red:
		return &b.Red
	case NIR:
		return &b.NIR
	case SWIR1:
		return &b.SWIR1
	case SWIR2:
		return &b.SWIR2
	case Thermal:
		return &b.Thermal
	}
	return nil
}

// Validate checks that every band required by normalization and flood
// classification is present. Thermal is optional.
func (b *Bands) Validate() error {
	var missing []string
	for _, name := range Reflective {
		if b.Path(name) == "" {
			missing = append(missing, string(name))
		}
	}
	if b.QA == "" {
		missing = append(missing, "qa")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingBand, strings.Join(missing, ", "))
	}
	return nil
}

// Scene is one acquisition on disk.
type Scene struct {
	ID    ID
	Dir   string
	Bands Bands
}

// Name returns the scene identifier string.
func (s *Scene) Name() string { return s.ID.String() }

var (
	bandFileRe = regexp.MustCompile(`(?i)_(?:SR_|ST_)?B(\d{1,2})\.TIF{1,2}$`)
	qaFileRe   = regexp.MustCompile(`(?i)_QA_PIXEL\.TIF{1,2}$`)
)

// Open maps the GeoTIFFs in dir to a typed Bands record and derives the scene
// identifier from the directory name or, failing that, from the file names.
// The result is validated before it is returned.
func Open(dir string) (*Scene, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene directory %s: %w", dir, err)
	}

	id, err := ParseProductID(filepath.Base(filepath.Clean(dir)))
	if err != nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			if id, err = ParseProductID(n); err == nil {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("cannot identify scene in %s: %w", dir, err)
		}
	}

	s := &Scene{ID: id, Dir: dir}
	numbers := bandNumbers[id.Sensor]
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		full := filepath.Join(dir, name)
		if qaFileRe.MatchString(name) {
			s.Bands.QA = full
			continue
		}
		m := bandFileRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if bn, ok := numbers[n]; ok {
			*s.Bands.field(bn) = full
		}
	}

	if err := s.Bands.Validate(); err != nil {
		return nil, fmt.Errorf("scene %s: %w", id, err)
	}
	return s, nil
}

// Rasters are the loaded bands of one scene.
type Rasters struct {
	Bands   map[BandName]*raster.Band
	QA      *raster.Band
	Thermal *raster.Band
}

// Band returns the named reflective band or nil.
func (r *Rasters) Band(name BandName) *raster.Band { return r.Bands[name] }

// Load reads every band of the scene and checks that they share one grid.
func (s *Scene) Load(reader raster.Reader) (*Rasters, error) {
	out := &Rasters{Bands: make(map[BandName]*raster.Band, len(Reflective))}
	for _, name := range Reflective {
		b, err := reader.ReadBand(s.Bands.Path(name))
		if err != nil {
			return nil, fmt.Errorf("scene %s band %s: %w", s.ID, name, err)
		}
		out.Bands[name] = b
	}
	qa, err := reader.ReadBand(s.Bands.QA)
	if err != nil {
		return nil, fmt.Errorf("scene %s qa: %w", s.ID, err)
	}
	out.QA = qa
	if s.Bands.Thermal != "" {
		if out.Thermal, err = reader.ReadBand(s.Bands.Thermal); err != nil {
			return nil, fmt.Errorf("scene %s thermal: %w", s.ID, err)
		}
	}

	check := map[string]*raster.Band{"qa": out.QA, "thermal": out.Thermal}
	for name, b := range out.Bands {
		check[string(name)] = b
	}
	if err := raster.CheckGrids(check); err != nil {
		return nil, fmt.Errorf("scene %s: %w", s.ID, err)
	}
	return out, nil
}
