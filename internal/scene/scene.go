// Package scene describes one Landsat acquisition: its sensor family, identifier
// and the typed set of band files it provides.
package scene

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownSensor is returned for product names that do not map to OLI, ETM+ or TM.
	ErrUnknownSensor = errors.New("unknown sensor")
	// ErrMissingBand is returned when a scene lacks a band required by the pipeline.
	ErrMissingBand = errors.New("missing band")
	// ErrBadProductID is returned when a Landsat product identifier cannot be parsed.
	ErrBadProductID = errors.New("malformed landsat product id")
)

// Sensor is a Landsat sensor family. It fixes the QA pixel encoding and the
// band numbering.
type Sensor string

const (
	OLI  Sensor = "OLI"
	ETM  Sensor = "ETM+"
	TM   Sensor = "TM"
	none Sensor = ""
)

// ClearCodes are the QA_PIXEL values meaning clear land and clear water.
type ClearCodes struct {
	Land  int
	Water int
}

// IsClear reports whether a QA value is one of the two clear categories.
func (c ClearCodes) IsClear(v int) bool { return v == c.Land || v == c.Water }

// ClearCodes returns the clear-land/clear-water pair for the sensor family.
func (s Sensor) ClearCodes() ClearCodes {
	switch s {
	case OLI:
		return ClearCodes{Land: 21824, Water: 21952}
	case ETM, TM:
		return ClearCodes{Land: 5440, Water: 5504}
	default:
		return ClearCodes{}
	}
}

// ParseSensor accepts the usual spellings (oli, etm, etm+, tm).
func ParseSensor(s string) (Sensor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oli", "oli_tirs", "oli-tirs":
		return OLI, nil
	case "etm", "etm+":
		return ETM, nil
	case "tm":
		return TM, nil
	}
	return none, fmt.Errorf("%w: %q", ErrUnknownSensor, s)
}

// slug is the lower-case token used inside scene identifiers.
func (s Sensor) slug() string {
	switch s {
	case ETM:
		return "etm"
	default:
		return strings.ToLower(string(s))
	}
}

// ID identifies a scene.
type ID struct {
	Satellite int
	Sensor    Sensor
	Path      int
	Row       int
	Date      time.Time
}

// String renders the identifier as YYYYMMDDl<sat><sensor><path>_<row>,
// e.g. 20230115l8oli202_34.
func (id ID) String() string {
	return fmt.Sprintf("%sl%d%s%03d_%d", id.Date.Format("20060102"), id.Satellite, id.Sensor.slug(), id.Path, id.Row)
}

// productRe matches Collection-2 product names such as
// LC08_L2SP_202034_20230115_20230131_02_T1.
var productRe = regexp.MustCompile(`^L([COTE])(\d{2})_L\w{3}_(\d{3})(\d{3})_(\d{8})_\d{8}_\d{2}_\w{2}`)

// ParseProductID derives the scene identifier from a Landsat product name.
func ParseProductID(product string) (ID, error) {
	m := productRe.FindStringSubmatch(strings.ToUpper(product))
	if m == nil {
		return ID{}, fmt.Errorf("%w: %q", ErrBadProductID, product)
	}
	sat, _ := strconv.Atoi(m[2])
	path, _ := strconv.Atoi(m[3])
	row, _ := strconv.Atoi(m[4])
	date, err := time.Parse("20060102", m[5])
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrBadProductID, product, err)
	}

	var sensor Sensor
	switch {
	case m[1] == "C" || m[1] == "O":
		sensor = OLI
	case m[1] == "E":
		sensor = ETM
	case m[1] == "T" && sat <= 5:
		sensor = TM
	default:
		return ID{}, fmt.Errorf("%w: %q", ErrUnknownSensor, product)
	}
	return ID{Satellite: sat, Sensor: sensor, Path: path, Row: row, Date: date}, nil
}
