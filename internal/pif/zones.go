package pif

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ZoneClass is a pseudo-invariant land-cover class of the zone mask.
type ZoneClass int

// The nine classes of the Doñana PIF masks. Mask values outside 1..9 are ignored.
const (
	Sea ZoneClass = iota + 1
	Reservoirs
	PineForest
	Urban1
	Urban2
	Airports
	Sand
	Grassland
	Mining
)

// NumZones is the number of named classes taking part in the acceptance gate.
const NumZones = 9

var zoneNames = [NumZones]string{
	"sea", "reservoirs", "pine forest", "urban 1", "urban 2",
	"airports", "sand", "grassland", "mining",
}

// AllZones lists every class in mask order.
func AllZones() []ZoneClass {
	out := make([]ZoneClass, NumZones)
	for i := range out {
		out[i] = ZoneClass(i + 1)
	}
	return out
}

// Valid reports whether z is one of the nine named classes.
func (z ZoneClass) Valid() bool { return z >= Sea && z <= Mining }

func (z ZoneClass) String() string {
	if !z.Valid() {
		return fmt.Sprintf("zone(%d)", int(z))
	}
	return zoneNames[z-1]
}

// Label is the display form used on plots and in reports.
func (z ZoneClass) Label() string {
	return cases.Title(language.English).String(z.String())
}

// ZoneCounts holds retained calibration pixels per class, index 0 is Sea.
type ZoneCounts [NumZones]int

// Min returns the smallest count across all nine classes, so a class with no
// retained pixels yields zero.
func (c ZoneCounts) Min() int {
	m := c[0]
	for _, v := range c[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Of returns the count for class z.
func (c ZoneCounts) Of(z ZoneClass) int {
	if !z.Valid() {
		return 0
	}
	return c[z-1]
}

// Map renders the counts keyed by class name.
func (c ZoneCounts) Map() map[string]int {
	out := make(map[string]int, NumZones)
	for i, v := range c {
		out[zoneNames[i]] = v
	}
	return out
}
