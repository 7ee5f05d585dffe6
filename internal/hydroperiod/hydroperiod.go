// Package hydroperiod accumulates flooded days per pixel over one hydrological
// cycle from a dated series of flood masks.
package hydroperiod

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// ErrNoScenes is returned when no observation falls inside the cycle.
var ErrNoScenes = errors.New("no flood masks inside the hydrological cycle")

// Cycle is a hydrological year, 1 September to 31 August.
type Cycle struct {
	Start time.Time
	End   time.Time // exclusive, 1 September of the next year
}

// CycleStarting returns the cycle that begins on 1 September of year.
func CycleStarting(year int) Cycle {
	return Cycle{
		Start: time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year+1, time.September, 1, 0, 0, 0, 0, time.UTC),
	}
}

// CycleOf returns the cycle containing t.
func CycleOf(t time.Time) Cycle {
	if t.Month() >= time.September {
		return CycleStarting(t.Year())
	}
	return CycleStarting(t.Year() - 1)
}

// Contains reports whether t falls in the cycle.
func (c Cycle) Contains(t time.Time) bool { return !t.Before(c.Start) && t.Before(c.End) }

// Days returns the length of the cycle in days.
func (c Cycle) Days() float64 { return c.End.Sub(c.Start).Hours() / 24 }

func (c Cycle) String() string { return fmt.Sprintf("%d-%d", c.Start.Year(), c.End.Year()) }

// Observation is one dated flood mask.
type Observation struct {
	Scene string
	Date  time.Time
	Mask  *raster.Mask
}

// Weight is the number of days one observation stands for.
type Weight struct {
	Scene string    `json:"scene"`
	Date  time.Time `json:"date"`
	Days  float64   `json:"days"`
}

// Result holds the hydroperiod raster and the day weight of every scene used.
type Result struct {
	Cycle   Cycle
	Days    *raster.Band
	Weights []Weight
	// Skipped lists scenes outside the cycle.
	Skipped []string
}

// Weights assigns each date half the gap to its neighbours. The first and last
// dates extend to the cycle bounds, so the weights sum to the cycle length.
// dates must be sorted.
func Weights(c Cycle, dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	for k, d := range dates {
		var left, right float64
		if k == 0 {
			left = d.Sub(c.Start).Hours() / 24
		} else {
			left = d.Sub(dates[k-1]).Hours() / 48
		}
		if k == len(dates)-1 {
			right = c.End.Sub(d).Hours() / 24
		} else {
			right = dates[k+1].Sub(d).Hours() / 48
		}
		out[k] = left + right
	}
	return out
}

// Compute accumulates, for each pixel, the days of every observation in which it
// was flooded. A pixel that is never dry or flooded in any observation is
// nodata; invalid (code 2) and nodata pixels contribute nothing.
func Compute(c Cycle, obs []Observation) (*Result, error) {
	res := &Result{Cycle: c}
	var kept []Observation
	for _, o := range obs {
		if o.Mask == nil {
			return nil, fmt.Errorf("observation %s has no mask", o.Scene)
		}
		if !c.Contains(o.Date) {
			res.Skipped = append(res.Skipped, o.Scene)
			continue
		}
		kept = append(kept, o)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoScenes, c)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Date.Before(kept[j].Date) })

	grid := kept[0].Mask.Grid
	for _, o := range kept[1:] {
		if !grid.Matches(o.Mask.Grid) {
			return nil, fmt.Errorf("%w: %s", raster.ErrGridMismatch, o.Scene)
		}
	}

	dates := make([]time.Time, len(kept))
	for k, o := range kept {
		dates[k] = o.Date
	}
	w := Weights(c, dates)

	days := make([]float64, grid.Len())
	seen := make([]bool, grid.Len())
	for k, o := range kept {
		res.Weights = append(res.Weights, Weight{Scene: o.Scene, Date: o.Date, Days: w[k]})
		for i, v := range o.Mask.Data {
			switch v {
			case 1:
				days[i] += w[k]
				seen[i] = true
			case 0:
				seen[i] = true
			}
		}
	}

	res.Days = raster.NewBand(grid)
	for i := range days {
		if seen[i] {
			res.Days.Data[i] = float32(days[i])
		}
	}
	return res, nil
}
