package hydroperiod

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// maskSuffix ends every flood mask written by the scene pipeline.
const maskSuffix = "_flood.tif"

// ParseMaskName returns the scene name and acquisition date of a flood mask
// file named <scene>_flood.tif, where the scene name starts with YYYYMMDD.
func ParseMaskName(path string) (string, time.Time, error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(strings.ToLower(base), maskSuffix) {
		return "", time.Time{}, fmt.Errorf("%s: not a flood mask (want <scene>%s)", base, maskSuffix)
	}
	name := base[:len(base)-len(maskSuffix)]
	if len(name) < 8 {
		return "", time.Time{}, fmt.Errorf("%s: scene name too short", base)
	}
	date, err := time.Parse("20060102", name[:8])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: no acquisition date: %w", base, err)
	}
	return name, date, nil
}

// Load reads dated observations from flood mask files.
func Load(r raster.Reader, paths []string) ([]Observation, error) {
	obs := make([]Observation, 0, len(paths))
	for _, p := range paths {
		name, date, err := ParseMaskName(p)
		if err != nil {
			return nil, err
		}
		b, err := r.ReadBand(p)
		if err != nil {
			return nil, fmt.Errorf("flood mask %s: %w", name, err)
		}
		obs = append(obs, Observation{Scene: name, Date: date, Mask: b.ToMask()})
	}
	return obs, nil
}
