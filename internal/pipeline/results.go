package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/marisma/internal/flood"
	"github.com/MeKo-Tech/marisma/internal/indices"
	"github.com/MeKo-Tech/marisma/internal/normalize"
	"github.com/MeKo-Tech/marisma/internal/scene"
)

// SceneResult is the per-scene summary of a run.
type SceneResult struct {
	Scene     string       `json:"scene" yaml:"scene"`
	Dir       string       `json:"dir" yaml:"dir"`
	Sensor    scene.Sensor `json:"sensor,omitempty" yaml:"sensor,omitempty"`
	Date      time.Time    `json:"date" yaml:"date"`
	Footprint orb.Bound    `json:"footprint" yaml:"footprint"`

	Normalized    []scene.BandName                     `json:"normalized,omitempty" yaml:"normalized,omitempty"`
	NotNormalized []scene.BandName                     `json:"not_normalized,omitempty" yaml:"not_normalized,omitempty"`
	Params        map[scene.BandName]*normalize.Params `json:"params,omitempty" yaml:"params,omitempty"`

	Area *indices.Area `json:"area,omitempty" yaml:"area,omitempty"`
	// ShadowThreshold is absent when the hillshade had no valid pixels.
	ShadowThreshold *float64          `json:"shadow_threshold,omitempty" yaml:"shadow_threshold,omitempty"`
	StageHits       []flood.StageHits `json:"stage_hits,omitempty" yaml:"stage_hits,omitempty"`

	Outputs  []string                 `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Stages   map[string]time.Duration `json:"stages,omitempty" yaml:"stages,omitempty"`
	Duration time.Duration            `json:"duration" yaml:"duration"`

	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	Err   error  `json:"-" yaml:"-"`
}

// OK reports whether the scene finished without error.
func (r *SceneResult) OK() bool { return r != nil && r.Err == nil }

func (r *SceneResult) fail(err error) error {
	r.Err = err
	r.Error = err.Error()
	return err
}

func (r *SceneResult) setNormalization(nr *normalize.Result) {
	r.Normalized = nr.Normalized
	r.NotNormalized = nr.NotNormalized
	r.Params = nr.Params
}

func (r *SceneResult) setFlood(fr *flood.Result, area indices.Area) {
	r.Area = &area
	r.StageHits = fr.Hits
	if !math.IsNaN(fr.ShadowThreshold) {
		t := fr.ShadowThreshold
		r.ShadowThreshold = &t
	}
}

// Summary is a one-line description used by text reports.
func (r *SceneResult) Summary() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: FAILED: %v", r.name(), r.Err)
	}
	parts := []string{r.name()}
	if len(r.Normalized)+len(r.NotNormalized) > 0 {
		parts = append(parts, fmt.Sprintf("normalized %d/%d", len(r.Normalized), len(r.Normalized)+len(r.NotNormalized)))
	}
	if len(r.NotNormalized) > 0 {
		names := make([]string, len(r.NotNormalized))
		for i, b := range r.NotNormalized {
			names[i] = string(b)
		}
		parts = append(parts, "not normalized: "+strings.Join(names, ","))
	}
	if r.Area != nil {
		parts = append(parts, fmt.Sprintf("flooded %.2f ha", r.Area.FloodedHa))
	}
	parts = append(parts, r.Duration.Round(time.Millisecond).String())
	return strings.Join(parts, "  ")
}

func (r *SceneResult) name() string {
	if r.Scene != "" {
		return r.Scene
	}
	return filepath.Base(r.Dir)
}

// ToJSON serializes a single result to pretty JSON.
func ToJSON(res *SceneResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
