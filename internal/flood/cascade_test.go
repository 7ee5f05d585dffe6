package flood

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// cascadeContext holds one scenario's pixel and outcome.
type cascadeContext struct {
	px      pixel
	missing string
	mask    *raster.Mask
	err     error
}

func (c *cascadeContext) calmPixel() error {
	c.px = calm()
	return nil
}

func (c *cascadeContext) setValue(name string, v float64) error {
	f := float32(v)
	switch name {
	case "SWIR1":
		c.px.swir1 = f
	case "slope":
		c.px.slope = f
	case "hillshade":
		c.px.hillshade = f
	case "DTM":
		c.px.dtm = f
	case "NDWI composite":
		c.px.ndwiC = f
	case "MNDWI composite":
		c.px.mndwiC = f
	case "NDVI 10th percentile":
		c.px.ndviP10 = f
	case "NDVI mean":
		c.px.ndviMean = f
	case "vegetation cover":
		c.px.cobveg = f
	case "scene NDVI":
		c.px.ndvi = f
	case "scene NDWI":
		c.px.ndwi = f
	case "scene MNDWI":
		c.px.mndwi = f
	default:
		return fmt.Errorf("unknown input %q", name)
	}
	return nil
}

func (c *cascadeContext) swirNoData() error {
	c.px.swir1 = raster.NoData
	return nil
}

func (c *cascadeContext) qaCode(kind string) error {
	switch kind {
	case "clear-land":
		c.px.qa = float32(oli.Land)
	case "clear-water":
		c.px.qa = float32(oli.Water)
	case "cloud":
		c.px.qa = 22280
	default:
		return fmt.Errorf("unknown qa kind %q", kind)
	}
	return nil
}

func (c *cascadeContext) rasterMissing(name string) error {
	c.missing = name
	return nil
}

func (c *cascadeContext) classify() error {
	in, anc := build(c.px)
	if c.missing != "" {
		if err := anc.Set(c.missing, nil); err != nil {
			return err
		}
	}
	res, err := NewClassifier(DefaultThresholds(), nil).Classify(in, anc)
	c.err = err
	if err == nil {
		c.mask = res.Mask
	}
	return nil
}

func (c *cascadeContext) finalize(policy string) error {
	if c.mask == nil {
		return fmt.Errorf("no mask to finalize: %v", c.err)
	}
	p, err := ParseInvalidPolicy(policy)
	if err != nil {
		return err
	}
	c.mask = Finalize(c.mask, p)
	return nil
}

func (c *cascadeContext) floodCodeIs(want int) error {
	if c.err != nil {
		return fmt.Errorf("classification failed: %w", c.err)
	}
	if got := int(c.mask.Data[0]); got != want {
		return fmt.Errorf("expected flood code %d, got %d", want, got)
	}
	return nil
}

func (c *cascadeContext) failsMissingAncillary() error {
	if !errors.Is(c.err, ErrMissingAncillary) {
		return fmt.Errorf("expected missing ancillary error, got %v", c.err)
	}
	if c.mask != nil {
		return errors.New("no mask may be produced on failure")
	}
	return nil
}

func initializeCascadeScenario(sc *godog.ScenarioContext) {
	c := &cascadeContext{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*c = cascadeContext{}
		return ctx, nil
	})

	sc.Step(`^an OLI scene with a single calm water pixel$`, c.calmPixel)
	sc.Step(`^the SWIR1 is nodata$`, c.swirNoData)
	sc.Step(`^the QA code is (clear-land|clear-water|cloud)$`, c.qaCode)
	sc.Step(`^the ([A-Za-z0-9 ]+?) raster is missing$`, c.rasterMissing)
	sc.Step(`^the ([A-Za-z0-9 ]+?) is (-?\d+(?:\.\d+)?)$`, c.setValue)
	sc.Step(`^the pixel is classified$`, c.classify)
	sc.Step(`^the mask is finalized with policy "([^"]*)"$`, c.finalize)
	sc.Step(`^the flood code is (-?\d+)$`, c.floodCodeIs)
	sc.Step(`^classification fails with a missing ancillary error$`, c.failsMissingAncillary)
}

// TestFeatures runs the cascade feature files.
func TestFeatures(t *testing.T) {
	entries, err := os.ReadDir("features")
	if err != nil {
		t.Fatalf("failed to read features directory: %v", err)
	}

	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "pretty"
	}

	found := false
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".feature") {
			continue
		}
		found = true
		featurePath := filepath.Join("features", e.Name())

		t.Run(e.Name(), func(t *testing.T) {
			suite := godog.TestSuite{
				ScenarioInitializer: initializeCascadeScenario,
				Options: &godog.Options{
					Format:   format,
					Paths:    []string{featurePath},
					Strict:   true,
					TestingT: t,
				},
			}
			if suite.Run() != 0 {
				t.Fatalf("non-zero status returned for %s", featurePath)
			}
		})
	}

	if !found {
		t.Fatalf("no .feature files found in features/")
	}
}
