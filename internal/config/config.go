package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/marisma/internal/flood"
	"github.com/MeKo-Tech/marisma/internal/normalize"
	"github.com/MeKo-Tech/marisma/internal/pif"
	"github.com/MeKo-Tech/marisma/internal/pipeline"
)

// DefaultConfig returns a configuration with the Doñana calibration and no
// input paths.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Normalization: NormalizationConfig{
			MinR:          p.Criteria.MinR,
			MinZonePixels: p.Criteria.MinZonePixels,
			Escalation:    p.Escalation,
			Workers:       0,
			Scatter:       false,
		},
		Flood: FloodConfig{
			Thresholds:    p.Thresholds,
			InvalidPolicy: string(p.InvalidPolicy),
		},
		Output: OutputConfig{
			Dir:           p.OutputDir,
			Compress:      true,
			Indices:       p.WriteIndices,
			Quicklooks:    p.Quicklooks,
			QuicklookSize: p.QuicklookSize,
			Format:        "text",
		},
		Batch: BatchConfig{
			Workers:         2,
			ContinueOnError: true,
			Recursive:       false,
			Include:         []string{"L*_L2SP_*"},
		},
	}
}

// Validate validates the configuration and returns any errors. Input paths
// are not required here; commands check the ones they need.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "yaml", "csv"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if c.Normalization.MinR < 0 || c.Normalization.MinR >= 1 {
		return fmt.Errorf("invalid normalization.min_r: %.2f (must be within [0, 1))", c.Normalization.MinR)
	}
	if c.Normalization.MinZonePixels <= 0 {
		return fmt.Errorf("invalid normalization.min_zone_pixels: %d (must be positive)", c.Normalization.MinZonePixels)
	}
	if c.Normalization.Workers < 0 {
		return fmt.Errorf("invalid normalization.workers: %d (must not be negative)", c.Normalization.Workers)
	}
	for i, a := range c.Normalization.Escalation {
		if a.Mask != normalize.Unbalanced && a.Mask != normalize.Balanced {
			return fmt.Errorf("invalid normalization.escalation[%d].mask: %q (must be unbalanced or balanced)", i, a.Mask)
		}
		if a.Coef <= 0 {
			return fmt.Errorf("invalid normalization.escalation[%d].coef: %v (must be positive)", i, a.Coef)
		}
	}

	if err := c.Flood.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid flood thresholds: %w", err)
	}
	if _, err := flood.ParseInvalidPolicy(c.Flood.InvalidPolicy); err != nil {
		return err
	}

	if c.Output.QuicklookSize < 0 {
		return fmt.Errorf("invalid output.quicklook_size: %d (must not be negative)", c.Output.QuicklookSize)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
func (c *Config) ToPipelineConfig() pipeline.Config {
	policy, _ := flood.ParseInvalidPolicy(c.Flood.InvalidPolicy)
	cfg := pipeline.DefaultConfig()
	cfg.ReferenceDir = c.Reference.Dir
	cfg.Masks = c.toMasks()
	cfg.AncillaryDir = c.Ancillary.Dir
	cfg.Criteria = pif.Criteria{MinR: c.Normalization.MinR, MinZonePixels: c.Normalization.MinZonePixels}
	if len(c.Normalization.Escalation) > 0 {
		cfg.Escalation = slices.Clone(c.Normalization.Escalation)
	}
	cfg.BandWorkers = c.Normalization.Workers
	cfg.Scatter = c.Normalization.Scatter
	cfg.Thresholds = c.Flood.Thresholds
	cfg.InvalidPolicy = policy
	cfg.OutputDir = c.Output.Dir
	cfg.WriteIndices = c.Output.Indices
	cfg.Quicklooks = c.Output.Quicklooks
	cfg.QuicklookSize = c.Output.QuicklookSize
	return cfg
}

func (c *Config) toMasks() map[normalize.MaskVariant]string {
	out := make(map[normalize.MaskVariant]string, 2)
	if c.Masks.Unbalanced != "" {
		out[normalize.Unbalanced] = c.Masks.Unbalanced
	}
	if c.Masks.Balanced != "" {
		out[normalize.Balanced] = c.Masks.Balanced
	}
	return out
}
