//nolint:lll
package config

import (
	"github.com/MeKo-Tech/marisma/internal/flood"
	"github.com/MeKo-Tech/marisma/internal/normalize"
)

// Config represents the complete configuration for the marisma application.
// It covers every command (normalize, flood, process, batch, hydroperiod) and
// is loaded from configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Static inputs of the study area
	Reference ReferenceConfig `mapstructure:"reference" yaml:"reference" json:"reference"`
	Masks     MasksConfig     `mapstructure:"masks" yaml:"masks" json:"masks"`
	Ancillary AncillaryConfig `mapstructure:"ancillary" yaml:"ancillary" json:"ancillary"`

	// Stage settings
	Normalization NormalizationConfig `mapstructure:"normalization" yaml:"normalization" json:"normalization"`
	Flood         FloodConfig         `mapstructure:"flood" yaml:"flood" json:"flood"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Parameter persistence
	Store StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// ReferenceConfig locates the reference scene, one <band>.tif per reflective band.
type ReferenceConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

// MasksConfig locates the two pseudo-invariant zone masks.
type MasksConfig struct {
	Unbalanced string `mapstructure:"unbalanced" yaml:"unbalanced" json:"unbalanced"`
	Balanced   string `mapstructure:"balanced" yaml:"balanced" json:"balanced"`
}

// AncillaryConfig locates the static flood inputs, one <name>.tif each.
type AncillaryConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

// NormalizationConfig contains regression and escalation settings.
type NormalizationConfig struct {
	MinR          float64             `mapstructure:"min_r" yaml:"min_r" json:"min_r"`
	MinZonePixels int                 `mapstructure:"min_zone_pixels" yaml:"min_zone_pixels" json:"min_zone_pixels"`
	Escalation    []normalize.Attempt `mapstructure:"escalation" yaml:"escalation" json:"escalation"`
	// Workers bounds the bands normalized concurrently within a scene.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
	// Scatter writes one regression plot per accepted band.
	Scatter bool `mapstructure:"scatter" yaml:"scatter" json:"scatter"`
}

// FloodConfig contains the cascade thresholds and the code-2 policy.
type FloodConfig struct {
	Thresholds    flood.Thresholds `mapstructure:"thresholds" yaml:"thresholds" json:"thresholds"`
	InvalidPolicy string           `mapstructure:"invalid_policy" yaml:"invalid_policy" json:"invalid_policy"`
}

// OutputConfig contains output settings.
type OutputConfig struct {
	Dir           string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Compress      bool   `mapstructure:"compress" yaml:"compress" json:"compress"`
	Indices       bool   `mapstructure:"indices" yaml:"indices" json:"indices"`
	Quicklooks    bool   `mapstructure:"quicklooks" yaml:"quicklooks" json:"quicklooks"`
	QuicklookSize int    `mapstructure:"quicklook_size" yaml:"quicklook_size" json:"quicklook_size"`
	Format        string `mapstructure:"format" yaml:"format" json:"format"`
	File          string `mapstructure:"file" yaml:"file" json:"file"`
}

// StoreConfig selects where normalization parameters and areas are kept.
// Empty paths disable the corresponding sink.
type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path" json:"sqlite_path"`
	CSVDir     string `mapstructure:"csv_dir" yaml:"csv_dir" json:"csv_dir"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	// MetricsAddr serves /metrics during the run when set, e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr" json:"metrics_addr"`
}
