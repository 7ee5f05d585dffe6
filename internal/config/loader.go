package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "marisma"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "MARISMA"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so flag bindings
// made by the root command apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on an isolated viper instance.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first marisma.* found on the search paths, environment
// variables and defaults, then validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the final validation.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is LoadWithFile without the final validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file on the search paths is fine; an explicit one is not.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps MARISMA_FLOOD_INVALID_POLICY to flood.invalid_policy.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	// Inputs have no defaults, but registering them lets env variables bind.
	l.v.SetDefault("reference.dir", "")
	l.v.SetDefault("masks.unbalanced", "")
	l.v.SetDefault("masks.balanced", "")
	l.v.SetDefault("ancillary.dir", "")

	// Normalization defaults
	l.v.SetDefault("normalization.min_r", defaults.Normalization.MinR)
	l.v.SetDefault("normalization.min_zone_pixels", defaults.Normalization.MinZonePixels)
	l.v.SetDefault("normalization.escalation", escalationDefaults(defaults.Normalization))
	l.v.SetDefault("normalization.workers", defaults.Normalization.Workers)
	l.v.SetDefault("normalization.scatter", defaults.Normalization.Scatter)

	// Flood defaults
	t := defaults.Flood.Thresholds
	l.v.SetDefault("flood.thresholds.swir1_water", t.SWIR1Water)
	l.v.SetDefault("flood.thresholds.slope_max", t.SlopeMax)
	l.v.SetDefault("flood.thresholds.slope_ndwi_confirm", t.SlopeNDWIConfirm)
	l.v.SetDefault("flood.thresholds.slope_mndwi_confirm", t.SlopeMNDWIConfirm)
	l.v.SetDefault("flood.thresholds.hillshade_percentile", t.HillshadePercentile)
	l.v.SetDefault("flood.thresholds.ndvi_p10_max", t.NDVIP10Max)
	l.v.SetDefault("flood.thresholds.ndvi_mean_max", t.NDVIMeanMax)
	l.v.SetDefault("flood.thresholds.cobveg_max", t.CobVegMax)
	l.v.SetDefault("flood.thresholds.scene_ndvi_max", t.SceneNDVIMax)
	l.v.SetDefault("flood.thresholds.dtm_max", t.DTMMax)
	l.v.SetDefault("flood.thresholds.vote_min", t.VoteMin)
	l.v.SetDefault("flood.invalid_policy", defaults.Flood.InvalidPolicy)

	// Output defaults
	l.v.SetDefault("output.dir", defaults.Output.Dir)
	l.v.SetDefault("output.compress", defaults.Output.Compress)
	l.v.SetDefault("output.indices", defaults.Output.Indices)
	l.v.SetDefault("output.quicklooks", defaults.Output.Quicklooks)
	l.v.SetDefault("output.quicklook_size", defaults.Output.QuicklookSize)
	l.v.SetDefault("output.format", defaults.Output.Format)

	// Store defaults
	l.v.SetDefault("store.sqlite_path", defaults.Store.SQLitePath)
	l.v.SetDefault("store.csv_dir", defaults.Store.CSVDir)

	// Batch defaults
	l.v.SetDefault("batch.workers", defaults.Batch.Workers)
	l.v.SetDefault("batch.continue_on_error", defaults.Batch.ContinueOnError)
	l.v.SetDefault("batch.recursive", defaults.Batch.Recursive)
	l.v.SetDefault("batch.include", defaults.Batch.Include)
	l.v.SetDefault("batch.exclude", defaults.Batch.Exclude)
	l.v.SetDefault("batch.metrics_addr", defaults.Batch.MetricsAddr)
}

// escalationDefaults renders the escalation as plain maps so that written
// config files use the mask/coef keys.
func escalationDefaults(n NormalizationConfig) []map[string]interface{} {
	out := make([]map[string]interface{}, len(n.Escalation))
	for i, a := range n.Escalation {
		out[i] = map[string]interface{}{"mask": string(a.Mask), "coef": a.Coef}
	}
	return out
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes the defaults to filename, marisma.yaml when empty.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWith(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}

// PrintConfigInfo writes where configuration was looked for and found.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", l.GetConfigFileUsed())
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}
