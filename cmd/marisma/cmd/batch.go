package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/marisma/internal/batch"
	"github.com/MeKo-Tech/marisma/internal/config"
	"github.com/MeKo-Tech/marisma/internal/observability"
	"github.com/MeKo-Tech/marisma/internal/pipeline"
)

// batchCmd represents the batch command for parallel scene processing.
var batchCmd = &cobra.Command{
	Use:   "batch [dirs...]",
	Short: "Process many scene directories in parallel",
	Long: `Discover Landsat scene directories and run the pipeline on them in parallel.
An argument is either a scene directory, named by its product identifier, or a
directory searched for scene directories. Scenes are processed in acquisition
order and the reference data is loaded once for the whole run.

Examples:
  marisma batch /data/scenes
  marisma batch /data/scenes --recursive --workers 8 --exclude 'LT05_*'
  marisma batch /data/scenes --mode normalize --format csv --output run.csv
  marisma batch /data/scenes --progress --stats --metrics-addr :9090`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// batchOptions are the reporting settings of a batch run.
type batchOptions struct {
	Format       string
	OutputFile   string
	ShowProgress bool
	Quiet        bool
	ShowStats    bool
	MetricsAddr  string
}

// parseMode maps a --mode value to pipeline stages.
func parseMode(s string) (pipeline.Mode, error) {
	switch strings.ToLower(s) {
	case "", "full", "process":
		return pipeline.ModeFull, nil
	case "normalize":
		return pipeline.ModeNormalize, nil
	case "flood":
		return pipeline.ModeFlood, nil
	}
	return 0, fmt.Errorf("invalid mode %q (must be one of: full, normalize, flood)", s)
}

// configToBatchConfig maps centralized configuration to batch.Config.
// Flags given on the command line override config file values.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) (*batch.Config, batchOptions, error) {
	flags := cmd.Flags()
	applySceneFlags(cfg, cmd)

	bc := &batch.Config{
		Workers:         cfg.Batch.Workers,
		ContinueOnError: cfg.Batch.ContinueOnError,
		Recursive:       cfg.Batch.Recursive,
		IncludePatterns: cfg.Batch.Include,
		ExcludePatterns: cfg.Batch.Exclude,
	}
	if flags.Changed("workers") {
		bc.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("continue-on-error") {
		bc.ContinueOnError, _ = flags.GetBool("continue-on-error")
	}
	if flags.Changed("recursive") {
		bc.Recursive, _ = flags.GetBool("recursive")
	}
	if flags.Changed("include") {
		bc.IncludePatterns, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		bc.ExcludePatterns, _ = flags.GetStringSlice("exclude")
	}

	modeName, _ := flags.GetString("mode")
	mode, err := parseMode(modeName)
	if err != nil {
		return nil, batchOptions{}, err
	}
	bc.Mode = mode

	opts := batchOptions{
		Format:      cfg.Output.Format,
		OutputFile:  cfg.Output.File,
		MetricsAddr: cfg.Batch.MetricsAddr,
	}
	if flags.Changed("output") {
		opts.OutputFile, _ = flags.GetString("output")
	}
	if flags.Changed("metrics-addr") {
		opts.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	opts.ShowProgress, _ = flags.GetBool("progress")
	opts.Quiet, _ = flags.GetBool("quiet")
	opts.ShowStats, _ = flags.GetBool("stats")

	if bc.Workers <= 0 {
		return nil, batchOptions{}, fmt.Errorf("invalid workers: %d (must be positive)", bc.Workers)
	}
	return bc, opts, nil
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	bc, opts, err := configToBatchConfig(cfg, cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.Default()
	bc.Logger = logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	bc.Metrics = metrics
	if opts.MetricsAddr != "" {
		served := make(chan error, 1)
		go func() { served <- observability.Serve(ctx, opts.MetricsAddr, reg, logger) }()
		defer func() {
			cancel()
			if err := <-served; err != nil {
				logger.Warn("metrics endpoint failed", "addr", opts.MetricsAddr, "error", err)
			}
		}()
	}

	var progress []pipeline.ProgressCallback
	progress = append(progress, pipeline.NewLogProgressCallback(logger, slog.LevelInfo, "batch"))
	if opts.ShowProgress && !opts.Quiet {
		progress = append(progress, pipeline.NewBarProgressCallback(cmd.ErrOrStderr(), "Processing scenes"))
	}
	bc.Progress = pipeline.NewMultiProgressCallback(progress...)

	pl, err := batch.BuildPipeline(cfg, batch.Deps{
		Metrics:   metrics,
		Logger:    logger,
		Ancillary: bc.Mode&pipeline.ModeFlood != 0,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pl.Close(); cerr != nil {
			logger.Warn("closing parameter store failed", "error", cerr)
		}
	}()

	result, runErr := batch.ProcessBatch(ctx, pl, args, bc)
	if result == nil {
		return fmt.Errorf("batch processing failed: %w", runErr)
	}
	result.RunID = pl.RunID()

	if err := result.SaveResults(opts.Format, opts.OutputFile, opts.Quiet); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to save results: %w", err))
	}
	if opts.ShowStats {
		result.PrintStats(cmd.OutOrStdout())
	}
	if runErr != nil {
		return fmt.Errorf("batch processing failed: %w", runErr)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addBatchFlags(batchCmd)
}

func addBatchFlags(c *cobra.Command) {
	addSceneFlags(c)
	f := c.Flags()

	f.String("mode", "full", "pipeline stages to run: full, normalize, flood")

	// Output flags
	f.StringP("format", "f", "text", "output format: text, json, yaml, csv")
	f.StringP("output", "o", "", "output file (default: stdout)")

	// Parallel processing flags
	f.IntP("workers", "w", 2, "number of scenes processed in parallel")
	f.Bool("continue-on-error", true, "keep going when a scene fails")

	// Scene discovery flags
	f.BoolP("recursive", "r", false, "recursively scan directories")
	f.StringSlice("include", []string{"L*_L2SP_*"}, "scene directory patterns to include")
	f.StringSlice("exclude", []string{}, "scene directory patterns to exclude")

	// Progress and monitoring flags
	f.Bool("progress", false, "show progress bar")
	f.Bool("quiet", false, "suppress progress output")
	f.Bool("stats", false, "show processing statistics")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
}
