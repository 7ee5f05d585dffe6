// Package batch runs the scene pipeline over many scene directories.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MeKo-Tech/marisma/internal/observability"
	"github.com/MeKo-Tech/marisma/internal/pipeline"
)

// ErrNoScenes is returned when discovery finds nothing to process.
var ErrNoScenes = errors.New("no scene directories found")

// SceneRunner processes one scene directory.
type SceneRunner interface {
	Run(ctx context.Context, dir string, mode pipeline.Mode) (*pipeline.SceneResult, error)
}

// Config holds all configuration for batch processing.
type Config struct {
	Workers         int
	ContinueOnError bool
	Mode            pipeline.Mode

	// Scene discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	Progress pipeline.ProgressCallback
	Metrics  *observability.Metrics
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Result holds the result of batch processing.
type Result struct {
	RunID       string                  `json:"run_id" yaml:"run_id"`
	Results     []*pipeline.SceneResult `json:"scenes" yaml:"scenes"`
	SceneDirs   []string                `json:"-" yaml:"-"`
	Duration    time.Duration           `json:"duration" yaml:"duration"`
	WorkerCount int                     `json:"workers" yaml:"workers"`
}

// ProcessBatch discovers the scenes under paths and processes them.
func ProcessBatch(ctx context.Context, runner SceneRunner, paths []string, config *Config) (*Result, error) {
	dirs, err := DiscoverScenes(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover scenes: %w", err)
	}
	if len(dirs) == 0 {
		return nil, ErrNoScenes
	}
	return Run(ctx, runner, dirs, config)
}

// SaveResults saves the formatted results to a file or stdout.
func (r *Result) SaveResults(format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(os.Stdout, "Results written to %s\n", outputFile)
		}
		return nil
	}
	_, _ = fmt.Fprint(os.Stdout, output)
	return nil
}

// Stats summarizes a batch.
type Stats struct {
	Total           int
	Succeeded       int
	Failed          int
	PartialBands    int
	FloodedHa       float64
	Duration        time.Duration
	AveragePerScene time.Duration
	Throughput      float64
}

// Stats computes the summary of the batch.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Results), Duration: r.Duration}
	var busy time.Duration
	for _, res := range r.Results {
		if res == nil {
			continue
		}
		if res.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.PartialBands += len(res.NotNormalized)
		if res.Area != nil {
			s.FloodedHa += res.Area.FloodedHa
		}
		busy += res.Duration
	}
	if s.Total > 0 {
		s.AveragePerScene = busy / time.Duration(s.Total)
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		s.Throughput = float64(s.Total) / secs
	}
	return s
}

// PrintStats writes processing statistics to w.
func (r *Result) PrintStats(w io.Writer) {
	s := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total scenes: %d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  Bands not normalized: %d\n", s.PartialBands)
	_, _ = fmt.Fprintf(w, "  Flooded area: %.2f ha\n", s.FloodedHa)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", s.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per scene: %v\n", s.AveragePerScene.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.2f scenes/sec\n", s.Throughput)
}
