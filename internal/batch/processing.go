package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/jonboulle/clockwork"

	"github.com/MeKo-Tech/marisma/internal/pipeline"
)

// Run processes dirs on a pool of config.Workers workers. Results keep the
// order of dirs. A failed scene stops the batch unless ContinueOnError is set;
// scenes not yet started are then recorded with the cancellation error. The
// returned error is the first scene failure when the batch stopped, or the
// context error when the caller cancelled.
func Run(ctx context.Context, runner SceneRunner, dirs []string, config *Config) (*Result, error) {
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	mode := config.Mode
	if mode == 0 {
		mode = pipeline.ModeFull
	}
	progress := config.Progress
	if progress == nil {
		progress = pipeline.NoOpProgressCallback{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m := config.Metrics; m != nil {
		m.PipelineRunning.Set(1)
		defer m.PipelineRunning.Set(0)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make([]*pipeline.SceneResult, len(dirs))
	var (
		mu       sync.Mutex
		done     int
		firstErr error
	)

	start := clock.Now()
	progress.OnStart(len(dirs))
	logger.Info("batch started", "scenes", len(dirs), "workers", workers)

	wp := workerpool.New(workers)
	for i, dir := range dirs {
		wp.Submit(func() {
			var (
				res *pipeline.SceneResult
				err error
			)
			if cerr := ctx.Err(); cerr != nil {
				res, err = &pipeline.SceneResult{Dir: dir, Err: cerr, Error: cerr.Error()}, cerr
			} else {
				res, err = runner.Run(ctx, dir, mode)
				if res == nil {
					res = &pipeline.SceneResult{Dir: dir}
				}
				if err != nil && res.Err == nil {
					res.Err, res.Error = err, err.Error()
				}
			}
			results[i] = res

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				progress.OnError(done, err)
				if !config.ContinueOnError && firstErr == nil {
					firstErr = fmt.Errorf("scene %s: %w", dir, err)
					cancel()
				}
			}
			progress.OnProgress(done, len(dirs))
		})
	}
	wp.StopWait()
	progress.OnComplete()

	result := &Result{
		Results:     results,
		SceneDirs:   dirs,
		Duration:    clock.Since(start),
		WorkerCount: workers,
	}
	stats := result.Stats()
	logger.Info("batch finished", "succeeded", stats.Succeeded, "failed", stats.Failed,
		"duration", result.Duration)

	if firstErr != nil {
		return result, firstErr
	}
	if err := parent.Err(); err != nil {
		return result, fmt.Errorf("batch interrupted: %w", err)
	}
	return result, nil
}
